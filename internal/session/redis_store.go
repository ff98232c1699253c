package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one snapshot per user in Redis with a 24 hour TTL.
type RedisStore struct {
	redis  *redis.Client
	userID string
	now    func() time.Time
}

func NewRedisStore(redisClient *redis.Client, userID string) *RedisStore {
	return &RedisStore{redis: redisClient, userID: userID, now: time.Now}
}

func (s *RedisStore) key() string {
	uid := s.userID
	if uid == "" {
		uid = "anonymous"
	}
	return Key + ":" + uid
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.UserID == "" {
		snap.UserID = s.userID
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(), data, Expiry).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.redis.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, s.Clear(ctx)
	}
	if !usable(&snap, s.userID, s.now()) {
		return nil, s.Clear(ctx)
	}
	return &snap, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
