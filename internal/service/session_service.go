package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/redislock"
)

const (
	sessionLockTTL  = 5 * time.Second
	sessionLockWait = 3 * time.Second
)

// SessionService stores saved workflows per user. At most one record per
// user is active; every change of the active flag happens under a per-user
// lock.
type SessionService struct {
	redis *redis.Client
	locks *redislock.Client
	now   func() time.Time
}

func NewSessionService(redisClient *redis.Client, locks *redislock.Client) *SessionService {
	if locks == nil {
		locks = redislock.New(redisClient, "")
	}
	return &SessionService{redis: redisClient, locks: locks, now: time.Now}
}

// List returns the user's records, most recently accessed first.
func (s *SessionService) List(ctx context.Context, userID string) ([]model.SessionRecord, error) {
	ids, err := s.redis.ZRevRange(ctx, userSessionsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	records := make([]model.SessionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.load(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			s.redis.ZRem(ctx, userSessionsKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Create saves a new record and makes it the active one.
func (s *SessionService) Create(ctx context.Context, userID string, req *model.SessionCreateRequest) (*model.SessionRecord, error) {
	now := s.now().UTC()
	rec := &model.SessionRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		SessionName:  req.SessionName,
		CompanyData:  req.CompanyData,
		AnalysisData: req.AnalysisData,
		AnalysisID:   req.AnalysisID,
		AppState:     req.AppState,
		LastAccessed: now,
		CreatedAt:    now,
	}

	err := s.locks.WithLock(ctx, lockName(userID), sessionLockTTL, sessionLockWait, func(ctx context.Context) error {
		if err := s.deactivateOthers(ctx, userID, rec.ID); err != nil {
			return err
		}
		rec.IsActive = true
		return s.save(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return rec, nil
}

// Get returns one of the user's records.
func (s *SessionService) Get(ctx context.Context, userID, id string) (*model.SessionRecord, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

// GetActive returns the user's active record or ErrSessionNotFound.
func (s *SessionService) GetActive(ctx context.Context, userID string) (*model.SessionRecord, error) {
	records, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].IsActive {
			return &records[i], nil
		}
	}
	return nil, ErrSessionNotFound
}

// Update applies the non-nil fields of req and touches LastAccessed. The
// record is read under the per-user lock so a concurrent SetActive is never
// overwritten with a stale active flag.
func (s *SessionService) Update(ctx context.Context, userID, id string, req *model.SessionUpdateRequest) (*model.SessionRecord, error) {
	var rec *model.SessionRecord
	err := s.locks.WithLock(ctx, lockName(userID), sessionLockTTL, sessionLockWait, func(ctx context.Context) error {
		var err error
		rec, err = s.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		if req.SessionName != nil {
			rec.SessionName = *req.SessionName
		}
		if req.CompanyData != nil {
			rec.CompanyData = req.CompanyData
		}
		if req.AnalysisData != nil {
			rec.AnalysisData = req.AnalysisData
		}
		if req.AnalysisID != nil {
			rec.AnalysisID = *req.AnalysisID
		}
		if req.AppState != nil {
			rec.AppState = *req.AppState
		}
		rec.LastAccessed = s.now().UTC()
		return s.save(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetActive activates id and deactivates every other record of the user.
func (s *SessionService) SetActive(ctx context.Context, userID, id string) (*model.SessionRecord, error) {
	var rec *model.SessionRecord
	err := s.locks.WithLock(ctx, lockName(userID), sessionLockTTL, sessionLockWait, func(ctx context.Context) error {
		var err error
		rec, err = s.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := s.deactivateOthers(ctx, userID, id); err != nil {
			return err
		}
		rec.IsActive = true
		rec.LastAccessed = s.now().UTC()
		return s.save(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes one of the user's records.
func (s *SessionService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.ZRem(ctx, userSessionsKey(userID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionService) deactivateOthers(ctx context.Context, userID, keep string) error {
	records, err := s.List(ctx, userID)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == keep || !records[i].IsActive {
			continue
		}
		records[i].IsActive = false
		if err := s.save(ctx, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionService) save(ctx context.Context, rec *model.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sessionKey(rec.ID), data, 0)
	pipe.ZAdd(ctx, userSessionsKey(rec.UserID), redis.Z{
		Score:  float64(rec.LastAccessed.UnixMilli()),
		Member: rec.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionService) load(ctx context.Context, id string) (*model.SessionRecord, error) {
	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var rec model.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	return &rec, nil
}

func sessionKey(id string) string          { return fmt.Sprintf("session:%s", id) }
func userSessionsKey(userID string) string { return fmt.Sprintf("user_sessions:%s", userID) }
func lockName(userID string) string        { return "sessions:" + userID }
