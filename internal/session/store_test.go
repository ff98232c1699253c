package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/competeiq/api/internal/model"
)

func sample(ts time.Time, user string) Snapshot {
	return Snapshot{
		AppState: model.AppStateResults,
		CompanyData: &model.CompanyInput{
			Name: "Acme", WebsiteURL: "https://acme.io",
			ProductDescription: "Widgets", MarketCategory: "Tools",
		},
		AnalysisData: &model.AnalysisResult{PositioningStrategy: "Lead on price"},
		AnalysisID:   "an-1",
		Timestamp:    ts.UnixMilli(),
		UserID:       user,
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "user-1")

	if snap, err := s.Load(ctx); err != nil || snap != nil {
		t.Fatalf("expected empty store, got %v, %v", snap, err)
	}
	if err := s.Save(ctx, sample(time.Now(), "")); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil || snap == nil {
		t.Fatalf("load: %v, %v", snap, err)
	}
	if snap.AppState != model.AppStateResults || snap.CompanyData.Name != "Acme" || snap.AnalysisID != "an-1" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.UserID != "user-1" {
		t.Errorf("expected store user to be recorded, got %q", snap.UserID)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("expected session file to be removed")
	}
}

func TestFileStore_ExpiredIsDiscarded(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "")
	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Save(ctx, sample(now.Add(-25*time.Hour), "")); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := s.Load(ctx)
	if err != nil || snap != nil {
		t.Fatalf("expected expired snapshot to be discarded, got %v, %v", snap, err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("expected expired file to be deleted")
	}
}

func TestFileStore_ForeignUserIsDiscarded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	if err := NewFileStore(dir, "alice").Save(ctx, sample(time.Now(), "")); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := NewFileStore(dir, "bob").Load(ctx)
	if err != nil || snap != nil {
		t.Fatalf("expected foreign snapshot to be discarded, got %v, %v", snap, err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "")
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Load(ctx)
	if err != nil || snap != nil {
		t.Fatalf("expected corrupt file to read as empty, got %v, %v", snap, err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Save(ctx, sample(time.Now(), "u"))
	snap, _ := s.Load(ctx)
	if snap == nil || snap.AnalysisID != "an-1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	s.Clear(ctx)
	if snap, _ := s.Load(ctx); snap != nil {
		t.Errorf("expected nil after clear")
	}
	if s.Saves() != 1 {
		t.Errorf("expected 1 save, got %d", s.Saves())
	}
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	s := NewRedisStore(rdb, "redis-store-test")
	t.Cleanup(func() { s.Clear(ctx) })

	if err := s.Save(ctx, sample(time.Now(), "")); err != nil {
		t.Fatalf("save: %v", err)
	}
	ttl := rdb.TTL(ctx, "competeiq_session:redis-store-test").Val()
	if ttl <= 0 || ttl > Expiry {
		t.Errorf("unexpected ttl %v", ttl)
	}

	snap, err := s.Load(ctx)
	if err != nil || snap == nil || snap.CompanyData.Name != "Acme" {
		t.Fatalf("load: %+v, %v", snap, err)
	}

	s.Clear(ctx)
	if snap, _ := s.Load(ctx); snap != nil {
		t.Errorf("expected nil after clear")
	}
}
