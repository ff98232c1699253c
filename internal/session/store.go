// Package session persists the client workflow so an interrupted analysis
// can be resumed.
package session

import (
	"context"
	"time"

	"github.com/competeiq/api/internal/model"
)

// Key is the well-known name of the persisted document.
const Key = "competeiq_session"

// Expiry is how long a saved snapshot stays valid.
const Expiry = 24 * time.Hour

// Snapshot is the persisted state of the workflow.
type Snapshot struct {
	AppState     model.AppState        `json:"appState"`
	CompanyData  *model.CompanyInput   `json:"companyData,omitempty"`
	AnalysisData *model.AnalysisResult `json:"analysisData,omitempty"`
	AnalysisID   string                `json:"analysisId,omitempty"`
	Timestamp    int64                 `json:"timestamp"`
	UserID       string                `json:"userId,omitempty"`
}

// SavedAt returns the snapshot time.
func (s *Snapshot) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Expired reports whether the snapshot is older than Expiry at now.
func (s *Snapshot) Expired(now time.Time) bool {
	return now.Sub(s.SavedAt()) > Expiry
}

// Store is where the workflow saves its snapshots. Load returns nil and no
// error when nothing valid is stored.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}

// usable reports whether a loaded snapshot may be restored for userID.
func usable(snap *Snapshot, userID string, now time.Time) bool {
	if snap.Expired(now) {
		return false
	}
	if userID != "" && snap.UserID != "" && snap.UserID != userID {
		return false
	}
	return true
}
