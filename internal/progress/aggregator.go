package progress

import (
	"fmt"

	"github.com/competeiq/api/internal/model"
)

// View is the aggregate derived from one snapshot.
type View struct {
	CurrentStepIndex int
	OverallProgress  float64
	CompletedSteps   int
	TotalSteps       int
	Status           model.JobStatus
	IsTerminal       bool
}

// Succeeded reports a terminal completed job.
func (v View) Succeeded() bool { return v.IsTerminal && v.Status == model.JobStatusCompleted }

// Failed reports a terminal failed job.
func (v View) Failed() bool { return v.IsTerminal && v.Status == model.JobStatusFailed }

// Ingest computes the aggregate view of a snapshot. Overall progress moves
// only in whole-step increments of 100/len(catalog); per-step progress is not
// averaged in. A nil snapshot or empty step list yields 0 and -1.
func Ingest(catalog Catalog, snap *model.ProgressResponse) View {
	v := View{CurrentStepIndex: -1, TotalSteps: len(catalog)}
	if snap == nil {
		return v
	}
	v.Status = snap.Status
	v.IsTerminal = snap.Status.IsTerminal()
	if len(snap.Steps) == 0 || len(catalog) == 0 {
		return v
	}

	v.CurrentStepIndex = catalog.Index(snap.CurrentStep)
	for _, s := range snap.Steps {
		if s.Status == model.JobStatusCompleted && catalog.Index(string(s.Name)) >= 0 {
			v.CompletedSteps++
		}
	}
	if v.CompletedSteps > len(catalog) {
		v.CompletedSteps = len(catalog)
	}
	v.OverallProgress = 100 * float64(v.CompletedSteps) / float64(len(catalog))
	return v
}

// ValidateSnapshot checks the step invariants of a snapshot: every step is
// in the catalog and listed in catalog order, at most one step is
// in_progress, and no step is completed while an earlier one is neither
// completed nor failed.
func ValidateSnapshot(catalog Catalog, snap *model.ProgressResponse) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if len(snap.Steps) > len(catalog) {
		return fmt.Errorf("snapshot has %d steps, catalog has %d", len(snap.Steps), len(catalog))
	}

	last := -1
	inProgress := 0
	blocked := false
	for _, s := range snap.Steps {
		idx := catalog.Index(string(s.Name))
		if idx < 0 {
			return fmt.Errorf("unknown step %q", s.Name)
		}
		if idx <= last {
			return fmt.Errorf("step %q out of catalog order", s.Name)
		}
		last = idx

		switch s.Status {
		case model.JobStatusInProgress:
			inProgress++
			if inProgress > 1 {
				return fmt.Errorf("more than one step in progress")
			}
			blocked = true
		case model.JobStatusCompleted:
			if blocked {
				return fmt.Errorf("step %q completed before an earlier step", s.Name)
			}
		case model.JobStatusPending:
			blocked = true
		case model.JobStatusFailed:
		default:
			return fmt.Errorf("step %q has unknown status %q", s.Name, s.Status)
		}
	}
	return nil
}
