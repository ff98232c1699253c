// Package progress derives an aggregate view from raw job snapshots.
package progress

import "github.com/competeiq/api/internal/model"

// Catalog is the fixed, ordered list of analysis steps for a job.
type Catalog []model.StepName

// DefaultCatalog is the four-step pipeline the backend runs by default.
var DefaultCatalog = Catalog{
	model.StepWebScraping,
	model.StepCompetitorResearch,
	model.StepTrendPrediction,
	model.StepMarketPositioning,
}

// ExtendedCatalog adds weakness analysis before positioning.
var ExtendedCatalog = Catalog{
	model.StepWebScraping,
	model.StepCompetitorResearch,
	model.StepTrendPrediction,
	model.StepWeaknessAnalysis,
	model.StepMarketPositioning,
}

// NewCatalog returns the catalog for the given configuration.
func NewCatalog(includeWeakness bool) Catalog {
	if includeWeakness {
		return append(Catalog(nil), ExtendedCatalog...)
	}
	return append(Catalog(nil), DefaultCatalog...)
}

// Index returns the position of name in the catalog, or -1.
func (c Catalog) Index(name string) int {
	for i, n := range c {
		if string(n) == name {
			return i
		}
	}
	return -1
}

// Agent returns the agent identifier reported for a step.
func Agent(name model.StepName) string {
	return string(name) + "_agent"
}

// Adopt returns the catalog a job actually runs. The step count is fixed when
// a job starts, so the step names of any snapshot carrying steps describe
// it. Names that are not known steps, or that are out of known order, leave
// fallback in place.
func Adopt(fallback Catalog, snap *model.ProgressResponse) Catalog {
	if snap == nil || len(snap.Steps) == 0 {
		return fallback
	}
	adopted := make(Catalog, 0, len(snap.Steps))
	last := -1
	for _, s := range snap.Steps {
		idx := ExtendedCatalog.Index(string(s.Name))
		if idx <= last {
			return fallback
		}
		last = idx
		adopted = append(adopted, s.Name)
	}
	return adopted
}
