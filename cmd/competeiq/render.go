package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/pipeline"
	"github.com/competeiq/api/internal/progress"
	"github.com/competeiq/api/internal/workflow"
)

// progressRenderer draws one bar per phase: the analysis, then the assets.
type progressRenderer struct {
	w io.Writer

	mu    sync.Mutex
	phase model.AppState
	bar   *progressbar.ProgressBar
	last  int
}

func newProgressRenderer(w io.Writer) *progressRenderer {
	return &progressRenderer{w: w}
}

func (r *progressRenderer) render(st workflow.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch st.State {
	case model.AppStateAnalyzing:
		r.switchPhase(st.State, "Analyzing")
		// the job's own step count decides which catalog the index refers to
		catalog := progress.NewCatalog(st.Progress.TotalSteps == len(progress.ExtendedCatalog))
		if i := st.Progress.CurrentStepIndex; i >= 0 && i < len(catalog) {
			r.bar.Describe(stepLabel(catalog[i]))
		}
		r.set(int(st.Progress.OverallProgress))
	case model.AppStateGenerating:
		r.switchPhase(st.State, "Generating assets")
		r.set(st.AssetProgress)
	default:
		r.finishLocked()
	}
}

func (r *progressRenderer) switchPhase(phase model.AppState, desc string) {
	if r.phase == phase && r.bar != nil {
		return
	}
	r.finishLocked()
	r.phase = phase
	r.last = 0
	r.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
	)
}

func (r *progressRenderer) set(pct int) {
	if pct < r.last {
		return
	}
	r.last = pct
	_ = r.bar.Set(pct)
}

// Finish closes the current bar.
func (r *progressRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked()
}

func (r *progressRenderer) finishLocked() {
	if r.bar == nil {
		return
	}
	fmt.Fprintln(r.w)
	r.bar = nil
	r.phase = ""
}

func stepLabel(step model.StepName) string {
	label := strings.ReplaceAll(string(step), "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func printReport(w io.Writer, res *model.AnalysisResult) {
	if res == nil {
		return
	}
	if res.Company != nil {
		fmt.Fprintf(w, "Competitive analysis: %s (%s)\n", res.Company.Name, res.Company.WebsiteURL)
	}
	if res.AnalysisID != "" {
		fmt.Fprintf(w, "Analysis ID: %s\n", res.AnalysisID)
	}

	fmt.Fprintln(w, "\nCompetitors")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tSHARE\tSTRENGTHS\tWEAKNESSES")
	for _, c := range res.Competitors {
		fmt.Fprintf(tw, "  %s\t%.0f%%\t%s\t%s\n", c.Name, c.MarketShare,
			strings.Join(c.Strengths, ", "), strings.Join(c.Weaknesses, ", "))
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nMarket trends")
	for _, t := range res.MarketTrends {
		fmt.Fprintf(w, "  - %s [%s impact, %.0f%% confidence]\n", t.Trend, t.Impact, t.Confidence)
	}

	printList(w, "Market gaps", res.MarketGaps)
	if res.PositioningStrategy != "" {
		fmt.Fprintf(w, "\nPositioning strategy\n  %s\n", res.PositioningStrategy)
	}
	printList(w, "Competitive advantages", res.CompetitiveAdvantages)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func printBundle(w io.Writer, b pipeline.Bundle) {
	if b.Script != "" {
		fmt.Fprintf(w, "\nMarketing script\n  %s\n", b.Script)
	}
	if len(b.Images) > 0 {
		fmt.Fprintln(w, "\nImages")
		for _, img := range b.Images {
			fmt.Fprintf(w, "  %5.1fs  %s\n", img.Timestamp, img.URL)
		}
	}
	if b.AudioURL != "" {
		fmt.Fprintf(w, "\nNarration\n  %s\n", b.AudioURL)
	}
}

func printSessions(w io.Writer, records []model.SessionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No saved sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tCOMPANY\tLAST ACCESSED\tACTIVE")
	for _, rec := range records {
		company := ""
		if rec.CompanyData != nil {
			company = rec.CompanyData.Name
		}
		active := ""
		if rec.IsActive {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.SessionName, rec.AppState, company,
			rec.LastAccessed.Local().Format("2006-01-02 15:04"), active)
	}
	_ = tw.Flush()
}
