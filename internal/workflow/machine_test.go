package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/competeiq/api/internal/apiclient"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/pipeline"
	"github.com/competeiq/api/internal/poller"
	"github.com/competeiq/api/internal/progress"
	"github.com/competeiq/api/internal/session"
)

var acme = model.CompanyInput{
	Name:               "Acme",
	WebsiteURL:         "https://acme.io",
	ProductDescription: "Project management for robots",
	MarketCategory:     "SaaS",
}

// fakeJobs reports one in-progress snapshot and then final, or stays in
// progress when final is empty.
type fakeJobs struct {
	mu       sync.Mutex
	starts   int
	startErr error
	final    model.JobStatus
	failMsg  string
	pollErr  error
	fetchErr error
	// catalog is the server-side step list, DefaultCatalog when empty.
	catalog progress.Catalog
	// broken makes every snapshot report two steps in progress.
	broken bool

	polls int32
}

func (f *fakeJobs) Start(ctx context.Context, in model.CompanyInput) (*model.StartAnalysisResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &model.StartAnalysisResponse{AnalysisID: "an-1", Status: "started", EstimatedDuration: 120}, nil
}

func (f *fakeJobs) Poll(ctx context.Context, jobID string) (*model.ProgressResponse, error) {
	n := atomic.AddInt32(&f.polls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.broken {
		return &model.ProgressResponse{AnalysisID: jobID, Status: model.JobStatusInProgress, Steps: []model.StepProgress{
			{Name: model.StepWebScraping, Status: model.JobStatusInProgress},
			{Name: model.StepCompetitorResearch, Status: model.JobStatusInProgress},
		}}, nil
	}

	catalog := f.catalog
	if len(catalog) == 0 {
		catalog = progress.DefaultCatalog
	}
	status := model.JobStatusInProgress
	completed := 1
	if n > 1 && f.final != "" {
		status = f.final
		completed = len(catalog)
		if status == model.JobStatusFailed {
			completed = 1
		}
	}

	var steps []model.StepProgress
	for i, name := range catalog {
		st := model.JobStatusPending
		if i < completed {
			st = model.JobStatusCompleted
		}
		steps = append(steps, model.StepProgress{Name: name, Status: st})
	}
	snap := &model.ProgressResponse{AnalysisID: jobID, CurrentStep: string(steps[completed-1].Name), Status: status, Steps: steps}
	if status == model.JobStatusFailed {
		snap.Error = &f.failMsg
	}
	return snap, nil
}

func (f *fakeJobs) FetchResult(ctx context.Context, jobID string) (*model.AnalysisResult, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &model.AnalysisResult{
		AnalysisID:          jobID,
		Company:             &model.CompanySummary{Name: "Acme"},
		PositioningStrategy: "Own the robot niche",
	}, nil
}

func (f *fakeJobs) pollCount() int32 { return atomic.LoadInt32(&f.polls) }

func (f *fakeJobs) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeGenerator struct {
	mu        sync.Mutex
	runs      int
	failAudio bool
	noImages  bool
}

func (g *fakeGenerator) GenerateScript(ctx context.Context, analysisID string, style model.ScriptStyle, duration int) (string, error) {
	g.mu.Lock()
	g.runs++
	g.mu.Unlock()
	return "Acme builds robots. They are great.", nil
}

func (g *fakeGenerator) GenerateImages(ctx context.Context, script, companyName string, style model.ScriptStyle) ([]model.GeneratedImage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.noImages {
		return []model.GeneratedImage{}, nil
	}
	return []model.GeneratedImage{{URL: "https://img/1"}, {URL: "https://img/2", Timestamp: 10}}, nil
}

func (g *fakeGenerator) GenerateAudio(ctx context.Context, script string, voice model.Voice) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAudio {
		return "", errors.New("tts unavailable")
	}
	return "https://audio/1.mp3", nil
}

func (g *fakeGenerator) runCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runs
}

func newMachine(t *testing.T, jobs *fakeJobs, gen *fakeGenerator, store session.Store) *Machine {
	t.Helper()
	if gen == nil {
		gen = &fakeGenerator{}
	}
	m := New(jobs, pipeline.New(gen, pipeline.Options{}), store, Options{
		PollInterval: 5 * time.Millisecond,
		DisplayDelay: 10 * time.Millisecond,
		UserID:       "user-1",
	})
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, m *Machine, want model.AppState) {
	t.Helper()
	waitFor(t, "state "+string(want), func() bool { return m.State() == want })
}

func TestSubmit_RequiresAllFields(t *testing.T) {
	jobs := &fakeJobs{}
	m := newMachine(t, jobs, nil, nil)

	in := acme
	in.MarketCategory = "  "
	err := m.Submit(context.Background(), in)
	if !apiclient.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if m.State() != model.AppStateInput {
		t.Errorf("expected input state, got %s", m.State())
	}
	if jobs.startCount() != 0 {
		t.Errorf("expected no start call, got %d", jobs.startCount())
	}
}

func TestSubmit_CompletesToResults(t *testing.T) {
	jobs := &fakeJobs{final: model.JobStatusCompleted}
	store := session.NewMemoryStore()
	m := newMachine(t, jobs, nil, store)

	if err := m.Submit(context.Background(), acme); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitState(t, m, model.AppStateResults)

	st := m.Status()
	if st.Analysis == nil || st.Analysis.PositioningStrategy != "Own the robot niche" {
		t.Errorf("expected fetched analysis, got %+v", st.Analysis)
	}
	if st.Progress.OverallProgress != 100 {
		t.Errorf("expected overall progress 100, got %v", st.Progress.OverallProgress)
	}

	snap, _ := store.Load(context.Background())
	if snap == nil || snap.AppState != model.AppStateResults || snap.AnalysisID != "an-1" || snap.UserID != "user-1" {
		t.Errorf("unexpected persisted snapshot %+v", snap)
	}

	polls := jobs.pollCount()
	time.Sleep(30 * time.Millisecond)
	if jobs.pollCount() != polls {
		t.Errorf("polling continued after completion")
	}
}

func TestSubmit_ServerRunsMoreStepsThanConfigured(t *testing.T) {
	jobs := &fakeJobs{final: model.JobStatusCompleted, catalog: progress.ExtendedCatalog}
	m := New(jobs, pipeline.New(&fakeGenerator{}, pipeline.Options{}), nil, Options{
		PollInterval: 5 * time.Millisecond,
		DisplayDelay: 10 * time.Millisecond,
		Catalog:      progress.DefaultCatalog,
	})
	defer m.Close()

	if err := m.Submit(context.Background(), acme); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitState(t, m, model.AppStateResults)

	st := m.Status()
	if st.Progress.TotalSteps != 5 || st.Progress.OverallProgress != 100 {
		t.Errorf("expected the five-step view at 100, got %+v", st.Progress)
	}
	if st.Err != nil {
		t.Errorf("unexpected error %v", st.Err)
	}
}

func TestSubmit_ServerRunsFewerStepsThanConfigured(t *testing.T) {
	jobs := &fakeJobs{final: model.JobStatusCompleted}
	m := New(jobs, pipeline.New(&fakeGenerator{}, pipeline.Options{}), nil, Options{
		PollInterval: 5 * time.Millisecond,
		DisplayDelay: 10 * time.Millisecond,
		Catalog:      progress.ExtendedCatalog,
	})
	defer m.Close()

	m.Submit(context.Background(), acme)
	waitState(t, m, model.AppStateResults)
	if st := m.Status(); st.Progress.TotalSteps != 4 || st.Progress.OverallProgress != 100 {
		t.Errorf("expected the four-step view at 100, got %+v", st.Progress)
	}
}

func TestSubmit_DisplayDelayBeforeResults(t *testing.T) {
	jobs := &fakeJobs{final: model.JobStatusCompleted}
	m := New(jobs, pipeline.New(&fakeGenerator{}, pipeline.Options{}), nil, Options{
		PollInterval: 5 * time.Millisecond,
		DisplayDelay: 200 * time.Millisecond,
	})
	defer m.Close()

	m.Submit(context.Background(), acme)
	waitFor(t, "completed view", func() bool { return m.Status().Progress.Succeeded() })
	if m.State() != model.AppStateAnalyzing {
		t.Errorf("expected to stay in analyzing during the display delay, got %s", m.State())
	}
	waitState(t, m, model.AppStateResults)
}

func TestJobFailure_ReturnsToInputWithRetry(t *testing.T) {
	jobs := &fakeJobs{final: model.JobStatusFailed, failMsg: "groq quota exceeded"}
	m := newMachine(t, jobs, nil, nil)

	m.Submit(context.Background(), acme)
	waitFor(t, "retry affordance", func() bool { return m.CanRetry() })

	st := m.Status()
	if st.State != model.AppStateInput {
		t.Errorf("expected input state, got %s", st.State)
	}
	if st.Company == nil || st.Company.Name != "Acme" {
		t.Errorf("expected company data to be kept")
	}
	if st.Analysis != nil {
		t.Errorf("expected no analysis data in input")
	}
	if !strings.Contains(m.LastError(), "groq quota exceeded") {
		t.Errorf("unexpected error message %q", m.LastError())
	}

	jobs.mu.Lock()
	jobs.final = model.JobStatusCompleted
	jobs.mu.Unlock()
	atomic.StoreInt32(&jobs.polls, 0)

	if err := m.Retry(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	waitState(t, m, model.AppStateResults)
	if jobs.startCount() != 2 {
		t.Errorf("expected a second start, got %d", jobs.startCount())
	}
	if m.LastError() != "" {
		t.Errorf("expected error to be cleared, got %q", m.LastError())
	}
}

func TestPollNotFound_IsFatal(t *testing.T) {
	jobs := &fakeJobs{pollErr: &apiclient.NotFoundError{Op: "poll", Resource: "analysis", ID: "an-1"}}
	m := newMachine(t, jobs, nil, nil)

	m.Submit(context.Background(), acme)
	waitFor(t, "failure", func() bool { return m.CanRetry() })
	if m.State() != model.AppStateInput {
		t.Errorf("expected input, got %s", m.State())
	}
}

func TestPollInvalidSnapshots_FailAfterRepeats(t *testing.T) {
	jobs := &fakeJobs{broken: true}
	m := newMachine(t, jobs, nil, nil)

	m.Submit(context.Background(), acme)
	waitFor(t, "failure", func() bool { return m.CanRetry() })
	if m.State() != model.AppStateInput {
		t.Errorf("expected input, got %s", m.State())
	}
	if !errors.Is(m.Status().Err, poller.ErrInvalidSnapshots) {
		t.Errorf("unexpected error %v", m.Status().Err)
	}
	if got := jobs.pollCount(); got != poller.DefaultMaxInvalid {
		t.Errorf("expected %d polls, got %d", poller.DefaultMaxInvalid, got)
	}
}

func TestPollTransient_KeepsPolling(t *testing.T) {
	jobs := &fakeJobs{pollErr: &apiclient.TransientError{Op: "poll", StatusCode: 502, Err: errors.New("bad gateway")}}
	m := newMachine(t, jobs, nil, nil)

	m.Submit(context.Background(), acme)
	waitFor(t, "several polls", func() bool { return jobs.pollCount() >= 3 })
	if m.State() != model.AppStateAnalyzing {
		t.Errorf("expected to stay analyzing, got %s", m.State())
	}
	if m.CanRetry() {
		t.Error("transient errors must not fail the analysis")
	}
}

func TestStartFailure_ReturnsToInput(t *testing.T) {
	jobs := &fakeJobs{startErr: &apiclient.TransientError{Op: "start", Err: errors.New("refused")}}
	m := newMachine(t, jobs, nil, nil)

	err := m.Submit(context.Background(), acme)
	if !apiclient.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if m.State() != model.AppStateInput || !m.CanRetry() {
		t.Errorf("expected input with retry, got %s retry=%v", m.State(), m.CanRetry())
	}
}

func TestBack_CancelsPollingAndClearsSession(t *testing.T) {
	jobs := &fakeJobs{}
	store := session.NewMemoryStore()
	m := newMachine(t, jobs, nil, store)

	m.Submit(context.Background(), acme)
	waitFor(t, "polling", func() bool { return jobs.pollCount() >= 2 })

	if err := m.Back(); err != nil {
		t.Fatalf("back: %v", err)
	}
	polls := jobs.pollCount()
	time.Sleep(30 * time.Millisecond)
	if jobs.pollCount() > polls+1 {
		t.Errorf("polling continued after back: %d -> %d", polls, jobs.pollCount())
	}

	st := m.Status()
	if st.State != model.AppStateInput || st.Company != nil || st.Analysis != nil {
		t.Errorf("expected a clean input state, got %+v", st)
	}
	if snap, _ := store.Load(context.Background()); snap != nil {
		t.Errorf("expected session to be cleared, got %+v", snap)
	}
}

func TestBack_DuringDisplayDelayIgnoresCompletion(t *testing.T) {
	jobs := &fakeJobs{final: model.JobStatusCompleted}
	m := New(jobs, pipeline.New(&fakeGenerator{}, pipeline.Options{}), nil, Options{
		PollInterval: 5 * time.Millisecond,
		DisplayDelay: 50 * time.Millisecond,
	})
	defer m.Close()

	m.Submit(context.Background(), acme)
	waitFor(t, "completed view", func() bool { return m.Status().Progress.Succeeded() })
	m.Back()

	time.Sleep(100 * time.Millisecond)
	if m.State() != model.AppStateInput {
		t.Errorf("stale completion moved the machine to %s", m.State())
	}
}

func toResults(t *testing.T, m *Machine) {
	t.Helper()
	if err := m.Submit(context.Background(), acme); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitState(t, m, model.AppStateResults)
}

func TestGenerateAssets_StaysInGenerating(t *testing.T) {
	m := newMachine(t, &fakeJobs{final: model.JobStatusCompleted}, nil, nil)
	toResults(t, m)

	if err := m.GenerateAssets(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitFor(t, "complete bundle", func() bool { return m.Bundle().Complete() })

	st := m.Status()
	if st.State != model.AppStateGenerating {
		t.Errorf("expected to stay in generating, got %s", st.State)
	}
	if st.AssetProgress != pipeline.ProgressDone {
		t.Errorf("expected asset progress 100, got %d", st.AssetProgress)
	}
	if st.Analysis == nil {
		t.Error("analysis data must be kept while generating")
	}

	if err := m.BackToResults(); err != nil {
		t.Fatalf("back to results: %v", err)
	}
	if m.State() != model.AppStateResults {
		t.Errorf("expected results, got %s", m.State())
	}
}

func TestGenerateAssets_FailureKeepsPartialBundle(t *testing.T) {
	gen := &fakeGenerator{failAudio: true}
	m := newMachine(t, &fakeJobs{final: model.JobStatusCompleted}, gen, nil)
	toResults(t, m)

	m.GenerateAssets(context.Background())
	waitFor(t, "generation error", func() bool { return m.Status().Err != nil })

	st := m.Status()
	if st.State != model.AppStateGenerating {
		t.Errorf("expected generating, got %s", st.State)
	}
	if st.Bundle.Script == "" || len(st.Bundle.Images) != 2 || st.Bundle.AudioURL != "" {
		t.Errorf("unexpected partial bundle %+v", st.Bundle)
	}
	if stage, _ := pipeline.FailedStage(st.Err); stage != pipeline.StageAudio {
		t.Errorf("expected audio failure, got %v", st.Err)
	}

	gen.mu.Lock()
	gen.failAudio = false
	gen.mu.Unlock()
	if err := m.Regenerate(context.Background()); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	waitFor(t, "complete bundle", func() bool { return m.Bundle().Complete() })
	if gen.runCount() != 2 {
		t.Errorf("expected the script stage to run twice, got %d", gen.runCount())
	}
}

func TestInvalidTransitions(t *testing.T) {
	m := newMachine(t, &fakeJobs{}, nil, nil)

	var te *TransitionError
	if err := m.GenerateAssets(context.Background()); !errors.As(err, &te) {
		t.Errorf("expected transition error, got %v", err)
	}
	if err := m.Retry(context.Background()); !errors.As(err, &te) {
		t.Errorf("expected transition error for retry without failure, got %v", err)
	}
	if err := m.BackToResults(); !errors.As(err, &te) {
		t.Errorf("expected transition error, got %v", err)
	}

	m.Close()
	if err := m.Submit(context.Background(), acme); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSessionsView(t *testing.T) {
	m := newMachine(t, &fakeJobs{final: model.JobStatusCompleted}, nil, nil)
	toResults(t, m)

	m.OpenSessions()
	st := m.Status()
	if st.State != model.AppStateSessions || st.Analysis == nil {
		t.Errorf("expected sessions view with kept analysis, got %+v", st)
	}

	if err := m.CloseSessions(); err != nil {
		t.Fatalf("close sessions: %v", err)
	}
	st = m.Status()
	if st.State != model.AppStateInput || st.Analysis != nil {
		t.Errorf("expected input without analysis, got %+v", st)
	}
	if st.Company == nil {
		t.Error("expected company data to be kept for the form")
	}
}

func TestRestoreSession(t *testing.T) {
	result := &model.AnalysisResult{PositioningStrategy: "saved"}

	t.Run("results", func(t *testing.T) {
		m := newMachine(t, &fakeJobs{}, nil, nil)
		err := m.RestoreSession(model.SessionRecord{
			ID: "s1", AppState: model.AppStateGenerating,
			CompanyData: &acme, AnalysisData: result, AnalysisID: "an-1",
		})
		if err != nil {
			t.Fatal(err)
		}
		st := m.Status()
		if st.State != model.AppStateResults || st.Analysis.PositioningStrategy != "saved" {
			t.Errorf("unexpected restored status %+v", st)
		}
		if err := m.GenerateAssets(context.Background()); err != nil {
			t.Errorf("expected generation to be possible after restore: %v", err)
		}
	})

	t.Run("analyzing resumes polling", func(t *testing.T) {
		jobs := &fakeJobs{final: model.JobStatusCompleted}
		m := newMachine(t, jobs, nil, nil)
		m.RestoreSession(model.SessionRecord{ID: "s2", AppState: model.AppStateAnalyzing, CompanyData: &acme, AnalysisID: "an-1"})
		if m.State() != model.AppStateAnalyzing {
			t.Fatalf("expected analyzing, got %s", m.State())
		}
		waitState(t, m, model.AppStateResults)
		if jobs.startCount() != 0 {
			t.Error("restoring must not start a new job")
		}
	})

	t.Run("incomplete record falls back to input", func(t *testing.T) {
		m := newMachine(t, &fakeJobs{}, nil, nil)
		m.RestoreSession(model.SessionRecord{ID: "s3", AppState: model.AppStateResults, CompanyData: &acme})
		if m.State() != model.AppStateInput {
			t.Errorf("expected input, got %s", m.State())
		}
	})
}

func TestResume_FromStore(t *testing.T) {
	store := session.NewMemoryStore()
	store.Save(context.Background(), session.Snapshot{
		AppState:     model.AppStateResults,
		CompanyData:  &acme,
		AnalysisData: &model.AnalysisResult{PositioningStrategy: "persisted"},
		AnalysisID:   "an-9",
		Timestamp:    time.Now().UnixMilli(),
	})

	m := newMachine(t, &fakeJobs{}, nil, store)
	ok, err := m.Resume(context.Background())
	if err != nil || !ok {
		t.Fatalf("resume: %v %v", ok, err)
	}
	st := m.Status()
	if st.State != model.AppStateResults || st.AnalysisID != "an-9" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestOnChange_ReportsEveryTransition(t *testing.T) {
	var mu sync.Mutex
	var states []model.AppState
	jobs := &fakeJobs{final: model.JobStatusCompleted}
	m := New(jobs, pipeline.New(&fakeGenerator{}, pipeline.Options{}), nil, Options{
		PollInterval: 5 * time.Millisecond,
		DisplayDelay: 5 * time.Millisecond,
		OnChange: func(s Status) {
			mu.Lock()
			if len(states) == 0 || states[len(states)-1] != s.State {
				states = append(states, s.State)
			}
			mu.Unlock()
		},
	})
	defer m.Close()

	m.Submit(context.Background(), acme)
	waitState(t, m, model.AppStateResults)

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != model.AppStateAnalyzing || states[1] != model.AppStateResults {
		t.Errorf("unexpected state sequence %v", states)
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&JobFailedError{JobID: "a", Message: "boom"}, "Analysis failed: boom"},
		{&pipeline.GenerationError{Stage: pipeline.StageImages, Err: errors.New("x")}, "Failed to generate the images. Please try again."},
		{&apiclient.TransientError{Op: "poll", Err: errors.New("x")}, "The service is temporarily unavailable. Please try again."},
		{&apiclient.NotFoundError{Op: "poll"}, "The analysis could not be found. Please start a new one."},
		{&apiclient.ValidationError{Op: "poll", Err: poller.ErrInvalidSnapshots}, "The analysis reported inconsistent progress. Please try again."},
	}
	for _, c := range cases {
		if got := Describe(c.err); got != c.want {
			t.Errorf("Describe(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestGenerateAssets_DoneWithoutImages(t *testing.T) {
	gen := &fakeGenerator{noImages: true}
	m := newMachine(t, &fakeJobs{final: model.JobStatusCompleted}, gen, nil)
	toResults(t, m)

	if err := m.GenerateAssets(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitFor(t, "finished run", func() bool { return m.Status().AssetsDone })

	st := m.Status()
	if st.Err != nil {
		t.Errorf("unexpected error %v", st.Err)
	}
	if st.Bundle.Complete() {
		t.Error("a bundle without images is not complete")
	}
	if st.Bundle.AudioURL == "" || st.AssetProgress != pipeline.ProgressDone {
		t.Errorf("expected the run to reach audio, got %+v", st)
	}

	if err := m.Regenerate(context.Background()); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	waitFor(t, "second run", func() bool { return gen.runCount() == 2 && m.Status().AssetsDone })
}

func TestGenerateAssets_CancelledContext(t *testing.T) {
	m := newMachine(t, &fakeJobs{final: model.JobStatusCompleted}, nil, nil)
	toResults(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.GenerateAssets(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if m.State() != model.AppStateResults {
		t.Errorf("expected to stay in results, got %s", m.State())
	}
}
