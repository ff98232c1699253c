// Package workflow is the client-side state machine that drives an analysis
// from company input through results to marketing assets.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/competeiq/api/internal/apiclient"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/pipeline"
	"github.com/competeiq/api/internal/poller"
	"github.com/competeiq/api/internal/progress"
	"github.com/competeiq/api/internal/session"
)

// DefaultDisplayDelay is how long the finished progress view stays visible
// before the results are shown.
const DefaultDisplayDelay = 2 * time.Second

// JobClient starts and observes analysis jobs. apiclient.Client implements it.
type JobClient interface {
	Start(ctx context.Context, in model.CompanyInput) (*model.StartAnalysisResponse, error)
	Poll(ctx context.Context, jobID string) (*model.ProgressResponse, error)
	FetchResult(ctx context.Context, jobID string) (*model.AnalysisResult, error)
}

// AssetRunner produces marketing assets. pipeline.Pipeline implements it.
type AssetRunner interface {
	Run(ctx context.Context, analysisID, companyName string) <-chan pipeline.Update
}

// Options configures a Machine. Zero values select the defaults.
type Options struct {
	PollInterval time.Duration
	DisplayDelay time.Duration
	Catalog      progress.Catalog
	UserID       string

	// OnChange receives the status after every change. It is never called
	// with the machine's lock held.
	OnChange func(Status)

	Logger *slog.Logger
}

// Status is a point-in-time copy of the machine.
type Status struct {
	State         model.AppState
	Company       *model.CompanyInput
	Analysis      *model.AnalysisResult
	AnalysisID    string
	Progress      progress.View
	AssetProgress int

	// AssetsDone is set once the asset pipeline has stopped, successfully or
	// not.
	AssetsDone bool
	Bundle     pipeline.Bundle
	Err        error
	CanRetry   bool
}

// LastError is the user-facing message of the last failure.
func (s Status) LastError() string { return Describe(s.Err) }

// Machine owns one user's workflow. All methods are safe for concurrent use.
type Machine struct {
	jobs   JobClient
	assets AssetRunner
	store  session.Store
	opts   Options
	log    *slog.Logger
	now    func() time.Time

	base       context.Context
	baseCancel context.CancelFunc

	mu            sync.Mutex
	closed        bool
	state         model.AppState
	company       *model.CompanyInput
	analysis      *model.AnalysisResult
	analysisID    string
	view          progress.View
	assetProgress int
	assetsDone    bool
	bundle        pipeline.Bundle
	err           error
	canRetry      bool

	// epoch changes whenever in-flight work is abandoned; callbacks carrying
	// an older epoch are ignored.
	epoch     uint64
	task      *poller.Task
	runCancel context.CancelFunc
	timer     *time.Timer
}

// New creates a machine in the input state. A nil store keeps the session in
// memory only.
func New(jobs JobClient, assets AssetRunner, store session.Store, opts Options) *Machine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = poller.DefaultInterval
	}
	if opts.DisplayDelay < 0 {
		opts.DisplayDelay = 0
	} else if opts.DisplayDelay == 0 {
		opts.DisplayDelay = DefaultDisplayDelay
	}
	if len(opts.Catalog) == 0 {
		opts.Catalog = progress.DefaultCatalog
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if store == nil {
		store = session.NewMemoryStore()
	}

	base, cancel := context.WithCancel(context.Background())
	return &Machine{
		jobs:       jobs,
		assets:     assets,
		store:      store,
		opts:       opts,
		log:        opts.Logger.With("component", "workflow"),
		now:        time.Now,
		base:       base,
		baseCancel: cancel,
		state:      model.AppStateInput,
		view:       progress.View{CurrentStepIndex: -1, TotalSteps: len(opts.Catalog)},
	}
}

// State returns the current state.
func (m *Machine) State() model.AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a copy of the whole machine state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Bundle returns the assets generated so far.
func (m *Machine) Bundle() pipeline.Bundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bundle
}

// LastError returns the user-facing message of the last failure, or "".
func (m *Machine) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Describe(m.err)
}

// CanRetry reports whether Retry would restart a failed analysis.
func (m *Machine) CanRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canRetry
}

// Submit starts an analysis of company. All four company fields are
// required; nothing changes when one is missing.
func (m *Machine) Submit(ctx context.Context, company model.CompanyInput) error {
	if err := apiclient.ValidateCompany(company); err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.allowLocked("submit", model.AppStateInput); err != nil {
		m.mu.Unlock()
		return err
	}
	m.company = &company
	return m.startLocked(ctx)
}

// Retry restarts a failed analysis with the kept company data.
func (m *Machine) Retry(ctx context.Context) error {
	m.mu.Lock()
	if err := m.allowLocked("retry", model.AppStateInput); err != nil {
		m.mu.Unlock()
		return err
	}
	if !m.canRetry || m.company == nil {
		m.mu.Unlock()
		return &TransitionError{Action: "retry", From: model.AppStateInput}
	}
	return m.startLocked(ctx)
}

// startLocked moves to analyzing and starts the job. It is entered with
// m.mu held and releases it.
func (m *Machine) startLocked(ctx context.Context) error {
	m.abandonLocked()
	m.state = model.AppStateAnalyzing
	m.analysis = nil
	m.analysisID = ""
	m.bundle = pipeline.Bundle{}
	m.err = nil
	m.canRetry = false
	m.view = progress.View{CurrentStepIndex: -1, TotalSteps: len(m.opts.Catalog)}
	epoch := m.epoch
	company := *m.company
	m.persistLocked()
	st := m.statusLocked()
	m.mu.Unlock()
	m.notify(st)

	resp, err := m.jobs.Start(ctx, company)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.failAnalysisLocked(err)
		st := m.statusLocked()
		m.mu.Unlock()
		m.notify(st)
		return err
	}

	m.analysisID = resp.AnalysisID
	m.log.Info("analysis started", "analysis_id", resp.AnalysisID, "estimated_duration", resp.EstimatedDuration)
	m.pollLocked()
	m.persistLocked()
	st = m.statusLocked()
	m.mu.Unlock()
	m.notify(st)
	return nil
}

// pollLocked starts a polling task for m.analysisID bound to the current
// epoch.
func (m *Machine) pollLocked() {
	epoch := m.epoch
	jobID := m.analysisID
	runCtx, cancel := context.WithCancel(m.base)
	m.runCancel = cancel

	m.task = poller.StartPolling(runCtx, jobID, m.jobs.Poll, poller.Options{
		Interval: m.opts.PollInterval,
		Catalog:  m.opts.Catalog,
		Logger:   m.opts.Logger,
		OnUpdate: func(u poller.Update) {
			m.mu.Lock()
			if m.epoch != epoch {
				m.mu.Unlock()
				return
			}
			m.view = u.View
			st := m.statusLocked()
			m.mu.Unlock()
			m.notify(st)
		},
		OnTerminal: func(u poller.Update) {
			m.finishAnalysis(runCtx, epoch, u)
		},
		OnError: func(err error) {
			if !apiclient.IsNotFound(err) && !errors.Is(err, poller.ErrInvalidSnapshots) {
				m.log.Warn("poll error, will retry", "analysis_id", jobID, "error", err)
				return
			}
			m.mu.Lock()
			if m.epoch != epoch {
				m.mu.Unlock()
				return
			}
			m.failAnalysisLocked(err)
			st := m.statusLocked()
			m.mu.Unlock()
			m.notify(st)
		},
	})
}

func (m *Machine) finishAnalysis(ctx context.Context, epoch uint64, u poller.Update) {
	fail := func(err error) {
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return
		}
		m.failAnalysisLocked(err)
		st := m.statusLocked()
		m.mu.Unlock()
		m.notify(st)
	}

	if u.View.Failed() {
		msg := ""
		if u.Snapshot.Error != nil {
			msg = *u.Snapshot.Error
		}
		fail(&JobFailedError{JobID: u.JobID, Message: msg})
		return
	}

	result, err := m.jobs.FetchResult(ctx, u.JobID)
	if err != nil {
		fail(err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return
	}
	m.timer = time.AfterFunc(m.opts.DisplayDelay, func() {
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.task = nil
		m.state = model.AppStateResults
		m.analysis = result
		m.persistLocked()
		st := m.statusLocked()
		m.mu.Unlock()
		m.log.Info("analysis completed", "analysis_id", u.JobID)
		m.notify(st)
	})
}

// failAnalysisLocked returns to input, keeping the company data for a retry.
func (m *Machine) failAnalysisLocked(err error) {
	m.abandonLocked()
	m.log.Warn("analysis failed", "analysis_id", m.analysisID, "error", err)
	m.state = model.AppStateInput
	m.analysis = nil
	m.err = err
	m.canRetry = m.company != nil
	m.persistLocked()
}

// GenerateAssets starts asset generation for the shown results. ctx bounds
// the call only; generation runs until it finishes or is abandoned.
func (m *Machine) GenerateAssets(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.allowLocked("generate assets", model.AppStateResults); err != nil {
		m.mu.Unlock()
		return err
	}
	m.generateLocked()
	return nil
}

// Regenerate discards the current bundle and reruns every stage.
func (m *Machine) Regenerate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.allowLocked("regenerate", model.AppStateGenerating); err != nil {
		m.mu.Unlock()
		return err
	}
	m.generateLocked()
	return nil
}

// generateLocked is entered with m.mu held and releases it.
func (m *Machine) generateLocked() {
	m.abandonLocked()
	m.state = model.AppStateGenerating
	m.bundle = pipeline.Bundle{}
	m.assetProgress = 0
	m.assetsDone = false
	m.err = nil
	epoch := m.epoch
	runCtx, cancel := context.WithCancel(m.base)
	m.runCancel = cancel

	name := ""
	if m.company != nil {
		name = m.company.Name
	} else if m.analysis != nil && m.analysis.Company != nil {
		name = m.analysis.Company.Name
	}
	updates := m.assets.Run(runCtx, m.analysisID, name)
	m.persistLocked()
	st := m.statusLocked()
	m.mu.Unlock()
	m.notify(st)

	go func() {
		for u := range updates {
			m.mu.Lock()
			if m.epoch != epoch {
				m.mu.Unlock()
				continue
			}
			m.bundle = u.Bundle
			m.assetProgress = u.Progress
			m.assetsDone = u.Done
			if u.Err != nil {
				m.err = u.Err
				m.log.Warn("asset generation failed", "analysis_id", m.analysisID, "error", u.Err)
			}
			st := m.statusLocked()
			m.mu.Unlock()
			m.notify(st)
		}
	}()
}

// BackToResults leaves the asset view.
func (m *Machine) BackToResults() error {
	m.mu.Lock()
	if err := m.allowLocked("return to results", model.AppStateGenerating); err != nil {
		m.mu.Unlock()
		return err
	}
	m.abandonLocked()
	m.state = model.AppStateResults
	m.err = nil
	m.persistLocked()
	st := m.statusLocked()
	m.mu.Unlock()
	m.notify(st)
	return nil
}

// Back abandons everything and returns to an empty input form.
func (m *Machine) Back() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.abandonLocked()
	m.resetLocked()
	if err := m.store.Clear(m.base); err != nil {
		m.log.Warn("failed to clear session", "error", err)
	}
	st := m.statusLocked()
	m.mu.Unlock()
	m.notify(st)
	return nil
}

// OpenSessions shows the saved sessions. Running work is stopped.
func (m *Machine) OpenSessions() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.abandonLocked()
	m.state = model.AppStateSessions
	m.persistLocked()
	st := m.statusLocked()
	m.mu.Unlock()
	m.notify(st)
	return nil
}

// CloseSessions returns from the sessions view to the input form, keeping
// the company data.
func (m *Machine) CloseSessions() error {
	m.mu.Lock()
	if err := m.allowLocked("close sessions", model.AppStateSessions); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = model.AppStateInput
	m.analysis = nil
	m.bundle = pipeline.Bundle{}
	m.persistLocked()
	st := m.statusLocked()
	m.mu.Unlock()
	m.notify(st)
	return nil
}

// RestoreSession loads a saved record. A record saved while analyzing
// resumes polling its job; generated assets are not saved, so a generating
// record reopens its results.
func (m *Machine) RestoreSession(rec model.SessionRecord) error {
	return m.restore(session.Snapshot{
		AppState:     rec.AppState,
		CompanyData:  rec.CompanyData,
		AnalysisData: rec.AnalysisData,
		AnalysisID:   rec.AnalysisID,
	})
}

// Resume restores the snapshot held by the session store, if any. It
// reports whether something was restored.
func (m *Machine) Resume(ctx context.Context) (bool, error) {
	snap, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}
	return true, m.restore(*snap)
}

func (m *Machine) restore(snap session.Snapshot) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.abandonLocked()
	m.resetLocked()
	m.company = snap.CompanyData
	m.analysisID = snap.AnalysisID

	switch {
	case snap.AppState == model.AppStateAnalyzing && snap.AnalysisID != "" && m.company != nil:
		m.state = model.AppStateAnalyzing
		m.pollLocked()
	case (snap.AppState == model.AppStateResults || snap.AppState == model.AppStateGenerating) && snap.AnalysisData != nil:
		m.state = model.AppStateResults
		m.analysis = snap.AnalysisData
	default:
		m.state = model.AppStateInput
		m.analysisID = ""
	}
	m.log.Info("session restored", "state", m.state, "analysis_id", m.analysisID)
	m.persistLocked()
	st := m.statusLocked()
	m.mu.Unlock()
	m.notify(st)
	return nil
}

// Close stops polling and generation. The machine is unusable afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.abandonLocked()
	m.mu.Unlock()
	m.baseCancel()
}

func (m *Machine) allowLocked(action string, from model.AppState) error {
	if m.closed {
		return ErrClosed
	}
	if m.state != from {
		return &TransitionError{Action: action, From: m.state}
	}
	return nil
}

// abandonLocked stops all in-flight work and invalidates its callbacks.
func (m *Machine) abandonLocked() {
	m.epoch++
	if m.task != nil {
		m.task.Cancel()
		m.task = nil
	}
	if m.runCancel != nil {
		m.runCancel()
		m.runCancel = nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) resetLocked() {
	m.state = model.AppStateInput
	m.company = nil
	m.analysis = nil
	m.analysisID = ""
	m.bundle = pipeline.Bundle{}
	m.assetProgress = 0
	m.assetsDone = false
	m.view = progress.View{CurrentStepIndex: -1, TotalSteps: len(m.opts.Catalog)}
	m.err = nil
	m.canRetry = false
}

func (m *Machine) persistLocked() {
	snap := session.Snapshot{
		AppState:     m.state,
		CompanyData:  m.company,
		AnalysisData: m.analysis,
		AnalysisID:   m.analysisID,
		Timestamp:    m.now().UnixMilli(),
		UserID:       m.opts.UserID,
	}
	if err := m.store.Save(m.base, snap); err != nil {
		m.log.Warn("failed to save session", "state", m.state, "error", err)
	}
}

func (m *Machine) statusLocked() Status {
	return Status{
		State:         m.state,
		Company:       m.company,
		Analysis:      m.analysis,
		AnalysisID:    m.analysisID,
		Progress:      m.view,
		AssetProgress: m.assetProgress,
		AssetsDone:    m.assetsDone,
		Bundle:        m.bundle,
		Err:           m.err,
		CanRetry:      m.canRetry,
	}
}

func (m *Machine) notify(st Status) {
	if m.opts.OnChange != nil {
		m.opts.OnChange(st)
	}
}
