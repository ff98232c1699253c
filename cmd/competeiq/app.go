package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/competeiq/api/internal/apiclient"
	"github.com/competeiq/api/internal/config"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/pipeline"
	"github.com/competeiq/api/internal/progress"
	"github.com/competeiq/api/internal/session"
	"github.com/competeiq/api/internal/workflow"
)

var errNotLoggedIn = errors.New("not logged in, run `competeiq login` first")

// app carries what every command needs.
type app struct {
	dir    string
	cfg    config.CLIConfig
	creds  *config.Credentials
	client *apiclient.Client
	logger *slog.Logger
	out    io.Writer

	// set when session_store is redis
	redisOpts *redis.Options
	rdb       *redis.Client
}

func newApp(out io.Writer) (*app, error) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := config.LoadCLI(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if apiURL != "" {
		cfg.APIBaseURL = apiURL
	}

	creds, err := config.LoadCredentials(configDir)
	if err != nil {
		return nil, err
	}

	opts := []apiclient.Option{
		apiclient.WithLogger(logger),
		apiclient.WithRateLimit(cfg.RequestsPerSecond, 2),
	}
	if creds != nil {
		opts = append(opts, apiclient.WithToken(creds.Token))
	}
	client := apiclient.New(cfg.APIBaseURL, opts...)
	if creds != nil {
		client.SetUserName(creds.Name)
	}

	var redisOpts *redis.Options
	if cfg.SessionStore == config.SessionStoreRedis {
		if redisOpts, err = redis.ParseURL(cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("invalid redis_url: %w", err)
		}
	}

	logger.Debug("configuration loaded", "api_base_url", cfg.APIBaseURL, "config_dir", configDir, "session_store", cfg.SessionStore)
	return &app{
		dir:       configDir,
		cfg:       cfg,
		creds:     creds,
		client:    client,
		logger:    logger,
		out:       out,
		redisOpts: redisOpts,
	}, nil
}

// close releases the Redis connection, if one was opened.
func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
}

func (a *app) userID() string {
	if a.creds == nil {
		return ""
	}
	return a.creds.UserID
}

func (a *app) requireLogin() error {
	if a.creds == nil || a.creds.Token == "" {
		return errNotLoggedIn
	}
	return nil
}

// store returns the local session store selected by session_store.
func (a *app) store() session.Store {
	if a.redisOpts == nil {
		return session.NewFileStore(a.cfg.SessionDir, a.userID())
	}
	if a.rdb == nil {
		a.rdb = redis.NewClient(a.redisOpts)
	}
	return session.NewRedisStore(a.rdb, a.userID())
}

// newMachine wires the workflow to the backend. Every status change is
// handed to watch.
func (a *app) newMachine(gen pipeline.Options, watch *watcher) *workflow.Machine {
	gen.Logger = a.logger
	return workflow.New(a.client, pipeline.New(a.client, gen), a.store(), workflow.Options{
		PollInterval: a.cfg.PollInterval.Duration,
		DisplayDelay: a.cfg.DisplayDelay.Duration,
		Catalog:      progress.NewCatalog(a.cfg.IncludeWeakness),
		UserID:       a.userID(),
		OnChange:     watch.observe,
		Logger:       a.logger,
	})
}

// watcher turns machine callbacks into a wakeup signal. Waiters re-read
// the machine status after each wakeup, so coalesced signals lose nothing.
type watcher struct {
	changed chan struct{}
	render  func(workflow.Status)
}

func newWatcher(render func(workflow.Status)) *watcher {
	return &watcher{changed: make(chan struct{}, 1), render: render}
}

func (w *watcher) observe(st workflow.Status) {
	if w.render != nil {
		w.render(st)
	}
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// waitFor blocks until done reports true for the machine status.
func (w *watcher) waitFor(ctx context.Context, m *workflow.Machine, done func(workflow.Status) bool) (workflow.Status, error) {
	for {
		st := m.Status()
		if done(st) {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-w.changed:
		}
	}
}

// analysisSettled reports the end of an analysis: results are shown, or
// the machine fell back to input with an error.
func analysisSettled(st workflow.Status) bool {
	switch st.State {
	case model.AppStateResults:
		return true
	case model.AppStateInput:
		return st.Err != nil
	}
	return false
}

// assetsSettled reports the end of an asset run.
func assetsSettled(st workflow.Status) bool {
	if st.State != model.AppStateGenerating {
		return true
	}
	return st.AssetsDone || st.Err != nil
}
