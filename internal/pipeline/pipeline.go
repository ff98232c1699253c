// Package pipeline runs the three asset generation stages for a finished
// analysis: script, then images, then narration.
package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/competeiq/api/internal/model"
)

// Progress checkpoints reported by Run.
const (
	ProgressStarted = 10
	ProgressScript  = 40
	ProgressImages  = 70
	ProgressDone    = 100
)

// Generator produces the individual assets. apiclient.Client implements it.
type Generator interface {
	GenerateScript(ctx context.Context, analysisID string, style model.ScriptStyle, duration int) (string, error)
	GenerateImages(ctx context.Context, script, companyName string, style model.ScriptStyle) ([]model.GeneratedImage, error)
	GenerateAudio(ctx context.Context, script string, voice model.Voice) (string, error)
}

// Bundle accrues the generated assets. Fields are only ever filled in.
type Bundle struct {
	Script   string                 `json:"script,omitempty"`
	Images   []model.GeneratedImage `json:"images,omitempty"`
	AudioURL string                 `json:"audio_url,omitempty"`
}

// Complete reports whether every stage has produced its asset.
func (b Bundle) Complete() bool {
	return b.Script != "" && len(b.Images) > 0 && b.AudioURL != ""
}

func (b Bundle) clone() Bundle {
	out := b
	if b.Images != nil {
		out.Images = append([]model.GeneratedImage(nil), b.Images...)
	}
	return out
}

// Update is one step of a run. The last update of a run has Done set and,
// on failure, a *GenerationError in Err.
type Update struct {
	Stage    Stage
	Progress int
	Bundle   Bundle
	Err      error
	Done     bool
}

// Options selects the generation parameters.
type Options struct {
	Style    model.ScriptStyle
	Duration int
	Voice    model.Voice
	Logger   *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Style == "" {
		o.Style = model.StyleProfessional
	}
	if o.Duration == 0 {
		o.Duration = model.DefaultScriptLength
	}
	if o.Voice == "" {
		o.Voice = model.VoiceProfessionalMale
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Pipeline generates asset bundles with one fixed set of options.
type Pipeline struct {
	gen  Generator
	opts Options
}

// New creates a pipeline over gen, filling unset options with defaults.
func New(gen Generator, opts Options) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{gen: gen, opts: opts}
}

// Options returns the effective options after defaults.
func (p *Pipeline) Options() Options { return p.opts }

// Run starts a generation and returns its updates. The channel is
// unbuffered so each stage runs only after the previous update has been
// received; it is closed after the final update or when ctx is done. Every
// run starts from the script stage.
func (p *Pipeline) Run(ctx context.Context, analysisID, companyName string) <-chan Update {
	out := make(chan Update)
	go func() {
		defer close(out)
		p.run(ctx, analysisID, companyName, out)
	}()
	return out
}

func (p *Pipeline) run(ctx context.Context, analysisID, companyName string, out chan<- Update) {
	var b Bundle
	log := p.opts.Logger.With("analysis_id", analysisID)

	send := func(u Update) bool {
		u.Bundle = b.clone()
		select {
		case out <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(stage Stage, progress int, err error) {
		log.Warn("asset generation failed", "stage", stage, "error", err)
		send(Update{Stage: stage, Progress: progress, Err: &GenerationError{Stage: stage, Err: err}, Done: true})
	}

	if !send(Update{Stage: StageScript, Progress: ProgressStarted}) {
		return
	}

	script, err := p.gen.GenerateScript(ctx, analysisID, p.opts.Style, p.opts.Duration)
	if err == nil && strings.TrimSpace(script) == "" {
		err = ErrEmptyScript
	}
	if err != nil {
		fail(StageScript, ProgressStarted, err)
		return
	}
	b.Script = script
	if !send(Update{Stage: StageScript, Progress: ProgressScript}) {
		return
	}

	if ctx.Err() != nil {
		return
	}
	images, err := p.gen.GenerateImages(ctx, b.Script, companyName, p.opts.Style)
	if err != nil {
		fail(StageImages, ProgressScript, err)
		return
	}
	b.Images = images
	if !send(Update{Stage: StageImages, Progress: ProgressImages}) {
		return
	}

	if ctx.Err() != nil {
		return
	}
	audioURL, err := p.gen.GenerateAudio(ctx, b.Script, p.opts.Voice)
	if err != nil {
		fail(StageAudio, ProgressImages, err)
		return
	}
	b.AudioURL = audioURL
	log.Info("asset generation completed", "images", len(b.Images))
	send(Update{Stage: StageAudio, Progress: ProgressDone, Done: true})
}

// Collect drains a run and returns its final bundle and error.
func Collect(updates <-chan Update) (Bundle, error) {
	var last Update
	for u := range updates {
		last = u
	}
	return last.Bundle, last.Err
}
