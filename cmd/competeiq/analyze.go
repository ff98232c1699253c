package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/pipeline"
	"github.com/competeiq/api/internal/workflow"
)

// assetFlags select the optional asset generation after an analysis.
type assetFlags struct {
	enabled  bool
	style    string
	voice    string
	duration int
}

func (f *assetFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.enabled, "assets", false, "Generate script, images and narration after the analysis")
	cmd.Flags().StringVar(&f.style, "style", string(model.StyleProfessional), "Script style: professional, casual or technical")
	cmd.Flags().StringVar(&f.voice, "voice", string(model.VoiceProfessionalMale), "Narration voice: professional_male, professional_female or friendly")
	cmd.Flags().IntVar(&f.duration, "duration", 30, "Script duration in seconds (15-60)")
}

func (f *assetFlags) options() (pipeline.Options, error) {
	style := model.ScriptStyle(f.style)
	if !containsValue(model.ValidStyles, style) {
		return pipeline.Options{}, fmt.Errorf("invalid --style %q", f.style)
	}
	voice := model.Voice(f.voice)
	if !containsValue(model.ValidVoices, voice) {
		return pipeline.Options{}, fmt.Errorf("invalid --voice %q", f.voice)
	}
	if f.duration < 15 || f.duration > 60 {
		return pipeline.Options{}, fmt.Errorf("--duration must be between 15 and 60, got %d", f.duration)
	}
	return pipeline.Options{Style: style, Voice: voice, Duration: f.duration}, nil
}

func containsValue[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func newAnalyzeCmd() *cobra.Command {
	var company model.CompanyInput
	var assets assetFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a company against its competitors",
		Long: `Submit a company profile, follow the analysis until it finishes and print
the competitive report. With --assets a marketing script, three images and a
narration track are generated from the report.

An interrupted analysis is saved locally; continue it with "competeiq resume".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := assets.options()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			return a.runWorkflow(cmd.Context(), gen, assets.enabled, func(ctx context.Context, m *workflow.Machine) (bool, error) {
				return true, m.Submit(ctx, company)
			})
		},
	}

	cmd.Flags().StringVar(&company.Name, "name", "", "Company name")
	cmd.Flags().StringVar(&company.WebsiteURL, "website", "", "Company website URL")
	cmd.Flags().StringVar(&company.ProductDescription, "description", "", "Product description")
	cmd.Flags().StringVar(&company.MarketCategory, "category", "", "Market category")
	for _, name := range []string{"name", "website", "description", "category"} {
		_ = cmd.MarkFlagRequired(name)
	}
	assets.register(cmd)
	return cmd
}

func newResumeCmd() *cobra.Command {
	var assets assetFlags

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the last local session",
		Long: `Restore the locally saved session. A running analysis continues polling
its job; a finished one prints its report again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := assets.options()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			return a.runWorkflow(cmd.Context(), gen, assets.enabled, func(ctx context.Context, m *workflow.Machine) (bool, error) {
				restored, err := m.Resume(ctx)
				if err != nil || !restored {
					return false, err
				}
				return m.State() != model.AppStateInput, nil
			})
		},
	}
	assets.register(cmd)
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			m := a.newMachine(pipeline.Options{}, newWatcher(nil))
			defer a.close()
			defer m.Close()
			if err := m.Back(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Local session cleared.")
			return nil
		},
	}
}

// runWorkflow builds a machine, lets begin put it in motion and follows it
// to the report and, when asked, the assets. begin reports false when there
// is nothing to follow.
func (a *app) runWorkflow(parent context.Context, gen pipeline.Options, withAssets bool, begin func(context.Context, *workflow.Machine) (bool, error)) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := newProgressRenderer(os.Stderr)
	watch := newWatcher(renderer.render)
	m := a.newMachine(gen, watch)
	defer a.close()
	defer m.Close()

	started, err := begin(ctx, m)
	if err != nil {
		renderer.Finish()
		return errors.New(workflow.Describe(err))
	}
	if !started {
		fmt.Fprintln(a.out, "Nothing to resume.")
		return nil
	}

	st, err := watch.waitFor(ctx, m, analysisSettled)
	renderer.Finish()
	if err != nil {
		return interrupted(err)
	}
	if st.State != model.AppStateResults {
		return errors.New(st.LastError())
	}
	printReport(a.out, st.Analysis)

	if !withAssets {
		return nil
	}
	if err := m.GenerateAssets(ctx); err != nil {
		return err
	}
	st, err = watch.waitFor(ctx, m, assetsSettled)
	renderer.Finish()
	if err != nil {
		return interrupted(err)
	}
	printBundle(a.out, st.Bundle)
	if st.Err != nil {
		return errors.New(st.LastError())
	}
	return nil
}

func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted, run `competeiq resume` to continue")
	}
	return err
}
