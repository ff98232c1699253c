package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/competeiq/api/internal/config"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configDir string
	apiURL    string
	verbose   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "competeiq",
		Short: "CompeteIQ - competitive analysis from the terminal",
		Long: `competeiq drives a CompeteIQ backend:
1. Submit a company profile for analysis
2. Follow the analysis progress
3. Print the competitive report
4. Optional: generate a marketing script, images and narration`,
		Version:      fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultCLIDir(), "Directory holding config.toml and credentials")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend base URL (overrides api_base_url)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newSessionsCmd())

	return rootCmd
}
