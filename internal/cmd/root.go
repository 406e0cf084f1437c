package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artcritique/brushup/pkg/config"
	"github.com/artcritique/brushup/pkg/credentials"
	clierrors "github.com/artcritique/brushup/pkg/errors"
	"github.com/artcritique/brushup/pkg/logger"
	"github.com/artcritique/brushup/pkg/output"
)

var (
	verbose    bool
	configPath string
	outputFmt  string
	tokenFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "brushup",
	Short: "BrushUp CLI - Art critique community notifications",
	Long: `BrushUp CLI is a command-line client for the BrushUp art critique
community. Follow critiques and reactions on your artworks as they happen,
straight from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("error initializing config: %w", err)
		}

		logger.Init(verbose)

		if cmd.Flags().Changed("output") {
			if !output.ValidateOutputFormat(outputFmt) {
				return clierrors.ValidationError("output", "must be one of text, json, table")
			}
			config.Set("output.format", outputFmt)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, clierrors.FormatError(err))
		os.Exit(1)
	}
}

// accessToken resolves the token from --token, BRUSHUP_TOKEN, or stored
// credentials, in that order.
func accessToken() (string, error) {
	if tokenFlag != "" {
		return tokenFlag, nil
	}
	if env := os.Getenv("BRUSHUP_TOKEN"); env != "" {
		return env, nil
	}

	creds, err := credentials.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		return "", clierrors.AuthError("Not logged in")
	}
	if creds.IsExpired() {
		return "", clierrors.SessionExpiredError()
	}
	return creds.AccessToken, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/brushup/cli/config.toml)")
	rootCmd.PersistentFlags().StringVar(&outputFmt, "output", "text", "Output format: text, json, table")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Access token (overrides stored credentials)")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(versionCmd)
}
