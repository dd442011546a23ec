// Package cli implements the recon command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"recon/internal/platform/config"
	"recon/internal/platform/logger"
)

// NewRootCmd builds the command tree. Output goes to out, logs to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "recon",
		Short: "Identity reconnaissance search engine",
		Long:  `recon runs email, domain and phone searches against a set of information
sources, stores what they find and serves the results over HTTP.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("RECON_CONFIG"), "path to a config file (yaml, json or toml)")

	env := func() (config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, nil, err
		}
		return cfg, logger.NewWithWriter(errOut, cfg.Log), nil
	}

	root.AddCommand(
		newServeCmd(env),
		newSearchCmd(env),
		newMigrateCmd(env),
	)
	return root
}

// Execute runs the CLI against os.Args and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type envFunc func() (config.Config, *slog.Logger, error)
