package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/termsheet-validation/backend/internal/app"
	"github.com/termsheet-validation/backend/pkg/config"
	"github.com/termsheet-validation/backend/pkg/logger"
)

var Version = "dev"

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries what every subcommand needs. loadConfig is swapped in tests.
type cli struct {
	loadConfig func() (*config.Config, error)
	logLevel   string
	cfg        *config.Config
}

func newRootCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	c := &cli{loadConfig: loadConfig}

	rootCmd := &cobra.Command{
		Use:           "termsheet",
		Short:         "Termsheet extraction, versioning, classification and validation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := logger.Init(c.logLevel, "console", "stderr"); err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(c.ingestCmd())
	rootCmd.AddCommand(c.classifyCmd())
	rootCmd.AddCommand(c.validateCmd())
	rootCmd.AddCommand(c.historyCmd())
	rootCmd.AddCommand(c.referenceCmd())

	return rootCmd
}

// withPipeline builds the configured pipeline for the duration of fn.
func (c *cli) withPipeline(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
