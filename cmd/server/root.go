package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/legacore/legacore/control-plane/internal/config"
)

type rootOptions struct {
	cfg    *config.Config
	output string
	out    io.Writer
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{out: os.Stdout}

	cmd := &cobra.Command{
		Use:           "legacore",
		Short:         "LEGACORE multi-tenant AI agent control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			setupLogging(cfg.Log, os.Stderr)
			return nil
		},
	}
	cmd.SetOut(opts.out)
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json, yaml)")

	cmd.AddCommand(
		newServeCommand(opts),
		newStatusCommand(opts),
		newAgentsCommand(opts),
	)
	return cmd
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.LogConfig, w io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
}

func (o *rootOptions) validateOutput() error {
	switch o.output {
	case "table", "json", "yaml":
		return nil
	}
	return fmt.Errorf("unsupported output format %q", o.output)
}
