package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/legacore/legacore/control-plane/pkg/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				opts.cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("version", opts.cfg.Version).Msg("LEGACORE control plane starting...")

			srv, err := server.New(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(context.WithoutCancel(ctx)); err != nil {
					log.Warn().Err(err).Msg("Shutdown incomplete")
				}
			}()

			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides LEGACORE_PORT)")
	return cmd
}
