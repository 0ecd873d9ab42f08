package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/entrhq/scout/pkg/agent/orchestrator"
	"github.com/entrhq/scout/pkg/server"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, false)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.store, a.router,
				server.WithTools(a.tools),
				server.WithBrowser(a.browser),
				server.WithOrchestratorConfig(cfg.Orchestrator),
				server.WithServerConfig(cfg.Server),
				server.WithMetrics(orchestrator.DefaultMetrics(), prometheus.DefaultGatherer),
				server.WithVersion(version),
			)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
