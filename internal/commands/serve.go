package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/api"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/service"
)

func newServeCommand(dir *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the import and sync API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			e, err := openEnv(cmd.Context(), *dir, reg)
			if err != nil {
				return err
			}
			defer e.Close()

			deps := api.Deps{
				Household: e.household,
				Imports:   service.NewImportService(e.household),
				DB:        e.store,
				Gatherer:  reg,
			}
			if e.cfg.Sync.BaseURL != "" {
				source, err := feedSource(e, "")
				if err != nil {
					return err
				}
				deps.Syncs = service.NewSyncService(e.household, source)
			} else {
				e.log.Warn().Msg("No sync.base_url configured - sync endpoints disabled")
			}

			cfg := api.Config{Port: e.cfg.Server.Port, AllowedOrigins: e.cfg.Server.AllowedOrigins}
			if port != 0 {
				cfg.Port = port
			}
			srv := api.NewServer(cfg, deps, e.log)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from otter.yaml)")
	return cmd
}
