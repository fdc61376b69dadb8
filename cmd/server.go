package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/server"
	"github.com/ziadkadry99/perfreview/internal/telemetry"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the perfreview HTTP API",
	Long:  `Starts the REST API for users, departments, reviews, cycles and goals, with every mutation recorded in the audit log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, database, err := openRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer database.Close()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("initialising tracing: %w", err)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := telemetry.NewMetrics(reg)

		comps := server.Assemble(cfg, database, logger, metrics)
		srv := server.New(server.Config{
			Port:           cfg.Server.Port,
			AllowAll:       cfg.Server.AllowAllOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}, logger, reg)
		comps.RegisterRoutes(srv)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		logger.Info("perfreview server starting",
			zap.String("version", Version),
			zap.Int("port", cfg.Server.Port),
			zap.String("database", database.Path()),
			zap.Bool("tracing", cfg.Tracing.Enabled),
		)

		select {
		case err = <-errCh:
		case <-ctx.Done():
			logger.Info("shutting down server")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Error("http shutdown", zap.Error(serr))
		}
		if cerr := comps.Close(shutdownCtx); cerr != nil {
			logger.Error("audit queue not drained", zap.Error(cerr))
		}
		if terr := shutdownTracer(shutdownCtx); terr != nil {
			logger.Error("tracer shutdown", zap.Error(terr))
		}
		return err
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
