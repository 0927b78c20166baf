package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hyperengineering/vocab"
	"github.com/hyperengineering/vocab/internal/httpapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr        string
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API",
	Long: `Run the extraction and maintenance scheduler with the HTTP API.

The API accepts submissions from upstream producers, serves vocabulary
and enrichment blocks, and records feedback. /metrics exposes Prometheus
metrics on the API listener, or on --metrics-addr when given.

Example:
  vocab serve --addr :8080
  vocab serve --addr :8080 --metrics-addr :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP API listen address")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Separate listen address for /metrics")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveMetricsAddr != "" {
		cfg.MetricsAddr = serveMetricsAddr
	}
	cfg.AutoStart = true
	cfg = cfg.WithDefaults()

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := newService(cfg, logger, vocab.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := httpapi.NewServer(svc, reg, logger.Named("http"))

	errCh := make(chan error, 2)
	go func() { errCh <- api.Start(ctx, serveAddr) }()
	if addr := cfg.MetricsAddr; addr != "" && addr != serveAddr {
		metrics := httpapi.NewMetricsServer(reg, logger.Named("metrics"))
		go func() { errCh <- metrics.Start(ctx, addr) }()
	}

	select {
	case err = <-errCh:
		stop()
	case <-ctx.Done():
		err = <-errCh
	}
	logger.Info("shutting down", zap.Error(err))
	return err
}
