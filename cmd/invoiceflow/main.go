// Command invoiceflow runs the invoice analytics HTTP service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calebmoss/invoiceflow/analyst"
	"github.com/calebmoss/invoiceflow/config"
	"github.com/calebmoss/invoiceflow/httpapi"
	"github.com/calebmoss/invoiceflow/internal/sweeper"
	"github.com/calebmoss/invoiceflow/invoice"
	"github.com/calebmoss/invoiceflow/obs"
	"github.com/calebmoss/invoiceflow/prompts"
	"github.com/calebmoss/invoiceflow/providers/gemini"
	"github.com/calebmoss/invoiceflow/report"
	"github.com/calebmoss/invoiceflow/sandbox"
	"github.com/calebmoss/invoiceflow/session"
	"github.com/calebmoss/invoiceflow/viz"
)

const (
	appName    = "invoiceflow"
	appVersion = "1.0.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownObs, err := obs.Init(ctx, obs.Options{
		ServiceName: appName,
		Version:     appVersion,
		Exporter:    obs.ExporterType(cfg.OTelExporter),
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownObs(sctx)
	}()

	store, err := session.NewStore(cfg.StorageRoot)
	if err != nil {
		return err
	}
	registry, err := prompts.Default()
	if err != nil {
		return err
	}
	provider := gemini.New(
		gemini.WithAPIKey(cfg.GeminiAPIKey),
		gemini.WithModel(cfg.GeminiModel),
	)
	boxes, err := sandbox.NewManager(sandbox.ManagerOptions{})
	if err != nil {
		return err
	}
	defer boxes.Close()

	srv := httpapi.NewServer(
		store,
		invoice.NewProcessor(provider, store, registry, logger),
		report.NewGenerator(provider, store, registry, logger),
		viz.NewService(store, logger),
		analyst.NewService(provider, store, registry, boxes, logger,
			analyst.WithInterpreter(cfg.PythonCommand...),
			analyst.WithExecTimeout(cfg.ExecTimeout),
		),
		httpapi.Options{
			AppName:           appName,
			Version:           appVersion,
			MaxUploadBytes:    cfg.MaxUploadBytes(),
			AllowedExtensions: cfg.AllowedExtensions,
			CORSOrigins:       cfg.CORSOrigins,
		},
		logger,
	)

	sweep := sweeper.New(store, cfg.SessionTTL, logger)
	if err := sweep.Start(cfg.SweepSchedule); err != nil {
		return err
	}
	defer sweep.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr(), "model", cfg.GeminiModel)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(sctx)
}
