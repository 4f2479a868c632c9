package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiobooker/audiobooker/internal/bus"
	"github.com/audiobooker/audiobooker/internal/config"
	"github.com/audiobooker/audiobooker/internal/dialect"
	"github.com/audiobooker/audiobooker/internal/httpapi"
	"github.com/audiobooker/audiobooker/internal/library"
	"github.com/audiobooker/audiobooker/internal/natsserver"
	"github.com/audiobooker/audiobooker/internal/session"
	"github.com/audiobooker/audiobooker/internal/sessionlog"
	"github.com/audiobooker/audiobooker/internal/tts"
)

// Runtime assembles the reading service: embedded bus, session state machine,
// ingestion, synthesis and the HTTP surface, with graceful shutdown.
type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	timeline, err := sessionlog.Open(ctx, r.cfg.SessionLog, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open session log: %w", err)
	}
	defer timeline.Close()

	lib, err := library.NewStore(r.cfg.Library, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize library: %w", err)
	}

	synth, err := r.buildSynthesizer(lib)
	if err != nil {
		return fmt.Errorf("failed to initialize synthesizer: %w", err)
	}

	dialects := dialect.NewMapper()
	store := session.NewStore()
	delivery := session.NewDelivery(busClient.Conn(), r.logger)
	controller := session.NewController(ctx, store, synth, dialects, delivery, timeline, lib, r.logger)
	defer controller.Close()

	service := session.NewService(busClient, store, controller, delivery, r.logger)
	if err := service.Start(); err != nil {
		return fmt.Errorf("failed to start session service: %w", err)
	}
	defer service.Close()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		controller.RunSweeper(ctx,
			time.Duration(r.cfg.Sessions.IdleTTLSeconds)*time.Second,
			time.Duration(r.cfg.Sessions.SweepIntervalMS)*time.Millisecond)
	}()

	api := httpapi.NewServer(r.cfg, lib, store, controller, timeline, dialects, r.logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	api.Register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildSynthesizer(lib *library.Store) (tts.Synthesizer, error) {
	switch r.cfg.TTS.Mode {
	case "exec":
		return tts.NewExecSynth(r.cfg.TTS.Command, lib.AudioDir(), r.cfg.TTS.SampleRate, r.cfg.TTS.Channels)
	default:
		return tts.NewMockSynth(), nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
