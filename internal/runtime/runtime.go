package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reellabs/reel-core/internal/audiofile"
	"github.com/reellabs/reel-core/internal/bus"
	"github.com/reellabs/reel-core/internal/config"
	"github.com/reellabs/reel-core/internal/editor"
	"github.com/reellabs/reel-core/internal/eventstore"
	"github.com/reellabs/reel-core/internal/gateway"
	"github.com/reellabs/reel-core/internal/imagegen"
	"github.com/reellabs/reel-core/internal/monitor"
	"github.com/reellabs/reel-core/internal/natsserver"
	"github.com/reellabs/reel-core/internal/pipeline"
	"github.com/reellabs/reel-core/internal/playback"
	"github.com/reellabs/reel-core/internal/players"
	"github.com/reellabs/reel-core/internal/protocol"
	"github.com/reellabs/reel-core/internal/script"
	"github.com/reellabs/reel-core/internal/speech"
	"github.com/reellabs/reel-core/internal/storyboard"
)

// Runtime assembles the daemon: the message bus, the storyboard store and
// its generation pipeline, playback and speech, the player registry, and
// the HTTP surfaces (gateway, ops, metrics).
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error

	embedded *natsserver.Server
	bus      *bus.Client
	journal  *eventstore.Store
	store    *storyboard.Store
	speech   *speech.Service
	playback *playback.Service
	pipeline *pipeline.Service
	players  *players.Registry
	monitor  *monitor.Service
	gateway  *gateway.Service

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every service up, serves the ops endpoints, and blocks until
// ctx is cancelled. Teardown runs in reverse of startup order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = tel.shutdown

	if err := r.assemble(ctx); err != nil {
		r.closeServices()
		return err
	}
	if err := r.startServices(); err != nil {
		r.closeServices()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/statusz", r.handleStatus)

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

	if tel.scrape != nil {
		r.metricsServer = newMetricsServer(r.cfg.Telemetry.PrometheusBind, tel.scrape)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("gateway", r.cfg.Gateway.Bind))

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

	r.closeServices()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// assemble constructs every service in dependency order. Nothing is
// subscribed or listening yet when it returns.
func (r *Runtime) assemble(ctx context.Context) error {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	r.embedded = embedded

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	r.bus = busClient

	journal, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.journal = journal

	r.store = storyboard.New(r.logger)

	generator, err := script.New(r.cfg.Script)
	if err != nil {
		return fmt.Errorf("build script generator: %w", err)
	}
	renderer, err := imagegen.New(r.cfg.Image)
	if err != nil {
		return fmt.Errorf("build image renderer: %w", err)
	}
	synth, err := speech.New(r.cfg.Speech)
	if err != nil {
		return fmt.Errorf("build speech synthesizer: %w", err)
	}

	r.speech = speech.NewService(ctx, r.cfg.Speech, busClient, synth, r.logger)
	r.playback = playback.NewService(ctx, busClient, r.store, r.logger)
	r.pipeline = pipeline.NewService(ctx, r.cfg, r.store, generator, renderer, r.playback, busClient.Conn(), journal, r.logger)
	r.players = players.NewRegistry(ctx, r.cfg.Players, busClient, r.logger)
	r.monitor = monitor.NewService(ctx, r.cfg.Monitor, r.logger)

	ed := editor.New(r.store, r.pipeline, r.logger)
	prober := audiofile.NewProber(r.cfg.Audio.FFprobePath)
	r.gateway = gateway.NewService(ctx, r.cfg, r.store, r.pipeline, r.playback, ed, prober, busClient.Conn(), r.logger)

	r.store.SetNotifier(r.announceChange)
	return nil
}

func (r *Runtime) startServices() error {
	if err := r.speech.Start(); err != nil {
		return fmt.Errorf("start speech service: %w", err)
	}
	if err := r.playback.Start(); err != nil {
		return fmt.Errorf("start playback service: %w", err)
	}
	if err := r.players.Start(); err != nil {
		return fmt.Errorf("start player registry: %w", err)
	}
	if err := r.monitor.Start(); err != nil {
		return fmt.Errorf("start process monitor: %w", err)
	}
	if err := r.gateway.Start(); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	return nil
}

func (r *Runtime) closeServices() {
	if r.gateway != nil {
		r.gateway.Close()
	}
	if r.monitor != nil {
		r.monitor.Close()
	}
	if r.players != nil {
		r.players.Close()
	}
	if r.pipeline != nil {
		r.pipeline.Close()
	}
	if r.playback != nil {
		r.playback.Close()
	}
	if r.speech != nil {
		r.speech.Close()
	}
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
}

// announceChange fans a store mutation out to the bus and to connected
// gateway clients. Installed as the store notifier, so it runs after the
// mutation is visible and outside the store lock.
func (r *Runtime) announceChange(ch storyboard.Change) {
	switch ch.Kind {
	case storyboard.ChangeScene:
		if sc, ok := r.store.SceneByID(ch.SceneID); ok {
			update := protocol.SceneUpdate{
				Scene: protocol.Scene{
					ID:             sc.ID,
					ImagePrompt:    sc.ImagePrompt,
					NarratorScript: sc.NarratorScript,
					ImageURL:       sc.ImageURL,
				},
				Timestamp: time.Now().UTC(),
			}
			r.publish(protocol.SubjectSceneUpdated, update)
		}
	default:
		r.publish(protocol.SubjectBoardSnapshot, r.store.Snapshot())
	}
	r.gateway.BroadcastBoard()
}

func (r *Runtime) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("failed to marshal bus payload", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := r.bus.Conn().Publish(subject, data); err != nil {
		r.logger.Warn("failed to publish bus payload", slog.String("subject", subject), slog.String("error", err.Error()))
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

type statusReport struct {
	Runtime      string               `json:"runtime"`
	Environment  string               `json:"environment"`
	BusConnected bool                 `json:"bus_connected"`
	Scenes       int                  `json:"scenes"`
	Loading      bool                 `json:"loading"`
	Players      []players.PlayerInfo `json:"players"`
	Process      monitor.Snapshot     `json:"process"`
	Timestamp    time.Time            `json:"timestamp"`
}

func (r *Runtime) handleStatus(w http.ResponseWriter, _ *http.Request) {
	loading, _ := r.store.Loading()
	report := statusReport{
		Runtime:      r.cfg.RuntimeName,
		Environment:  r.cfg.Environment,
		BusConnected: r.bus.Healthy(),
		Scenes:       r.store.Len(),
		Loading:      loading,
		Players:      r.players.Snapshot(),
		Process:      r.monitor.Snapshot(),
		Timestamp:    time.Now().UTC(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		r.logger.Warn("failed to encode status", slog.String("error", err.Error()))
	}
}
