// Package gateway is the HTTP surface of the daemon: the storyboard REST
// API, raw image and audio serving, and the WebSocket stream that pushes
// board snapshots to connected editors.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reellabs/reel-core/internal/audiofile"
	"github.com/reellabs/reel-core/internal/config"
	"github.com/reellabs/reel-core/internal/editor"
	"github.com/reellabs/reel-core/internal/playback"
	"github.com/reellabs/reel-core/internal/storyboard"
)

// Pipeline is the slice of the generation pipeline the API exposes.
type Pipeline interface {
	StartTopicRun(topic string, sceneCount int, audio *audiofile.Ref) (string, error)
	StartScriptRun(lines []string, audio *audiofile.Ref) (string, error)
	ImportBoard(seeds []storyboard.SceneSeed) error
	RegenerateScene(id int) error
	AudioRef() *audiofile.Ref
}

// PlaybackCommands is the slice of the playback service the API exposes.
type PlaybackCommands interface {
	TogglePlay() error
	Next() error
	Prev() error
	GoToScene(index int) error
	ReportPosition(elapsedSeconds float64)
	ReportEnded()
	ReportMetadata(durationSeconds float64)
	ResetBoard(sceneCount int)
	State() playback.State
}

// Publisher is the bus surface WebSocket player registrations go out on.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Service struct {
	cfg      config.Config
	store    *storyboard.Store
	pipe     Pipeline
	playback PlaybackCommands
	editor   *editor.Editor
	prober   *audiofile.Prober
	pub      Publisher
	hub      *hub
	engine   *gin.Engine
	server   *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
}

func NewService(parent context.Context, cfg config.Config, store *storyboard.Store, pipe Pipeline, pb PlaybackCommands, ed *editor.Editor, prober *audiofile.Prober, pub Publisher, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		store:    store,
		pipe:     pipe,
		playback: pb,
		editor:   ed,
		prober:   prober,
		pub:      pub,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "gateway")),
	}
	s.hub = newHub(s.logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = int64(cfg.Gateway.MaxUploadMB) << 20
	s.routes(engine)
	s.engine = engine
	return s
}

func (s *Service) routes(engine *gin.Engine) {
	api := engine.Group("/api")
	{
		api.POST("/storyboards/topic", s.createTopicBoard)
		api.POST("/storyboards/script", s.createScriptBoard)
		api.GET("/storyboard", s.getBoard)
		api.GET("/storyboard/export", s.exportBoard)
		api.POST("/storyboard/import", s.importBoard)

		api.PATCH("/scenes/:id", s.patchScene)
		api.POST("/scenes/:id/image", s.regenerateScene)
		api.GET("/scenes/:id/image", s.getSceneImage)
		api.GET("/scenes/:id/thumb", s.getSceneThumb)

		api.GET("/audio", s.getAudio)

		api.GET("/playback", s.getPlayback)
		api.POST("/playback/toggle", s.togglePlayback)
		api.POST("/playback/next", s.nextScene)
		api.POST("/playback/prev", s.prevScene)
		api.POST("/playback/goto", s.gotoScene)
		api.POST("/playback/position", s.reportPosition)
		api.POST("/playback/ended", s.reportEnded)
		api.POST("/playback/metadata", s.reportMetadata)
	}
	engine.GET("/ws", s.handleWS)
}

func (s *Service) Start() error {
	go s.hub.run(s.ctx)

	s.server = &http.Server{
		Addr:              s.cfg.Gateway.Bind,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server failed", slogError(err))
		}
	}()
	s.logger.Info("gateway listening", slog.String("addr", s.cfg.Gateway.Bind))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("gateway shutdown error", slogError(err))
		}
	}
}

func (s *Service) Healthy() bool { return s.server != nil }

// BroadcastBoard pushes the current snapshot to every WebSocket client.
// The runtime calls this from the store's change notifier.
func (s *Service) BroadcastBoard() {
	data, err := json.Marshal(s.store.Snapshot())
	if err != nil {
		s.logger.Warn("failed to marshal board snapshot", slogError(err))
		return
	}
	s.hub.Broadcast(data)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
