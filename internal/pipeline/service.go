package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reellabs/reel-core/internal/audiofile"
	"github.com/reellabs/reel-core/internal/config"
	"github.com/reellabs/reel-core/internal/eventstore"
	"github.com/reellabs/reel-core/internal/imagegen"
	"github.com/reellabs/reel-core/internal/protocol"
	"github.com/reellabs/reel-core/internal/script"
	"github.com/reellabs/reel-core/internal/storyboard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when a run or a single-scene regeneration already
// holds the generation slot.
var ErrBusy = errors.New("a generation is already in progress")

// Publisher is the bus surface run lifecycle events go out on.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// PlaybackControl is the slice of the playback service a run drives: a new
// board resets it, a successful audio-backed run hands over the duration.
type PlaybackControl interface {
	ResetBoard(sceneCount int)
	LoadDuration(d time.Duration)
}

// Service owns full storyboard generation and single-scene regeneration.
// Both compete for one generation slot, so at most one image request is in
// flight at any time and a run can never race a regeneration.
type Service struct {
	cfg      config.Config
	store    *storyboard.Store
	gen      script.Generator
	renderer imagegen.Renderer
	playback PlaybackControl
	pub      Publisher
	journal  *eventstore.Store
	slot     *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
	tracer   trace.Tracer
	runs     metric.Int64Counter

	audioMu sync.Mutex
	audio   *audiofile.Ref
}

func NewService(parent context.Context, cfg config.Config, store *storyboard.Store, gen script.Generator, renderer imagegen.Renderer, playback PlaybackControl, pub Publisher, journal *eventstore.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		store:    store,
		gen:      gen,
		renderer: renderer,
		playback: playback,
		pub:      pub,
		journal:  journal,
		slot:     semaphore.NewWeighted(1),
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "pipeline")),
		tracer:   otel.Tracer("github.com/reellabs/reel-core/pipeline"),
	}
	meter := otel.Meter("github.com/reellabs/reel-core/pipeline")
	runs, err := meter.Int64Counter("reel.pipeline.runs", metric.WithDescription("Completed pipeline runs by outcome"))
	if err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	} else {
		s.runs = runs
	}
	return s
}

// Close waits for any in-flight run and releases the held audio upload.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
	s.adoptAudio(nil)
}

// StartTopicRun builds a whole board from a typed topic. The script call
// returns all (prompt, narration) pairs in one shot; images follow
// sequentially. Returns the run id immediately, the run itself is
// asynchronous.
func (s *Service) StartTopicRun(topic string, sceneCount int, audio *audiofile.Ref) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("topic must not be empty")
	}
	if sceneCount <= 0 {
		return "", fmt.Errorf("scene count must be positive, got %d", sceneCount)
	}
	if sceneCount > s.cfg.Board.MaxScenes {
		return "", fmt.Errorf("scene count %d exceeds the maximum of %d", sceneCount, s.cfg.Board.MaxScenes)
	}
	if !s.slot.TryAcquire(1) {
		return "", ErrBusy
	}

	runID := uuid.NewString()
	s.adoptAudio(audio)
	s.store.Reset(nil)
	s.playback.ResetBoard(0)
	s.store.BeginLoading("Generating script...")
	s.appendRun(eventstore.Run{RunID: runID, Kind: "topic", Source: topic, SceneCount: sceneCount})
	s.publishProgress(runID, "Generating script...")

	s.wg.Add(1)
	go s.runTopic(runID, topic, sceneCount)
	return runID, nil
}

// StartScriptRun builds a board from pre-split narration lines. Each line
// is one scene verbatim; its image prompt is derived right before that
// scene's image call.
func (s *Service) StartScriptRun(lines []string, audio *audiofile.Ref) (string, error) {
	if len(lines) == 0 {
		return "", fmt.Errorf("script contains no usable lines")
	}
	if len(lines) > s.cfg.Board.MaxScenes {
		return "", fmt.Errorf("script has %d lines, the maximum is %d", len(lines), s.cfg.Board.MaxScenes)
	}
	if !s.slot.TryAcquire(1) {
		return "", ErrBusy
	}

	runID := uuid.NewString()
	seeds := make([]storyboard.SceneSeed, 0, len(lines))
	for _, line := range lines {
		seeds = append(seeds, storyboard.SceneSeed{NarratorScript: line})
	}
	s.adoptAudio(audio)
	s.store.Reset(seeds)
	s.playback.ResetBoard(len(seeds))
	s.store.BeginLoading("Generating storyboard...")
	s.appendRun(eventstore.Run{RunID: runID, Kind: "script", Source: fmt.Sprintf("%d lines", len(lines)), SceneCount: len(lines)})
	s.publishProgress(runID, "Generating storyboard...")

	s.wg.Add(1)
	go s.runScript(runID)
	return runID, nil
}

// ImportBoard replaces the board with pre-authored scenes without running
// any generation. It competes for the generation slot like a run does, and
// any held audio upload is discarded with the old board.
func (s *Service) ImportBoard(seeds []storyboard.SceneSeed) error {
	if len(seeds) == 0 {
		return fmt.Errorf("board contains no scenes")
	}
	if len(seeds) > s.cfg.Board.MaxScenes {
		return fmt.Errorf("board has %d scenes, the maximum is %d", len(seeds), s.cfg.Board.MaxScenes)
	}
	if !s.slot.TryAcquire(1) {
		return ErrBusy
	}
	defer s.slot.Release(1)

	s.adoptAudio(nil)
	s.store.Reset(seeds)
	s.playback.ResetBoard(len(seeds))
	s.logger.Info("board imported", slog.Int("scenes", len(seeds)))
	return nil
}

// RegenerateScene re-renders one scene's image with its current prompt.
// Blocked while a run or another regeneration holds the slot; failure keeps
// the previous image and surfaces through the editor error instead of the
// board error.
func (s *Service) RegenerateScene(id int) error {
	if !s.slot.TryAcquire(1) {
		return ErrBusy
	}
	scene, ok := s.store.SceneByID(id)
	if !ok {
		s.slot.Release(1)
		return fmt.Errorf("unknown scene id %d", id)
	}
	if strings.TrimSpace(scene.ImagePrompt) == "" {
		s.slot.Release(1)
		return fmt.Errorf("scene %d has no image prompt", id)
	}
	if err := s.store.BeginRegeneration(id); err != nil {
		s.slot.Release(1)
		return err
	}

	runID := uuid.NewString()
	s.appendRun(eventstore.Run{RunID: runID, Kind: "regen", Source: fmt.Sprintf("scene %d", id), SceneCount: 1})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.slot.Release(1)
		defer s.store.EndRegeneration(id)

		ctx, span := s.tracer.Start(s.ctx, "pipeline.regenerate",
			trace.WithAttributes(attribute.String("run.id", runID), attribute.Int("scene.id", id)))
		defer span.End()

		// Re-read so a prompt edit applied after the request still wins.
		scene, ok := s.store.SceneByID(id)
		if !ok {
			return
		}
		img, err := s.render(ctx, scene.ImagePrompt)
		if err != nil {
			span.RecordError(err)
			s.logger.Warn("scene regeneration failed", slog.Int("scene_id", id), slogError(err))
			s.store.SetEditorError(fmt.Sprintf("image regeneration failed: %s", err.Error()))
			s.appendRun(eventstore.Run{RunID: runID, Kind: "regen", Source: fmt.Sprintf("scene %d", id), SceneCount: 1, Outcome: "error"})
			s.countRun("error")
			return
		}
		if err := s.store.SetImage(id, img.Data, img.MimeType); err != nil {
			s.store.SetEditorError(err.Error())
			return
		}
		s.appendEvent(runID, "image_rendered", id)
		s.appendRun(eventstore.Run{RunID: runID, Kind: "regen", Source: fmt.Sprintf("scene %d", id), SceneCount: 1, Outcome: "ok"})
		s.countRun("ok")
	}()
	return nil
}

func (s *Service) runTopic(runID, topic string, sceneCount int) {
	defer s.wg.Done()
	defer s.slot.Release(1)

	ctx, span := s.tracer.Start(s.ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run.id", runID), attribute.String("run.kind", "topic")))
	defer span.End()

	plans, err := s.generatePlans(ctx, topic, sceneCount)
	if err != nil {
		span.RecordError(err)
		s.fail(runID, err)
		return
	}

	seeds := make([]storyboard.SceneSeed, 0, len(plans))
	for _, plan := range plans {
		seeds = append(seeds, storyboard.SceneSeed{
			ImagePrompt:    plan.ImagePrompt,
			NarratorScript: plan.NarratorScript,
		})
	}
	s.store.Reset(seeds)
	s.playback.ResetBoard(len(seeds))
	s.appendEvent(runID, "script_generated", -1)

	if err := s.renderAll(ctx, runID, false); err != nil {
		span.RecordError(err)
		s.fail(runID, err)
		return
	}
	s.finish(runID, len(seeds))
}

func (s *Service) runScript(runID string) {
	defer s.wg.Done()
	defer s.slot.Release(1)

	ctx, span := s.tracer.Start(s.ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run.id", runID), attribute.String("run.kind", "script")))
	defer span.End()

	if err := s.renderAll(ctx, runID, true); err != nil {
		span.RecordError(err)
		s.fail(runID, err)
		return
	}
	s.finish(runID, s.store.Len())
}

// renderAll walks the board in id order, one image request at a time. In
// derive mode each scene's prompt comes from its narration line first.
// The first failure aborts the rest; earlier scenes keep their images.
func (s *Service) renderAll(ctx context.Context, runID string, derivePrompts bool) error {
	scenes := s.store.Scenes()
	total := len(scenes)
	for i, sc := range scenes {
		progress := fmt.Sprintf("Generating image for scene %d/%d", i+1, total)
		s.store.SetProgress(progress)
		s.publishProgress(runID, progress)

		prompt := sc.ImagePrompt
		if derivePrompts {
			derived, err := s.derivePrompt(ctx, sc.NarratorScript)
			if err != nil {
				return fmt.Errorf("prompt generation failed for scene %d: %w", i+1, err)
			}
			prompt = derived
			if err := s.store.SetPrompt(sc.ID, derived); err != nil {
				return err
			}
			s.appendEvent(runID, "prompt_derived", sc.ID)
		}

		img, err := s.render(ctx, prompt)
		if err != nil {
			return fmt.Errorf("image generation failed for scene %d: %w", i+1, err)
		}
		if err := s.store.SetImage(sc.ID, img.Data, img.MimeType); err != nil {
			return err
		}
		s.appendEvent(runID, "image_rendered", sc.ID)
	}
	return nil
}

func (s *Service) generatePlans(ctx context.Context, topic string, sceneCount int) ([]script.ScenePlan, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Script.RequestTimeoutMS)*time.Millisecond)
	defer cancel()
	plans, err := s.gen.GenerateBoard(callCtx, topic, sceneCount)
	if err != nil {
		return nil, fmt.Errorf("script generation failed: %w", err)
	}
	return plans, nil
}

func (s *Service) derivePrompt(ctx context.Context, line string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Script.RequestTimeoutMS)*time.Millisecond)
	defer cancel()
	return s.gen.DerivePrompt(callCtx, line)
}

func (s *Service) render(ctx context.Context, prompt string) (imagegen.Image, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Image.RequestTimeoutMS)*time.Millisecond)
	defer cancel()
	return s.renderer.Render(callCtx, prompt)
}

// finish closes out a successful run. When the run came with an audio
// upload its duration moves playback into time-division mode before the
// loading flag drops, so commands never see an audio board without a mode.
func (s *Service) finish(runID string, sceneCount int) {
	if d := s.audioDuration(); d > 0 {
		s.playback.LoadDuration(d)
	}
	s.store.EndLoading()
	s.appendRun(eventstore.Run{RunID: runID, SceneCount: sceneCount, Outcome: "ok"})
	s.countRun("ok")
	s.publishResult(protocol.SubjectGenDone, protocol.GenerationResult{
		RunID:      runID,
		SceneCount: sceneCount,
		Timestamp:  time.Now().UTC(),
	})
	s.logger.Info("pipeline run complete", slog.String("run_id", runID), slog.Int("scenes", sceneCount))
}

// fail aborts the run. Scenes already populated stay on the board; the
// audio upload is discarded so a stale duration can never reach playback.
func (s *Service) fail(runID string, cause error) {
	s.logger.Warn("pipeline run failed", slog.String("run_id", runID), slogError(cause))
	s.store.SetError(cause.Error())
	s.store.EndLoading()
	s.adoptAudio(nil)
	s.appendRun(eventstore.Run{RunID: runID, Outcome: "error"})
	s.countRun("error")
	s.publishResult(protocol.SubjectGenError, protocol.GenerationResult{
		RunID:     runID,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// adoptAudio swaps the held audio upload, releasing the previous file.
func (s *Service) adoptAudio(ref *audiofile.Ref) {
	s.audioMu.Lock()
	prev := s.audio
	s.audio = ref
	s.audioMu.Unlock()
	if prev != nil && prev != ref {
		prev.Release()
	}
}

func (s *Service) audioDuration() time.Duration {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	if s.audio == nil {
		return 0
	}
	return s.audio.Duration
}

// AudioRef exposes the held upload for the gateway to serve.
func (s *Service) AudioRef() *audiofile.Ref {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	return s.audio
}

func (s *Service) appendRun(run eventstore.Run) {
	if err := s.journal.AppendRun(s.ctx, run); err != nil {
		s.logger.Warn("failed to journal run", slogError(err))
	}
}

func (s *Service) appendEvent(runID, eventType string, sceneID int) {
	evt := eventstore.Event{RunID: runID, Type: eventType, SceneID: sceneID}
	if err := s.journal.AppendEvent(s.ctx, evt); err != nil {
		s.logger.Warn("failed to journal event", slogError(err))
	}
}

func (s *Service) publishProgress(runID, message string) {
	evt := protocol.GenerationProgress{RunID: runID, Message: message, Loading: true, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := s.pub.Publish(protocol.SubjectGenProgress, data); err != nil {
		s.logger.Warn("failed to publish generation progress", slogError(err))
	}
}

func (s *Service) publishResult(subject string, result protocol.GenerationResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish generation result", slogError(err))
	}
}

func (s *Service) countRun(outcome string) {
	if s.runs == nil {
		return
	}
	s.runs.Add(s.ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
