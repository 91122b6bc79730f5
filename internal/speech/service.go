package speech

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/reellabs/reel-core/internal/bus"
	"github.com/reellabs/reel-core/internal/config"
	"github.com/reellabs/reel-core/internal/protocol"
)

// Service consumes speak requests from the bus, synthesizes them, and
// publishes done/error completions. At most one utterance is in flight; a
// new request or a cancel message aborts the current one.
type Service struct {
	cfg       config.SpeechConfig
	bus       *bus.Client
	synth     Synthesizer
	saySub    *nats.Subscription
	cancelSub *nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger

	mu     sync.Mutex
	active *utteranceSlot
}

type utteranceSlot struct {
	cancel context.CancelFunc
}

func NewService(parent context.Context, cfg config.SpeechConfig, busClient *bus.Client, synth Synthesizer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		synth:  synth,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "speech-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	saySub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeechSay, s.handleSay)
	if err != nil {
		return err
	}
	s.saySub = saySub
	cancelSub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeechCancel, s.handleCancel)
	if err != nil {
		return err
	}
	s.cancelSub = cancelSub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.saySub != nil {
		_ = s.saySub.Drain()
	}
	if s.cancelSub != nil {
		_ = s.cancelSub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.saySub != nil }

func (s *Service) handleSay(msg *nats.Msg) {
	var req protocol.SpeechRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speech request", slogError(err))
		return
	}
	if req.Voice == "" {
		req.Voice = s.cfg.Voice
	}

	utterCtx, utterCancel := context.WithCancel(s.ctx)
	slot := &utteranceSlot{cancel: utterCancel}
	s.swapActive(slot)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearActive(slot)
		s.speak(utterCtx, req)
	}()
}

func (s *Service) handleCancel(msg *nats.Msg) {
	s.swapActive(nil)
}

// speak synthesizes under a timeout, announces the clip to players, then
// holds the utterance open for its duration before reporting done. A
// cancellation at any point suppresses the completion.
func (s *Service) speak(ctx context.Context, req protocol.SpeechRequest) {
	// A scene with no narration completes immediately so chained playback
	// moves past it instead of erroring.
	if strings.TrimSpace(req.Text) == "" {
		s.publishDone(req, Utterance{})
		return
	}

	timeout := time.Duration(s.cfg.RequestTimeoutMS) * time.Millisecond
	synthCtx, synthCancel := context.WithTimeout(ctx, timeout)
	defer synthCancel()

	utterance, err := s.synth.Synthesize(synthCtx, req.Text, req.Voice)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("speech synthesis failed", slog.String("utterance_id", req.UtteranceID), slogError(err))
		s.publishError(req, err)
		return
	}

	s.publishAudio(req, utterance)

	timer := time.NewTimer(utterance.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}
	s.publishDone(req, utterance)
}

// swapActive installs next as the sole in-flight utterance, canceling any
// predecessor. Passing nil just cancels.
func (s *Service) swapActive(next *utteranceSlot) {
	s.mu.Lock()
	prev := s.active
	s.active = next
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}
}

func (s *Service) clearActive(own *utteranceSlot) {
	s.mu.Lock()
	if s.active == own {
		s.active = nil
	}
	s.mu.Unlock()
	own.cancel()
}

func (s *Service) publishAudio(req protocol.SpeechRequest, u Utterance) {
	packet := protocol.SpeechAudio{
		UtteranceID: req.UtteranceID,
		SceneID:     req.SceneID,
		WAV:         u.WAV,
		SampleRate:  u.SampleRate,
		DurationMS:  u.Duration.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
	data, err := json.Marshal(packet)
	if err != nil {
		s.logger.Warn("failed to marshal speech audio", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeechAudio, data); err != nil {
		s.logger.Warn("failed to publish speech audio", slogError(err))
	}
}

func (s *Service) publishDone(req protocol.SpeechRequest, u Utterance) {
	done := protocol.SpeechDone{
		UtteranceID: req.UtteranceID,
		SceneID:     req.SceneID,
		DurationMS:  u.Duration.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
	if data, err := json.Marshal(done); err == nil {
		_ = s.bus.Conn().Publish(protocol.SubjectSpeechDone, data)
	}
}

func (s *Service) publishError(req protocol.SpeechRequest, cause error) {
	failure := protocol.SpeechError{
		UtteranceID: req.UtteranceID,
		SceneID:     req.SceneID,
		Message:     cause.Error(),
		Timestamp:   time.Now().UTC(),
	}
	if data, err := json.Marshal(failure); err == nil {
		_ = s.bus.Conn().Publish(protocol.SubjectSpeechError, data)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
