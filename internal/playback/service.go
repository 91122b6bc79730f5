package playback

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/reellabs/reel-core/internal/bus"
	"github.com/reellabs/reel-core/internal/protocol"
	"github.com/reellabs/reel-core/internal/storyboard"
)

// Service binds the controller to the bus and the storyboard. Position
// reports, ended signals, and speech completions arrive as messages; index
// and playing changes go back out as playback.state, and utterances leave
// as speech.say requests.
type Service struct {
	bus    *bus.Client
	store  *storyboard.Store
	ctrl   *Controller
	subs   []*nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

func NewService(parent context.Context, busClient *bus.Client, store *storyboard.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		bus:    busClient,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "playback")),
	}
	s.ctrl = NewController(Hooks{
		Narration:    s.narration,
		Speak:        s.speak,
		CancelSpeech: s.cancelSpeech,
		Seek:         s.seek,
		Publish:      s.publishState,
	})
	return s
}

func (s *Service) Start() error {
	type sub struct {
		subject string
		handler nats.MsgHandler
	}
	for _, entry := range []sub{
		{protocol.SubjectPlaybackPosition, s.handlePosition},
		{protocol.SubjectPlaybackEnded, s.handleEnded},
		{protocol.SubjectAudioMetadata, s.handleMetadata},
		{protocol.SubjectSpeechDone, s.handleSpeechDone},
		{protocol.SubjectSpeechError, s.handleSpeechError},
	} {
		subscription, err := s.bus.Conn().Subscribe(entry.subject, entry.handler)
		if err != nil {
			s.drain()
			return err
		}
		s.subs = append(s.subs, subscription)
	}
	return nil
}

func (s *Service) Close() {
	s.ctrl.Teardown()
	s.cancel()
	s.drain()
}

func (s *Service) drain() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool { return len(s.subs) == 5 }

// Gateway command surface. Everything funnels into the controller so bus
// traffic and HTTP commands cannot disagree.

func (s *Service) TogglePlay() error { return s.ctrl.TogglePlay() }

func (s *Service) Next() error { return s.ctrl.Next() }

func (s *Service) Prev() error { return s.ctrl.Prev() }

func (s *Service) GoToScene(i int) error { return s.ctrl.GoToScene(i) }

func (s *Service) State() State { return s.ctrl.State() }

// ReportPosition feeds an audio clock sample from a player.
func (s *Service) ReportPosition(elapsedSeconds float64) {
	s.ctrl.Tick(time.Duration(elapsedSeconds * float64(time.Second)))
}

// ReportEnded signals the audio source ran out.
func (s *Service) ReportEnded() { s.ctrl.HandleEnded() }

// ReportMetadata accepts a player-measured audio duration. The first valid
// duration per board wins; the upload probe usually beats players to it.
func (s *Service) ReportMetadata(durationSeconds float64) {
	s.ctrl.LoadDuration(time.Duration(durationSeconds * float64(time.Second)))
}

// ResetBoard rebinds playback to a freshly generated board.
func (s *Service) ResetBoard(sceneCount int) { s.ctrl.Reset(sceneCount) }

// LoadDuration moves the board into time-division mode.
func (s *Service) LoadDuration(d time.Duration) { s.ctrl.LoadDuration(d) }

func (s *Service) handlePosition(msg *nats.Msg) {
	var report protocol.PositionReport
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		s.logger.Warn("failed to decode position report", slogError(err))
		return
	}
	s.ReportPosition(report.ElapsedSeconds)
}

func (s *Service) handleEnded(msg *nats.Msg) {
	s.ctrl.HandleEnded()
}

func (s *Service) handleMetadata(msg *nats.Msg) {
	var meta protocol.AudioMetadata
	if err := json.Unmarshal(msg.Data, &meta); err != nil {
		s.logger.Warn("failed to decode audio metadata", slogError(err))
		return
	}
	s.ReportMetadata(meta.DurationSeconds)
}

func (s *Service) handleSpeechDone(msg *nats.Msg) {
	var done protocol.SpeechDone
	if err := json.Unmarshal(msg.Data, &done); err != nil {
		s.logger.Warn("failed to decode speech completion", slogError(err))
		return
	}
	s.ctrl.OnSpeechDone(done.SceneID)
}

func (s *Service) handleSpeechError(msg *nats.Msg) {
	var failure protocol.SpeechError
	if err := json.Unmarshal(msg.Data, &failure); err != nil {
		s.logger.Warn("failed to decode speech error", slogError(err))
		return
	}
	s.ctrl.OnSpeechError(failure.SceneID)
}

// Hook implementations. These run while the controller holds its lock, so
// they only touch the store and the bus, never the controller.

func (s *Service) narration(i int) string {
	scene, ok := s.store.SceneByID(i)
	if !ok {
		return ""
	}
	return scene.NarratorScript
}

func (s *Service) speak(i int, text string) {
	req := protocol.SpeechRequest{
		UtteranceID: uuid.NewString(),
		SceneID:     i,
		Text:        text,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeechSay, data); err != nil {
		s.logger.Warn("failed to publish speech request", slogError(err))
	}
}

func (s *Service) cancelSpeech() {
	data, err := json.Marshal(protocol.SpeechCancel{Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeechCancel, data); err != nil {
		s.logger.Warn("failed to publish speech cancel", slogError(err))
	}
}

func (s *Service) seek(offset time.Duration) {
	cmd := protocol.SeekCommand{PositionSeconds: offset.Seconds(), Timestamp: time.Now().UTC()}
	data, err := json.Marshal(cmd)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectPlaybackSeek, data); err != nil {
		s.logger.Warn("failed to publish seek", slogError(err))
	}
}

func (s *Service) publishState(st State) {
	_ = s.store.SetCurrentIndex(st.Index)
	s.store.SetPlaying(st.Playing)

	state := protocol.PlaybackState{
		Index:           st.Index,
		Playing:         st.Playing,
		Mode:            string(st.Mode),
		PerSceneSeconds: st.PerScene.Seconds(),
		Timestamp:       time.Now().UTC(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectPlaybackState, data); err != nil {
		s.logger.Warn("failed to publish playback state", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
