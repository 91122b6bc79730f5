package playback

import (
	"sync"
	"testing"
	"time"
)

type hookRecorder struct {
	mu      sync.Mutex
	narr    []string
	spoken  []int
	cancels int
	seeks   []time.Duration
	states  []State
}

func (r *hookRecorder) hooks() Hooks {
	return Hooks{
		Narration: func(i int) string {
			r.mu.Lock()
			defer r.mu.Unlock()
			if i < 0 || i >= len(r.narr) {
				return ""
			}
			return r.narr[i]
		},
		Speak: func(i int, text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.spoken = append(r.spoken, i)
		},
		CancelSpeech: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.cancels++
		},
		Seek: func(offset time.Duration) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.seeks = append(r.seeks, offset)
		},
		Publish: func(s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
	}
}

func (r *hookRecorder) spokenScenes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.spoken...)
}

func (r *hookRecorder) cancelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancels
}

func (r *hookRecorder) seekOffsets() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.seeks...)
}

func (r *hookRecorder) stateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func newTestController(narrations ...string) (*Controller, *hookRecorder) {
	rec := &hookRecorder{narr: narrations}
	ctrl := NewController(rec.hooks())
	ctrl.Reset(len(narrations))
	return ctrl, rec
}

func TestLoadDurationComputesPerSceneOnce(t *testing.T) {
	ctrl, _ := newTestController("a", "b", "c")
	ctrl.LoadDuration(30 * time.Second)
	if got := ctrl.PerScene(); got != 10*time.Second {
		t.Fatalf("per-scene = %v, want 10s", got)
	}
	if st := ctrl.State(); st.Mode != ModeTimeDivision {
		t.Fatalf("mode = %v, want time-division", st.Mode)
	}

	// A second load must not recompute the slice.
	ctrl.LoadDuration(60 * time.Second)
	if got := ctrl.PerScene(); got != 10*time.Second {
		t.Fatalf("per-scene recomputed to %v", got)
	}

	// A new board forgets the slice.
	ctrl.Reset(3)
	ctrl.LoadDuration(60 * time.Second)
	if got := ctrl.PerScene(); got != 20*time.Second {
		t.Fatalf("per-scene after reset = %v, want 20s", got)
	}
}

func TestTickDerivesIndexFromElapsedTime(t *testing.T) {
	ctrl, _ := newTestController("a", "b", "c")
	ctrl.LoadDuration(30 * time.Second)

	ctrl.Tick(0)
	if ctrl.Index() != 0 {
		t.Fatalf("index at 0s = %d", ctrl.Index())
	}
	ctrl.Tick(22 * time.Second)
	if ctrl.Index() != 2 {
		t.Fatalf("index at 22s = %d, want 2", ctrl.Index())
	}
	// Past the end of the audio the index clamps to the last scene.
	ctrl.Tick(99 * time.Second)
	if ctrl.Index() != 2 {
		t.Fatalf("index at 99s = %d, want clamp to 2", ctrl.Index())
	}
}

func TestTickPublishesOnlyOnIndexChange(t *testing.T) {
	ctrl, rec := newTestController("a", "b", "c")
	ctrl.LoadDuration(30 * time.Second)

	before := rec.stateCount()
	ctrl.Tick(12 * time.Second)
	afterFirst := rec.stateCount()
	if afterFirst != before+1 {
		t.Fatalf("expected one publish for index change, got %d", afterFirst-before)
	}
	ctrl.Tick(13 * time.Second)
	if rec.stateCount() != afterFirst {
		t.Fatalf("tick within the same slice should not publish")
	}
}

func TestHandleEndedSnapsToLastAndStops(t *testing.T) {
	ctrl, _ := newTestController("a", "b", "c")
	ctrl.LoadDuration(30 * time.Second)
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	ctrl.HandleEnded()
	if ctrl.Index() != 2 {
		t.Fatalf("index after ended = %d, want 2", ctrl.Index())
	}
	if ctrl.IsPlaying() {
		t.Fatal("still playing after audio ended")
	}
}

func TestGoToSceneSeeksByTimeSlice(t *testing.T) {
	ctrl, rec := newTestController("a", "b", "c")
	ctrl.LoadDuration(30 * time.Second)

	if err := ctrl.GoToScene(1); err != nil {
		t.Fatalf("goto: %v", err)
	}
	seeks := rec.seekOffsets()
	if len(seeks) != 1 || seeks[0] != 10*time.Second {
		t.Fatalf("seek offsets = %v, want [10s]", seeks)
	}
	if ctrl.Index() != 1 || ctrl.IsPlaying() {
		t.Fatalf("state after goto: index=%d playing=%v", ctrl.Index(), ctrl.IsPlaying())
	}
}

func TestGoToSceneWrapsModulo(t *testing.T) {
	ctrl, _ := newTestController("a", "b", "c", "d", "e")

	if err := ctrl.GoToScene(-1); err != nil {
		t.Fatalf("goto -1: %v", err)
	}
	if ctrl.Index() != 4 {
		t.Fatalf("index for -1 on a 5-scene board = %d, want 4", ctrl.Index())
	}
	if err := ctrl.GoToScene(5); err != nil {
		t.Fatalf("goto 5: %v", err)
	}
	if ctrl.Index() != 0 {
		t.Fatalf("index for 5 = %d, want 0", ctrl.Index())
	}
	if err := ctrl.GoToScene(7); err != nil {
		t.Fatalf("goto 7: %v", err)
	}
	if ctrl.Index() != 2 {
		t.Fatalf("index for 7 = %d, want 2", ctrl.Index())
	}
}

func TestNextPrevWrapBothDirections(t *testing.T) {
	ctrl, _ := newTestController("a", "b", "c")
	if err := ctrl.Prev(); err != nil {
		t.Fatalf("prev: %v", err)
	}
	if ctrl.Index() != 2 {
		t.Fatalf("prev from 0 = %d, want 2", ctrl.Index())
	}
	if err := ctrl.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if ctrl.Index() != 0 {
		t.Fatalf("next from 2 = %d, want wrap to 0", ctrl.Index())
	}
}

func TestNavigationStopsPlaybackAndCancelsSpeech(t *testing.T) {
	ctrl, rec := newTestController("a", "b")
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	cancelsBefore := rec.cancelCount()
	if err := ctrl.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if ctrl.IsPlaying() {
		t.Fatal("navigation should stop playback")
	}
	if rec.cancelCount() <= cancelsBefore {
		t.Fatal("navigation should cancel in-flight speech")
	}
	if ctrl.Index() != 1 {
		t.Fatalf("index = %d, want 1", ctrl.Index())
	}
}

func TestTogglePlaySpeaksCurrentScene(t *testing.T) {
	ctrl, rec := newTestController("first line", "second line")
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !ctrl.IsPlaying() {
		t.Fatal("expected playing")
	}
	spoken := rec.spokenScenes()
	if len(spoken) != 1 || spoken[0] != 0 {
		t.Fatalf("spoken = %v, want [0]", spoken)
	}

	cancelsBefore := rec.cancelCount()
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle stop: %v", err)
	}
	if ctrl.IsPlaying() {
		t.Fatal("expected stopped")
	}
	if rec.cancelCount() <= cancelsBefore {
		t.Fatal("stopping should cancel speech")
	}
}

func TestTogglePlayOnEmptyLastSceneRestartsFromZero(t *testing.T) {
	ctrl, rec := newTestController("a", "b", "")
	if err := ctrl.GoToScene(2); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if ctrl.Index() != 0 {
		t.Fatalf("index = %d, want restart at 0", ctrl.Index())
	}
	spoken := rec.spokenScenes()
	if len(spoken) == 0 || spoken[len(spoken)-1] != 0 {
		t.Fatalf("spoken = %v, want scene 0 last", spoken)
	}
}

func TestUtteranceChainAdvancesAndStopsAtEnd(t *testing.T) {
	ctrl, rec := newTestController("a", "b", "c")
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	ctrl.OnSpeechDone(0)
	if ctrl.Index() != 1 || !ctrl.IsPlaying() {
		t.Fatalf("after done(0): index=%d playing=%v", ctrl.Index(), ctrl.IsPlaying())
	}
	ctrl.OnSpeechDone(1)
	if ctrl.Index() != 2 || !ctrl.IsPlaying() {
		t.Fatalf("after done(1): index=%d playing=%v", ctrl.Index(), ctrl.IsPlaying())
	}
	ctrl.OnSpeechDone(2)
	if ctrl.IsPlaying() {
		t.Fatal("chain should stop after the last scene")
	}
	if ctrl.Index() != 2 {
		t.Fatalf("index after final done = %d, want 2", ctrl.Index())
	}
	if spoken := rec.spokenScenes(); len(spoken) != 3 {
		t.Fatalf("spoken = %v, want three utterances", spoken)
	}
}

func TestSpeechErrorStopsWithoutAdvancing(t *testing.T) {
	ctrl, _ := newTestController("a", "b")
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	ctrl.OnSpeechError(0)
	if ctrl.IsPlaying() {
		t.Fatal("error should stop playback")
	}
	if ctrl.Index() != 0 {
		t.Fatalf("index = %d, error must not advance", ctrl.Index())
	}
}

func TestStaleSpeechCompletionsIgnored(t *testing.T) {
	ctrl, _ := newTestController("a", "b", "c")
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	// Completion for a scene that is not current.
	ctrl.OnSpeechDone(2)
	if ctrl.Index() != 0 || !ctrl.IsPlaying() {
		t.Fatalf("stale done changed state: index=%d playing=%v", ctrl.Index(), ctrl.IsPlaying())
	}

	// Completion arriving after playback stopped.
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle stop: %v", err)
	}
	ctrl.OnSpeechDone(0)
	if ctrl.Index() != 0 || ctrl.IsPlaying() {
		t.Fatalf("done after stop changed state: index=%d playing=%v", ctrl.Index(), ctrl.IsPlaying())
	}
}

func TestEmptyBoardRejectsCommands(t *testing.T) {
	ctrl, _ := newTestController()
	if err := ctrl.TogglePlay(); err == nil {
		t.Fatal("expected error playing an empty board")
	}
	if err := ctrl.Next(); err == nil {
		t.Fatal("expected error navigating an empty board")
	}
}

func TestTimeDivisionToggleDoesNotSpeak(t *testing.T) {
	ctrl, rec := newTestController("a", "b")
	ctrl.LoadDuration(20 * time.Second)
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if spoken := rec.spokenScenes(); len(spoken) != 0 {
		t.Fatalf("time-division playback should not synthesize, spoke %v", spoken)
	}
}

func TestResetStopsPlaybackAndRewinds(t *testing.T) {
	ctrl, _ := newTestController("a", "b", "c")
	if err := ctrl.GoToScene(2); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := ctrl.TogglePlay(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	ctrl.Reset(3)
	if ctrl.Index() != 0 || ctrl.IsPlaying() {
		t.Fatalf("after reset: index=%d playing=%v", ctrl.Index(), ctrl.IsPlaying())
	}
}
