package playback

import (
	"fmt"
	"sync"
	"time"
)

// Mode selects how the current scene index advances.
type Mode string

const (
	// ModeUtterance chains speech synthesis: each scene's narration plays
	// and its completion advances to the next scene.
	ModeUtterance Mode = "utterance"
	// ModeTimeDivision slices a known audio duration evenly across scenes
	// and derives the index from the playback clock.
	ModeTimeDivision Mode = "time-division"
)

// State is the controller's externally visible position.
type State struct {
	Index    int
	Playing  bool
	Mode     Mode
	PerScene time.Duration
}

// Hooks are the controller's effects. They are invoked with the controller
// lock held and must not call back into it.
type Hooks struct {
	// Narration returns scene i's narration text, or "" when out of range.
	Narration func(i int) string
	// Speak starts synthesis for scene i.
	Speak func(i int, text string)
	// CancelSpeech aborts whatever utterance is in flight.
	CancelSpeech func()
	// Seek asks the audio player to jump to an offset.
	Seek func(offset time.Duration)
	// Publish announces every index/playing/mode change.
	Publish func(s State)
}

// Controller maps a continuous time source or discrete utterance
// completions onto a discrete scene index. One controller serves one board
// at a time; Reset rebinds it when the board is replaced.
type Controller struct {
	mu         sync.Mutex
	hooks      Hooks
	mode       Mode
	sceneCount int
	duration   time.Duration
	perScene   time.Duration
	index      int
	playing    bool
}

func NewController(hooks Hooks) *Controller {
	return &Controller{hooks: hooks, mode: ModeUtterance}
}

// Reset rebinds the controller to a fresh board: playback stops, any
// utterance is canceled, the index returns to 0, and the per-scene slice is
// forgotten so the next duration load recomputes it.
func (c *Controller) Reset(sceneCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelSpeech()
	c.mode = ModeUtterance
	c.sceneCount = sceneCount
	c.duration = 0
	c.perScene = 0
	c.index = 0
	c.playing = false
	c.publish()
}

// LoadDuration switches the board to time-division playback. The per-scene
// slice is computed exactly once per board; later loads are ignored even if
// the narration was edited meanwhile.
func (c *Controller) LoadDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 || c.sceneCount == 0 {
		return
	}
	if c.perScene != 0 {
		return
	}
	c.duration = d
	c.perScene = d / time.Duration(c.sceneCount)
	c.mode = ModeTimeDivision
	c.publish()
}

// Tick maps an elapsed audio position onto the scene index, clamped to the
// last scene. Only index changes are published.
func (c *Controller) Tick(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeTimeDivision || c.perScene <= 0 || c.sceneCount == 0 {
		return
	}
	idx := int(elapsed / c.perScene)
	if idx >= c.sceneCount {
		idx = c.sceneCount - 1
	}
	if idx < 0 {
		idx = 0
	}
	if idx != c.index {
		c.index = idx
		c.publish()
	}
}

// HandleEnded reacts to the audio source running out: the index snaps to
// the last scene and playback stops.
func (c *Controller) HandleEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeTimeDivision || c.sceneCount == 0 {
		return
	}
	changed := c.playing || c.index != c.sceneCount-1
	c.index = c.sceneCount - 1
	c.playing = false
	if changed {
		c.publish()
	}
}

// GoToScene stops playback and jumps to scene i, wrapping modulo the scene
// count in both directions.
func (c *Controller) GoToScene(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goTo(i)
}

// Next advances one scene, wrapping to 0 past the end.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goTo(c.index + 1)
}

// Prev steps back one scene, wrapping to the last scene before 0.
func (c *Controller) Prev() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goTo(c.index - 1)
}

func (c *Controller) goTo(i int) error {
	if c.sceneCount == 0 {
		return fmt.Errorf("no scenes to navigate")
	}
	if c.mode == ModeTimeDivision && c.perScene <= 0 {
		return fmt.Errorf("audio duration not loaded yet")
	}
	c.cancelSpeech()
	c.playing = false
	wrapped := ((i % c.sceneCount) + c.sceneCount) % c.sceneCount
	c.index = wrapped
	if c.mode == ModeTimeDivision {
		c.seek(time.Duration(wrapped) * c.perScene)
	}
	c.publish()
	return nil
}

// TogglePlay stops when playing. Otherwise it starts: in time-division mode
// the player's clock takes over from here; in utterance mode the current
// scene's narration is spoken, except that standing on a last scene with no
// narration restarts from scene 0 instead of replaying an empty utterance.
func (c *Controller) TogglePlay() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing {
		c.cancelSpeech()
		c.playing = false
		c.publish()
		return nil
	}

	if c.sceneCount == 0 {
		return fmt.Errorf("no scenes to play")
	}

	if c.mode == ModeTimeDivision {
		if c.perScene <= 0 {
			return fmt.Errorf("audio duration not loaded yet")
		}
		c.playing = true
		c.publish()
		return nil
	}

	c.cancelSpeech()
	if c.index == c.sceneCount-1 && c.narration(c.index) == "" {
		c.index = 0
	}
	c.playing = true
	c.publish()
	c.speak(c.index)
	return nil
}

// OnSpeechDone advances the utterance chain. Completions for a scene other
// than the current one, or arriving after playback stopped, are stale and
// ignored.
func (c *Controller) OnSpeechDone(sceneID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeUtterance || !c.playing || sceneID != c.index {
		return
	}
	if c.index == c.sceneCount-1 {
		c.playing = false
		c.publish()
		return
	}
	c.index++
	c.publish()
	c.speak(c.index)
}

// OnSpeechError stops the chain without advancing.
func (c *Controller) OnSpeechError(sceneID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeUtterance || !c.playing || sceneID != c.index {
		return
	}
	c.playing = false
	c.publish()
}

// Teardown stops playback and cancels any utterance.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelSpeech()
	if c.playing {
		c.playing = false
		c.publish()
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Controller) PerScene() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perScene
}

func (c *Controller) state() State {
	return State{Index: c.index, Playing: c.playing, Mode: c.mode, PerScene: c.perScene}
}

func (c *Controller) publish() {
	if c.hooks.Publish != nil {
		c.hooks.Publish(c.state())
	}
}

func (c *Controller) speak(i int) {
	if c.hooks.Speak != nil {
		text := c.narration(i)
		c.hooks.Speak(i, text)
	}
}

func (c *Controller) cancelSpeech() {
	if c.hooks.CancelSpeech != nil {
		c.hooks.CancelSpeech()
	}
}

func (c *Controller) seek(offset time.Duration) {
	if c.hooks.Seek != nil {
		c.hooks.Seek(offset)
	}
}

func (c *Controller) narration(i int) string {
	if c.hooks.Narration == nil {
		return ""
	}
	return c.hooks.Narration(i)
}
