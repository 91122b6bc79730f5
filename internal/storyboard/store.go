package storyboard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reellabs/reel-core/internal/protocol"
)

// ChangeKind classifies a store mutation for subscribers.
type ChangeKind int

const (
	// ChangeBoard means the scene list itself was replaced.
	ChangeBoard ChangeKind = iota
	// ChangeScene means a single scene was patched in place.
	ChangeScene
	// ChangeTransient means index, playback, loading, or error state moved.
	ChangeTransient
)

// Change describes one store mutation. SceneID is only meaningful for
// ChangeScene.
type Change struct {
	Kind    ChangeKind
	SceneID int
}

type imageBlob struct {
	data []byte
	mime string
}

// Store owns the storyboard and its transient state. Every mutation is
// announced through the notifier so observers (bus, gateway clients) can
// re-render without polling.
type Store struct {
	mu           sync.RWMutex
	scenes       []Scene
	images       map[int]imageBlob
	currentIndex int
	playing      bool
	regenID      int
	loading      bool
	progress     string
	lastError    string
	editorError  string
	notify       func(Change)
	log          *slog.Logger
}

func New(log *slog.Logger) *Store {
	return &Store{
		images:  make(map[int]imageBlob),
		regenID: -1,
		log:     log.With(slog.String("component", "storyboard")),
	}
}

// SetNotifier installs the change callback. It is called outside the store
// lock, after the mutation is visible.
func (s *Store) SetNotifier(fn func(Change)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

func (s *Store) emit(c Change) {
	s.mu.RLock()
	fn := s.notify
	s.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

// Reset replaces the whole board. Scene ids are reassigned 0..N-1 in seed
// order, playback stops, the index returns to 0, and both error surfaces
// clear. Images from the previous board are discarded.
func (s *Store) Reset(seeds []SceneSeed) {
	s.mu.Lock()
	s.scenes = make([]Scene, 0, len(seeds))
	for i, seed := range seeds {
		s.scenes = append(s.scenes, Scene{
			ID:             i,
			ImagePrompt:    seed.ImagePrompt,
			NarratorScript: seed.NarratorScript,
		})
	}
	s.images = make(map[int]imageBlob)
	s.currentIndex = 0
	s.playing = false
	s.regenID = -1
	s.lastError = ""
	s.editorError = ""
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeBoard})
}

// Clear empties the board.
func (s *Store) Clear() {
	s.Reset(nil)
}

// Scenes returns a copy of the scene list.
func (s *Store) Scenes() []Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Scene, len(s.scenes))
	copy(out, s.scenes)
	return out
}

// SceneByID looks a scene up by its stable id.
func (s *Store) SceneByID(id int) (Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scenes {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scene{}, false
}

// Len reports the scene count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scenes)
}

// SetNarration replaces one scene's narration text in place. The image
// reference is left untouched.
func (s *Store) SetNarration(id int, text string) error {
	if err := s.patchScene(id, func(sc *Scene) { sc.NarratorScript = text }); err != nil {
		return err
	}
	s.clearEditorError()
	s.emit(Change{Kind: ChangeScene, SceneID: id})
	return nil
}

// SetPrompt replaces one scene's image prompt in place.
func (s *Store) SetPrompt(id int, text string) error {
	if err := s.patchScene(id, func(sc *Scene) { sc.ImagePrompt = text }); err != nil {
		return err
	}
	s.clearEditorError()
	s.emit(Change{Kind: ChangeScene, SceneID: id})
	return nil
}

// SetImage stores rendered bytes for exactly one scene, patched by id.
// Other scenes are untouched. A previous image for the id is replaced with
// no history kept.
func (s *Store) SetImage(id int, data []byte, mime string) error {
	err := s.patchScene(id, func(sc *Scene) { sc.ImageURL = ImagePath(id) })
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.images[id] = imageBlob{data: data, mime: mime}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeScene, SceneID: id})
	return nil
}

// Image returns the rendered bytes for a scene, if any.
func (s *Store) Image(id int) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.images[id]
	if !ok {
		return nil, "", false
	}
	return blob.data, blob.mime, true
}

func (s *Store) patchScene(id int, apply func(*Scene)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.scenes {
		if s.scenes[i].ID == id {
			apply(&s.scenes[i])
			return nil
		}
	}
	return fmt.Errorf("unknown scene id %d", id)
}

// SetCurrentIndex moves the cursor. Out-of-range values are rejected;
// wrap-around is the playback controller's job.
func (s *Store) SetCurrentIndex(i int) error {
	s.mu.Lock()
	if len(s.scenes) == 0 {
		s.mu.Unlock()
		if i == 0 {
			return nil
		}
		return fmt.Errorf("board is empty")
	}
	if i < 0 || i >= len(s.scenes) {
		s.mu.Unlock()
		return fmt.Errorf("scene index %d out of range", i)
	}
	changed := s.currentIndex != i
	s.currentIndex = i
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeTransient})
	}
	return nil
}

func (s *Store) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentIndex
}

func (s *Store) SetPlaying(playing bool) {
	s.mu.Lock()
	changed := s.playing != playing
	s.playing = playing
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeTransient})
	}
}

func (s *Store) Playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

// BeginRegeneration marks a scene as having its image regenerated. At most
// one scene may be marked at a time, and never while a full run is loading.
func (s *Store) BeginRegeneration(id int) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return fmt.Errorf("generation already in progress")
	}
	if s.regenID >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("scene %d is already regenerating", s.regenID)
	}
	found := false
	for _, sc := range s.scenes {
		if sc.ID == id {
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("unknown scene id %d", id)
	}
	s.regenID = id
	s.editorError = ""
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeTransient})
	return nil
}

// EndRegeneration clears the marker if it matches id.
func (s *Store) EndRegeneration(id int) {
	s.mu.Lock()
	changed := s.regenID == id
	if changed {
		s.regenID = -1
	}
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeTransient})
	}
}

// RegeneratingID reports which scene, if any, is regenerating.
func (s *Store) RegeneratingID() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.regenID < 0 {
		return 0, false
	}
	return s.regenID, true
}

// BeginLoading flips the loading flag and clears stale errors, the start of
// every pipeline action.
func (s *Store) BeginLoading(msg string) {
	s.mu.Lock()
	s.loading = true
	s.progress = msg
	s.lastError = ""
	s.editorError = ""
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeTransient})
}

// SetProgress updates the human-readable progress message.
func (s *Store) SetProgress(msg string) {
	s.mu.Lock()
	changed := s.progress != msg
	s.progress = msg
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeTransient})
	}
}

// EndLoading clears the loading flag and progress message.
func (s *Store) EndLoading() {
	s.mu.Lock()
	s.loading = false
	s.progress = ""
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeTransient})
}

// Loading reports the loading flag and current progress message.
func (s *Store) Loading() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading, s.progress
}

// SetError records the board-level error message.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeTransient})
}

func (s *Store) ClearError() {
	s.mu.Lock()
	changed := s.lastError != ""
	s.lastError = ""
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeTransient})
	}
}

func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// SetEditorError records the error scoped to the editor panel.
func (s *Store) SetEditorError(msg string) {
	s.mu.Lock()
	s.editorError = msg
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeTransient})
}

func (s *Store) clearEditorError() {
	s.mu.Lock()
	s.editorError = ""
	s.mu.Unlock()
}

func (s *Store) EditorError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editorError
}

// Snapshot builds the wire form of the whole board for observers.
func (s *Store) Snapshot() protocol.BoardSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scenes := make([]protocol.Scene, 0, len(s.scenes))
	for _, sc := range s.scenes {
		scenes = append(scenes, protocol.Scene{
			ID:             sc.ID,
			ImagePrompt:    sc.ImagePrompt,
			NarratorScript: sc.NarratorScript,
			ImageURL:       sc.ImageURL,
		})
	}
	snap := protocol.BoardSnapshot{
		Scenes:       scenes,
		CurrentIndex: s.currentIndex,
		Playing:      s.playing,
		Loading:      s.loading,
		Progress:     s.progress,
		LastError:    s.lastError,
		EditorError:  s.editorError,
		Timestamp:    time.Now().UTC(),
	}
	if s.regenID >= 0 {
		id := s.regenID
		snap.RegeneratingID = &id
	}
	return snap
}
