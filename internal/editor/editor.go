// Package editor applies user edits to the current storyboard: narration
// rewrites, prompt rewrites, and single-scene image regeneration requests.
package editor

import (
	"fmt"
	"log/slog"

	"github.com/reellabs/reel-core/internal/storyboard"
)

// Regenerator triggers a one-scene image rebuild.
type Regenerator interface {
	RegenerateScene(id int) error
}

type Editor struct {
	store  *storyboard.Store
	regen  Regenerator
	logger *slog.Logger
}

func New(store *storyboard.Store, regen Regenerator, log *slog.Logger) *Editor {
	return &Editor{
		store:  store,
		regen:  regen,
		logger: log.With(slog.String("component", "editor")),
	}
}

// ScenePatch holds the optional per-field updates for one scene. Nil fields
// are left as they are.
type ScenePatch struct {
	NarratorScript *string
	ImagePrompt    *string
}

// ApplyPatch updates the named scene in place. The scene keeps its rendered
// image until the caller explicitly asks for a regeneration.
func (e *Editor) ApplyPatch(id int, patch ScenePatch) error {
	if patch.NarratorScript == nil && patch.ImagePrompt == nil {
		return fmt.Errorf("patch contains no fields")
	}
	if _, ok := e.store.SceneByID(id); !ok {
		return fmt.Errorf("unknown scene id %d", id)
	}
	if patch.NarratorScript != nil {
		if err := e.store.SetNarration(id, *patch.NarratorScript); err != nil {
			return err
		}
	}
	if patch.ImagePrompt != nil {
		if err := e.store.SetPrompt(id, *patch.ImagePrompt); err != nil {
			return err
		}
	}
	e.logger.Debug("scene patched",
		slog.Int("scene_id", id),
		slog.Bool("narration", patch.NarratorScript != nil),
		slog.Bool("prompt", patch.ImagePrompt != nil))
	return nil
}

// RegenerateImage re-renders one scene's image with its current prompt.
func (e *Editor) RegenerateImage(id int) error {
	return e.regen.RegenerateScene(id)
}
