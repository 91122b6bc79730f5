package script

import (
	"context"
	"fmt"

	"github.com/reellabs/reel-core/internal/config"
)

// ScenePlan is one generated (prompt, narration) pair.
type ScenePlan struct {
	ImagePrompt    string `json:"image_prompt"`
	NarratorScript string `json:"narrator_script"`
}

// Generator defines a pluggable script-generation backend.
type Generator interface {
	// GenerateBoard returns the full set of scene plans for a topic in one
	// call. Implementations must return exactly sceneCount plans or an error.
	GenerateBoard(ctx context.Context, topic string, sceneCount int) ([]ScenePlan, error)
	// DerivePrompt returns a single image prompt for one narration line.
	DerivePrompt(ctx context.Context, line string) (string, error)
}

// New selects a generator implementation from config.
func New(cfg config.ScriptConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "openai":
		return NewOpenAIGenerator(cfg), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown script mode %q", cfg.Mode)
	}
}
