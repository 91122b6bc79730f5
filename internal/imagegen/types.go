package imagegen

import (
	"context"
	"fmt"

	"github.com/reellabs/reel-core/internal/config"
)

// Image is one rendered frame with its encoded bytes.
type Image struct {
	Data     []byte
	MimeType string
}

// Renderer turns an image prompt into a single encoded image.
type Renderer interface {
	Render(ctx context.Context, prompt string) (Image, error)
}

// New selects a renderer implementation from config.
func New(cfg config.ImageConfig) (Renderer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRenderer(), nil
	case "openai":
		return NewOpenAIRenderer(cfg), nil
	case "exec":
		return NewExecRenderer(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown image mode %q", cfg.Mode)
	}
}
