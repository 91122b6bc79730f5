package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/reellabs/reel-core/internal/config"
)

// Utterance is one synthesized narration clip.
type Utterance struct {
	WAV        []byte
	Duration   time.Duration
	SampleRate int
}

// Synthesizer renders narration text into an utterance.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Utterance, error)
}

// New selects a synthesizer implementation from config.
func New(cfg config.SpeechConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.WordsPerMinute), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate)
	default:
		return nil, fmt.Errorf("unknown speech mode %q", cfg.Mode)
	}
}
