package speech

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type mockSynth struct {
	sampleRate     int
	wordsPerMinute int
}

// NewMockSynth returns a synthesizer that emits silent WAV clips whose
// length tracks the word count at the configured speaking rate.
func NewMockSynth(sampleRate, wordsPerMinute int) Synthesizer {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	if wordsPerMinute <= 0 {
		wordsPerMinute = 160
	}
	return &mockSynth{sampleRate: sampleRate, wordsPerMinute: wordsPerMinute}
}

func (m *mockSynth) Synthesize(ctx context.Context, text, voice string) (Utterance, error) {
	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
		return Utterance{}, ctx.Err()
	}

	words := len(strings.Fields(text))
	if words == 0 {
		return Utterance{}, fmt.Errorf("nothing to speak")
	}
	duration := time.Duration(float64(words) / float64(m.wordsPerMinute) * float64(time.Minute))
	if duration < 500*time.Millisecond {
		duration = 500 * time.Millisecond
	}

	data, err := silentWAV(m.sampleRate, duration)
	if err != nil {
		return Utterance{}, err
	}
	return Utterance{WAV: data, Duration: duration, SampleRate: m.sampleRate}, nil
}

// silentWAV encodes a mono 16-bit clip of zeros. The wav encoder needs a
// seekable target to finalize its header, so the clip goes through a temp
// file before the bytes come back.
func silentWAV(sampleRate int, duration time.Duration) ([]byte, error) {
	file, err := os.CreateTemp(os.TempDir(), "reel_speech_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	name := file.Name()
	defer os.Remove(name)

	samples := int(float64(sampleRate) * duration.Seconds())
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, samples),
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		file.Close()
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}
