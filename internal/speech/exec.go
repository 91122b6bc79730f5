package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	mu         sync.Mutex
}

type execSpeechRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
}

type execSpeechResponse struct {
	WAVBase64  string `json:"wav_base64"`
	DurationMS int64  `json:"duration_ms"`
}

// NewExecSynth returns a synthesizer that shells out to an external command.
// The command receives {"text", "voice", "sample_rate"} on stdin and must
// print {"wav_base64", "duration_ms"} on stdout.
func NewExecSynth(command string, sampleRate int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, text, voice string) (Utterance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	input, err := json.Marshal(execSpeechRequest{Text: text, Voice: voice, SampleRate: e.sampleRate})
	if err != nil {
		return Utterance{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return Utterance{}, fmt.Errorf("speech command failed: %w", err)
	}

	var resp execSpeechResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return Utterance{}, fmt.Errorf("decode speech response: %w", err)
	}
	if resp.WAVBase64 == "" {
		return Utterance{}, fmt.Errorf("speech command returned no audio")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.WAVBase64)
	if err != nil {
		return Utterance{}, fmt.Errorf("decode speech payload: %w", err)
	}

	duration := time.Duration(resp.DurationMS) * time.Millisecond
	if duration <= 0 {
		dec := wav.NewDecoder(bytes.NewReader(raw))
		if d, err := dec.Duration(); err == nil {
			duration = d
		}
	}
	if duration <= 0 {
		return Utterance{}, fmt.Errorf("speech command reported no duration")
	}
	return Utterance{WAV: raw, Duration: duration, SampleRate: e.sampleRate}, nil
}
