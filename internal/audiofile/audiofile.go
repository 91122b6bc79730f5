package audiofile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// Ref is a background-audio upload held on disk until the board that owns
// it is replaced or its run fails.
type Ref struct {
	ID       string
	Path     string
	Mime     string
	Duration time.Duration
}

// Release removes the backing file. Safe to call more than once; the ref
// itself stays immutable so concurrent readers never see a half-released
// state.
func (r *Ref) Release() {
	if r == nil || r.Path == "" {
		return
	}
	_ = os.Remove(r.Path)
}

// Prober extracts durations from uploaded audio.
type Prober struct {
	ffprobePath string
}

func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

// Store sniffs the payload, rejects non-audio, writes it to a temp file, and
// probes its duration. The caller owns the returned ref and must Release it.
func (p *Prober) Store(ctx context.Context, data []byte) (*Ref, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio upload")
	}
	kind := mimetype.Detect(data)
	if !strings.HasPrefix(kind.String(), "audio/") {
		return nil, fmt.Errorf("unsupported audio type %q", kind.String())
	}

	file, err := os.CreateTemp(os.TempDir(), "reel_audio_*"+kind.Extension())
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return nil, err
	}

	ref := &Ref{ID: uuid.NewString(), Path: file.Name(), Mime: kind.String()}
	duration, err := p.probe(ctx, data, ref.Path)
	if err != nil {
		ref.Release()
		return nil, err
	}
	ref.Duration = duration
	return ref, nil
}

// probe tries the wav decoder first and falls back to ffprobe for
// compressed formats.
func (p *Prober) probe(ctx context.Context, data []byte, path string) (time.Duration, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if dec.IsValidFile() {
		d, err := dec.Duration()
		if err == nil && d > 0 {
			return d, nil
		}
	}
	return p.ffprobe(ctx, path)
}

func (p *Prober) ffprobe(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("probe audio duration: %w", err)
	}
	var seconds float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &seconds); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("audio has no measurable duration")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
