package audiofile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV builds a mono 16-bit clip of the given length for fixtures.
func encodeWAV(t *testing.T, sampleRate int, duration time.Duration) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	samples := int(float64(sampleRate) * duration.Seconds())
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, samples),
	}
	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func TestStoreProbesWAVDuration(t *testing.T) {
	prober := NewProber("")
	data := encodeWAV(t, 8000, 2*time.Second)

	ref, err := prober.Store(context.Background(), data)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	t.Cleanup(ref.Release)

	if ref.ID == "" {
		t.Fatal("ref has no id")
	}
	if ref.Mime != "audio/wav" {
		t.Fatalf("unexpected mime %q", ref.Mime)
	}
	diff := ref.Duration - 2*time.Second
	if diff < 0 {
		diff = -diff
	}
	if diff > 50*time.Millisecond {
		t.Fatalf("probed duration %v, wanted ~2s", ref.Duration)
	}
	if _, err := os.Stat(ref.Path); err != nil {
		t.Fatalf("backing file missing: %v", err)
	}
}

func TestStoreRejectsNonAudio(t *testing.T) {
	prober := NewProber("")
	if _, err := prober.Store(context.Background(), []byte("not audio at all")); err == nil {
		t.Fatal("expected rejection for text payload")
	}
	if _, err := prober.Store(context.Background(), nil); err == nil {
		t.Fatal("expected rejection for empty payload")
	}
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	prober := NewProber("")
	data := encodeWAV(t, 8000, time.Second)

	ref, err := prober.Store(context.Background(), data)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	path := ref.Path

	ref.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("backing file survived Release")
	}
	ref.Release()
}
