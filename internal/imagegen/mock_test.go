package imagegen

import (
	"bytes"
	"context"
	"image/jpeg"
	"testing"
)

func TestMockRendererProducesJPEG(t *testing.T) {
	r := NewMockRenderer()
	img, err := r.Render(context.Background(), "a lighthouse in fog")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if img.MimeType != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %q", img.MimeType)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("output is not a decodable JPEG: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != mockWidth || bounds.Dy() != mockHeight {
		t.Fatalf("unexpected dimensions %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestMockRendererIsDeterministic(t *testing.T) {
	r := NewMockRenderer()
	first, err := r.Render(context.Background(), "same prompt")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	second, err := r.Render(context.Background(), "same prompt")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("identical prompts produced different images")
	}
}

func TestMockRendererVariesByPrompt(t *testing.T) {
	r := NewMockRenderer()
	a, err := r.Render(context.Background(), "prompt one")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	b, err := r.Render(context.Background(), "prompt two")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if bytes.Equal(a.Data, b.Data) {
		t.Fatal("different prompts produced identical images")
	}
}

func TestMockRendererHonorsContext(t *testing.T) {
	r := NewMockRenderer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, "anything"); err == nil {
		t.Fatal("expected context error")
	}
}
