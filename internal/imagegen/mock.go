package imagegen

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	mockWidth  = 640
	mockHeight = 360
	mockStamp  = 96
)

type mockRenderer struct{}

// NewMockRenderer returns a renderer that paints a deterministic gradient
// seeded by the prompt and stamps a QR code of the prompt text into the
// corner, so distinct prompts yield visibly distinct frames.
func NewMockRenderer() Renderer { return &mockRenderer{} }

func (r *mockRenderer) Render(ctx context.Context, prompt string) (Image, error) {
	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
		return Image{}, ctx.Err()
	}

	h := fnv.New32a()
	h.Write([]byte(prompt))
	seed := h.Sum32()

	top := color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(seed >> 16), A: 255}
	bottom := color.RGBA{R: uint8(seed >> 16), G: uint8(seed), B: uint8(seed >> 8), A: 255}

	canvas := image.NewRGBA(image.Rect(0, 0, mockWidth, mockHeight))
	for y := 0; y < mockHeight; y++ {
		blend := float64(y) / float64(mockHeight-1)
		row := color.RGBA{
			R: lerp(top.R, bottom.R, blend),
			G: lerp(top.G, bottom.G, blend),
			B: lerp(top.B, bottom.B, blend),
			A: 255,
		}
		for x := 0; x < mockWidth; x++ {
			canvas.SetRGBA(x, y, row)
		}
	}

	if stamp, err := qrcode.New(truncate(prompt, 256), qrcode.Medium); err == nil {
		stamp.DisableBorder = true
		tile := stamp.Image(mockStamp)
		corner := image.Rect(mockWidth-mockStamp-8, mockHeight-mockStamp-8, mockWidth-8, mockHeight-8)
		draw.Draw(canvas, corner, tile, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return Image{}, err
	}
	return Image{Data: buf.Bytes(), MimeType: "image/jpeg"}, nil
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
