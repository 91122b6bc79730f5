package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mattn/go-shellwords"
)

type execRenderer struct {
	cmd []string
	mu  sync.Mutex
}

type execRenderRequest struct {
	Prompt string `json:"prompt"`
}

type execRenderResponse struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type,omitempty"`
}

// NewExecRenderer returns a renderer that shells out to an external command.
// The command receives {"prompt": ...} on stdin and must print
// {"image_base64": ..., "mime_type": ...} on stdout.
func NewExecRenderer(command string) (Renderer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse image command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("image command empty")
	}
	return &execRenderer{cmd: args}, nil
}

func (r *execRenderer) Render(ctx context.Context, prompt string) (Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	input, err := json.Marshal(execRenderRequest{Prompt: prompt})
	if err != nil {
		return Image{}, err
	}

	base := r.cmd[0]
	args := append([]string{}, r.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return Image{}, fmt.Errorf("image exec command failed: %w", err)
	}

	var resp execRenderResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return Image{}, fmt.Errorf("decode image exec response: %w", err)
	}
	if resp.ImageBase64 == "" {
		return Image{}, fmt.Errorf("image exec command returned no image")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.ImageBase64)
	if err != nil {
		return Image{}, fmt.Errorf("decode image payload: %w", err)
	}
	mime := resp.MimeType
	if mime == "" {
		mime = mimetype.Detect(raw).String()
	}
	return Image{Data: raw, MimeType: mime}, nil
}
