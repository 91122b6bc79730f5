package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"

	"github.com/reellabs/reel-core/internal/config"
)

type openaiRenderer struct {
	endpoint string
	apiKey   string
	model    string
	size     string
	client   *http.Client
}

// NewOpenAIRenderer returns a renderer backed by an OpenAI-compatible
// images endpoint.
func NewOpenAIRenderer(cfg config.ImageConfig) Renderer {
	return &openaiRenderer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		size:     cfg.Size,
		client:   &http.Client{},
	}
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (r *openaiRenderer) Render(ctx context.Context, prompt string) (Image, error) {
	payload, err := json.Marshal(imageRequest{
		Model:          r.model,
		Prompt:         prompt,
		N:              1,
		Size:           r.size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return Image{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return Image{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Image{}, err
	}
	if resp.StatusCode >= 300 {
		return Image{}, fmt.Errorf("image endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var decoded imageResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Image{}, fmt.Errorf("decode image response: %w", err)
	}
	if len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
		return Image{}, fmt.Errorf("image endpoint returned no images")
	}

	raw, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return Image{}, fmt.Errorf("decode image payload: %w", err)
	}
	return Image{Data: raw, MimeType: mimetype.Detect(raw).String()}, nil
}
