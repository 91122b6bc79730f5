package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/reellabs/reel-core/internal/config"
)

const boardSystemPrompt = `You are a storyboard writer. Given a topic and a scene count, respond with ONLY a JSON array. Each element must be an object with exactly two string fields: "image_prompt" (a vivid visual description for an illustrator) and "narrator_script" (one or two spoken sentences). Produce exactly the requested number of elements. No prose, no markdown.`

const lineSystemPrompt = `You are a storyboard art director. Given one line of narration, respond with ONLY a single vivid image prompt describing the illustration for that line. No quotes, no markdown, no explanations.`

type openaiGenerator struct {
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewOpenAIGenerator talks to any OpenAI-compatible chat completions
// endpoint (hosted APIs, local gateways, Ollama's compatibility layer).
func NewOpenAIGenerator(cfg config.ScriptConfig) Generator {
	return &openaiGenerator{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      http.DefaultClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *openaiGenerator) GenerateBoard(ctx context.Context, topic string, sceneCount int) ([]ScenePlan, error) {
	user := fmt.Sprintf("Topic: %s\nScene count: %d", topic, sceneCount)
	content, err := g.complete(ctx, boardSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	return ParsePlans(content, sceneCount)
}

func (g *openaiGenerator) DerivePrompt(ctx context.Context, line string) (string, error) {
	content, err := g.complete(ctx, lineSystemPrompt, line)
	if err != nil {
		return "", err
	}
	return ParsePrompt(content)
}

func (g *openaiGenerator) complete(ctx context.Context, system, user string) (string, error) {
	payload := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("script api returned status %s", resp.Status)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode script api response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("script api returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
