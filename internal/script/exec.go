package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execGenerator struct {
	cmd []string
	mu  sync.Mutex
}

type execBoardRequest struct {
	Action     string `json:"action"`
	Topic      string `json:"topic,omitempty"`
	SceneCount int    `json:"scene_count,omitempty"`
	Line       string `json:"line,omitempty"`
}

type execBoardResponse struct {
	Scenes []ScenePlan `json:"scenes,omitempty"`
	Prompt string      `json:"prompt,omitempty"`
}

func NewExecGenerator(command string) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse script command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("script command empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) GenerateBoard(ctx context.Context, topic string, sceneCount int) ([]ScenePlan, error) {
	resp, err := g.invoke(ctx, execBoardRequest{Action: "board", Topic: topic, SceneCount: sceneCount})
	if err != nil {
		return nil, err
	}
	if len(resp.Scenes) == 0 {
		return nil, fmt.Errorf("script command returned no scenes")
	}
	if len(resp.Scenes) != sceneCount {
		return nil, fmt.Errorf("script command returned %d scenes, wanted %d", len(resp.Scenes), sceneCount)
	}
	return resp.Scenes, nil
}

func (g *execGenerator) DerivePrompt(ctx context.Context, line string) (string, error) {
	resp, err := g.invoke(ctx, execBoardRequest{Action: "prompt", Line: line})
	if err != nil {
		return "", err
	}
	if resp.Prompt == "" {
		return "", fmt.Errorf("script command returned empty prompt")
	}
	return resp.Prompt, nil
}

func (g *execGenerator) invoke(ctx context.Context, req execBoardRequest) (execBoardResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	input, err := json.Marshal(req)
	if err != nil {
		return execBoardResponse{}, err
	}

	base := g.cmd[0]
	args := append([]string{}, g.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return execBoardResponse{}, fmt.Errorf("script exec command failed: %w", err)
	}

	var resp execBoardResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return execBoardResponse{}, fmt.Errorf("decode script exec response: %w", err)
	}
	return resp, nil
}
