package script

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) GenerateBoard(ctx context.Context, topic string, sceneCount int) ([]ScenePlan, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	topic = strings.TrimSpace(topic)
	plans := make([]ScenePlan, 0, sceneCount)
	for i := 0; i < sceneCount; i++ {
		plans = append(plans, ScenePlan{
			ImagePrompt:    fmt.Sprintf("Storyboard illustration %d of %d: %s", i+1, sceneCount, topic),
			NarratorScript: fmt.Sprintf("Part %d of the story about %s.", i+1, topic),
		})
	}
	return plans, nil
}

func (m *mockGenerator) DerivePrompt(ctx context.Context, line string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return "Storyboard illustration of: " + strings.TrimSpace(line), nil
}
