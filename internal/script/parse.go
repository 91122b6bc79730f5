package script

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParsePlans decodes a model response into scene plans. The response may be
// a bare JSON array or an object with a "scenes" key, optionally wrapped in
// markdown code fences. When want is positive the entry count must match.
func ParsePlans(raw string, want int) ([]ScenePlan, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty script response")
	}

	var plans []ScenePlan
	if err := json.Unmarshal([]byte(cleaned), &plans); err != nil {
		var wrapper struct {
			Scenes []ScenePlan `json:"scenes"`
		}
		if err2 := json.Unmarshal([]byte(cleaned), &wrapper); err2 != nil {
			return nil, fmt.Errorf("decode script response: %w", err)
		}
		plans = wrapper.Scenes
	}

	if len(plans) == 0 {
		return nil, fmt.Errorf("script response contained no scenes")
	}
	for i := range plans {
		plans[i].ImagePrompt = strings.TrimSpace(plans[i].ImagePrompt)
		plans[i].NarratorScript = strings.TrimSpace(plans[i].NarratorScript)
		if plans[i].ImagePrompt == "" {
			return nil, fmt.Errorf("scene %d has empty image prompt", i)
		}
	}
	if want > 0 && len(plans) != want {
		return nil, fmt.Errorf("script response contained %d scenes, wanted %d", len(plans), want)
	}
	return plans, nil
}

// ParsePrompt extracts a single image prompt from a model response. Accepts
// plain text, quoted text, or a {"prompt": "..."} object.
func ParsePrompt(raw string) (string, error) {
	cleaned := stripFences(raw)
	if strings.HasPrefix(cleaned, "{") {
		var wrapper struct {
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapper); err == nil && wrapper.Prompt != "" {
			cleaned = wrapper.Prompt
		}
	}
	cleaned = strings.Trim(cleaned, `"`)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("empty prompt response")
	}
	return cleaned, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
