package script

import (
	"context"
	"strings"
	"testing"
)

func TestParsePlansBareArray(t *testing.T) {
	raw := `[{"image_prompt":"a dog","narrator_script":"The dog runs."},{"image_prompt":"a cat","narrator_script":"The cat naps."}]`
	plans, err := ParsePlans(raw, 2)
	if err != nil {
		t.Fatalf("ParsePlans failed: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].ImagePrompt != "a dog" || plans[1].NarratorScript != "The cat naps." {
		t.Fatalf("unexpected plans: %+v", plans)
	}
}

func TestParsePlansWrapperObject(t *testing.T) {
	raw := `{"scenes":[{"image_prompt":"a dog","narrator_script":"The dog runs."}]}`
	plans, err := ParsePlans(raw, 1)
	if err != nil {
		t.Fatalf("ParsePlans failed: %v", err)
	}
	if len(plans) != 1 || plans[0].ImagePrompt != "a dog" {
		t.Fatalf("unexpected plans: %+v", plans)
	}
}

func TestParsePlansStripsCodeFences(t *testing.T) {
	raw := "```json\n[{\"image_prompt\":\"a dog\",\"narrator_script\":\"Woof.\"}]\n```"
	plans, err := ParsePlans(raw, 1)
	if err != nil {
		t.Fatalf("ParsePlans failed: %v", err)
	}
	if plans[0].NarratorScript != "Woof." {
		t.Fatalf("unexpected narration: %q", plans[0].NarratorScript)
	}
}

func TestParsePlansCountMismatch(t *testing.T) {
	raw := `[{"image_prompt":"a dog","narrator_script":"Woof."}]`
	if _, err := ParsePlans(raw, 3); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestParsePlansRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"scenes":[]}`, `[]`, `[{"image_prompt":"","narrator_script":"x"}]`} {
		if _, err := ParsePlans(raw, 0); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParsePromptVariants(t *testing.T) {
	cases := map[string]string{
		"a red barn at dusk":              "a red barn at dusk",
		`"a red barn at dusk"`:            "a red barn at dusk",
		`{"prompt":"a red barn at dusk"}`: "a red barn at dusk",
		"```\na red barn at dusk\n```":    "a red barn at dusk",
	}
	for raw, want := range cases {
		got, err := ParsePrompt(raw)
		if err != nil {
			t.Fatalf("ParsePrompt(%q) failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParsePrompt(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestParsePromptRejectsEmpty(t *testing.T) {
	if _, err := ParsePrompt("   "); err == nil {
		t.Fatal("expected error for blank prompt")
	}
}

func TestMockGeneratorBoard(t *testing.T) {
	gen := NewMockGenerator()
	plans, err := gen.GenerateBoard(context.Background(), "space travel", 4)
	if err != nil {
		t.Fatalf("GenerateBoard failed: %v", err)
	}
	if len(plans) != 4 {
		t.Fatalf("expected 4 plans, got %d", len(plans))
	}
	for i, p := range plans {
		if p.ImagePrompt == "" || p.NarratorScript == "" {
			t.Fatalf("plan %d has empty fields: %+v", i, p)
		}
		if !strings.Contains(p.ImagePrompt, "space travel") {
			t.Fatalf("plan %d prompt does not mention topic: %q", i, p.ImagePrompt)
		}
	}
}

func TestMockGeneratorDerivePrompt(t *testing.T) {
	gen := NewMockGenerator()
	prompt, err := gen.DerivePrompt(context.Background(), "  The hero crosses the river.  ")
	if err != nil {
		t.Fatalf("DerivePrompt failed: %v", err)
	}
	if !strings.Contains(prompt, "The hero crosses the river.") {
		t.Fatalf("unexpected prompt: %q", prompt)
	}
}

func TestMockGeneratorHonorsContext(t *testing.T) {
	gen := NewMockGenerator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gen.GenerateBoard(ctx, "anything", 2); err == nil {
		t.Fatal("expected context error")
	}
}
