package service

import (
	"strings"
	"testing"

	"github.com/botdeck/botdeck-go/internal/model"
)

func testProfile() *model.BotProfile {
	return &model.BotProfile{
		BotID:           "bot-1",
		Persona:         "Friendly and concise.",
		Mission:         "Help customers of Acme with orders and returns.",
		FallbackMessage: "Sorry, I can only answer questions about Acme.",
		BusinessName:    "Acme Inc",
	}
}

func TestPromptBuildContainsContracts(t *testing.T) {
	b := NewPromptBuilder(1000)
	prompt := b.Build(testProfile(), nil)

	musts := []string{
		"official assistant of Acme Inc",
		"Never present yourself as a generic AI",
		"KNOWLEDGE BOUNDARY",
		"Friendly and concise.",
		"Help customers of Acme with orders and returns.",
		"FALLBACK RULE",
		`"Sorry, I can only answer questions about Acme."`,
		"verbatim",
		"You're welcome",
		"See you later!",
		"OUTPUT FORMAT",
		`{"answer": string, "suggestedQuestions": string[]}`,
		"ending with \"?\"",
		"under 1000 tokens",
	}
	for _, m := range musts {
		if !strings.Contains(prompt, m) {
			t.Fatalf("prompt missing %q\nprompt:\n%s", m, prompt)
		}
	}
}

func TestPromptBuildFoldsRAGContext(t *testing.T) {
	b := NewPromptBuilder(800)
	snippets := []string{"Opening hours: 9-17", "Returns accepted within 30 days"}
	prompt := b.Build(testProfile(), snippets)

	if !strings.Contains(prompt, "Reference snippets:") {
		t.Fatalf("prompt missing snippet section")
	}
	if !strings.Contains(prompt, "[1] Opening hours: 9-17") {
		t.Fatalf("prompt missing first snippet")
	}
	if !strings.Contains(prompt, "[2] Returns accepted within 30 days") {
		t.Fatalf("prompt missing second snippet")
	}

	// 无上下文时不应出现片段小节
	empty := b.Build(testProfile(), nil)
	if strings.Contains(empty, "Reference snippets:") {
		t.Fatalf("unexpected snippet section without context")
	}
}

func TestFallbackMessageDefault(t *testing.T) {
	p := testProfile()
	if got := FallbackMessage(p); got != p.FallbackMessage {
		t.Fatalf("expected configured fallback, got %q", got)
	}

	p.FallbackMessage = ""
	if got := FallbackMessage(p); got != DefaultFallbackMessage {
		t.Fatalf("expected default fallback, got %q", got)
	}
	if got := FallbackMessage(nil); got != DefaultFallbackMessage {
		t.Fatalf("expected default fallback for nil profile, got %q", got)
	}
}
