package ai

import (
	"context"
	"strings"
	"testing"

	"tarotreader/pkg/domain"
)

func testReading() domain.Reading {
	return domain.Reading{
		ID:       "r1",
		Question: "Will I find love?",
		Cards:    "The Lovers (Reversed), The Tower, The Sun",
		Prediction: domain.Prediction{
			Past: "p", Present: "n", Future: "f", Summary: "s",
		},
	}
}

func TestQuestionGenerate(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"question": "What changed? 🔮", "options": ["A 🏠", "B 💼"]}`}}
	svc := NewQuestionService(gen)
	history := []domain.ChatMessage{
		{Message: "hello", IsAIResponse: true},
		{Message: "tell me more"},
	}
	q, err := svc.Generate(context.Background(), testReading(), history, domain.TimeFramePast)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if q.Question == "" || len(q.Options) != 2 {
		t.Fatalf("unexpected question: %+v", q)
	}
	if !strings.Contains(gen.prompts[0], "tell me more") {
		t.Fatalf("chat history missing from prompt")
	}
	if !strings.Contains(gen.prompts[0], "about the past") {
		t.Fatalf("timeframe missing from prompt: %s", gen.prompts[0])
	}
}

func TestQuestionRejectsInvalidTimeFrame(t *testing.T) {
	svc := NewQuestionService(&fakeGenerator{})
	if _, err := svc.Generate(context.Background(), testReading(), nil, domain.TimeFrame("SOMEDAY")); err == nil {
		t.Fatalf("expected error for invalid timeframe")
	}
}

func TestQuestionMissingOptionsIsError(t *testing.T) {
	bad := `{"question": "What changed?"}`
	gen := &fakeGenerator{responses: []string{bad, bad}}
	svc := NewQuestionService(gen)
	if _, err := svc.Generate(context.Background(), testReading(), nil, domain.TimeFrameFuture); err == nil {
		t.Fatalf("expected error for missing options")
	}
}

func TestAstrologistHistoryMapping(t *testing.T) {
	history := []domain.ChatMessage{
		{Message: "greeting", IsAIResponse: true},
		{Message: "user line"},
	}
	msgs := HistoryMessages(history)
	if msgs[0].Role != "assistant" || msgs[1].Role != "user" {
		t.Fatalf("unexpected roles: %+v", msgs)
	}
}

func TestGreetingTemplate(t *testing.T) {
	got := Greeting("Will I find love?", "things look up", 3)
	for _, want := range []string{Persona, "3 cards", `"Will I find love?"`, "The cards suggest things look up"} {
		if !strings.Contains(got, want) {
			t.Fatalf("greeting missing %q: %s", want, got)
		}
	}
}
