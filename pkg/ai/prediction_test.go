package ai

import (
	"context"
	"strings"
	"testing"
)

// fakeGenerator returns scripted responses in order.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", nil
}

func (f *fakeGenerator) GenerateChat(ctx context.Context, messages []Message) (string, error) {
	return f.GenerateText(ctx, "", messages[len(messages)-1].Content)
}

const goodPrediction = `{
	"prediction": {"past": "p", "present": "n", "future": "f"},
	"firstMessage": "fm",
	"summary": "s"
}`

func TestPredictionGenerate(t *testing.T) {
	gen := &fakeGenerator{responses: []string{goodPrediction}}
	svc := NewPredictionService(gen)
	result, err := svc.Generate(context.Background(), "Will I find love?", "The Lovers, The Tower, The Sun")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Prediction.Past != "p" || result.Prediction.Summary != "s" || result.FirstMessage != "fm" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times, want 1", gen.calls)
	}
	if !strings.Contains(gen.prompts[0], "Will I find love?") {
		t.Fatalf("question missing from prompt: %s", gen.prompts[0])
	}
}

func TestPredictionMissingSummaryIsContractViolation(t *testing.T) {
	partial := `{"prediction": {"past": "p", "present": "n", "future": "f"}, "firstMessage": "fm"}`
	gen := &fakeGenerator{responses: []string{partial, partial}}
	svc := NewPredictionService(gen)
	if _, err := svc.Generate(context.Background(), "q", "cards"); err == nil {
		t.Fatalf("expected contract violation for missing summary")
	} else if !strings.Contains(err.Error(), "summary") {
		t.Fatalf("error should name the missing field: %v", err)
	}
}

func TestPredictionSummaryInsidePredictionObject(t *testing.T) {
	nested := `{"prediction": {"past": "p", "present": "n", "future": "f", "summary": "s"}, "firstMessage": "fm"}`
	gen := &fakeGenerator{responses: []string{nested}}
	svc := NewPredictionService(gen)
	result, err := svc.Generate(context.Background(), "q", "cards")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Prediction.Summary != "s" {
		t.Fatalf("summary not folded in: %+v", result)
	}
}

func TestPredictionRetriesOnceOnBrokenJSON(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"Sure! Here is your reading:", goodPrediction}}
	svc := NewPredictionService(gen)
	result, err := svc.Generate(context.Background(), "q", "cards")
	if err != nil {
		t.Fatalf("generate after retry: %v", err)
	}
	if result.FirstMessage != "fm" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gen.calls != 2 {
		t.Fatalf("generator called %d times, want 2", gen.calls)
	}
}

func TestPredictionGivesUpAfterSecondBadJSON(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"not json", "still not json"}}
	svc := NewPredictionService(gen)
	if _, err := svc.Generate(context.Background(), "q", "cards"); err == nil {
		t.Fatalf("expected error after failed retry")
	}
	if gen.calls != 2 {
		t.Fatalf("generator called %d times, want exactly 2", gen.calls)
	}
}
