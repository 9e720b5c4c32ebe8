package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tarotreader/pkg/domain"
)

// Persona is the name the reader introduces itself with.
const Persona = "Celeste"

// PredictionResult is the structured output of one reading generation.
type PredictionResult struct {
	Prediction   domain.Prediction `json:"prediction"`
	FirstMessage string            `json:"firstMessage"`
	Summary      string            `json:"summary"`
}

// PredictionService asks the LLM for a past/present/future reading.
type PredictionService struct {
	gen TextGenerator
}

// NewPredictionService builds the service on top of a generator.
func NewPredictionService(gen TextGenerator) *PredictionService {
	return &PredictionService{gen: gen}
}

const predictionSystemPrompt = `You are a friendly and insightful tarot reader. Provide detailed, specific predictions based on a Past, Present, Future spread, mentioning the cards drawn and directly relating them to the user's question.

Use simple language and create vivid, relatable scenarios based on the cards. Avoid vague statements and instead offer concrete examples of how the cards' meanings might manifest in the user's life.

Ask a follow-up question to explore a specific aspect of the prediction. Provide a brief, direct summary of the predicted outcome without mentioning the cards.

Respond with ONLY a JSON object (no markdown, no code fences) containing 'prediction' (with 'past', 'present', and 'future' fields), 'firstMessage', and 'summary' fields.`

// Generate requests a prediction for the question and serialized hand.
// A response with any of the past/present/future/firstMessage/summary
// fields missing is a contract violation and is reported as an error,
// never as a partial success.
func (s *PredictionService) Generate(ctx context.Context, question, cards string) (PredictionResult, error) {
	userPrompt := fmt.Sprintf(
		"Question: %s\nCards: %s\nProvide a JSON response with a detailed 'prediction' based on the spread, mentioning each card, a 'firstMessage' that asks for confirmation about an aspect of the prediction, and a 'summary' that provides a brief, direct summary of the predicted outcome without mentioning the cards.",
		question, cards,
	)
	raw, err := s.gen.GenerateText(ctx, predictionSystemPrompt, userPrompt)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("generate prediction: %w", err)
	}
	result, err := parsePrediction(raw)
	if err == nil {
		return result, nil
	}
	// One corrective round trip when the model returned broken JSON.
	raw, retryErr := s.gen.GenerateText(ctx, predictionSystemPrompt, retryPrompt(raw))
	if retryErr != nil {
		return PredictionResult{}, fmt.Errorf("generate prediction: %w", retryErr)
	}
	result, err = parsePrediction(raw)
	if err != nil {
		return PredictionResult{}, err
	}
	return result, nil
}

func parsePrediction(raw string) (PredictionResult, error) {
	var result PredictionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return PredictionResult{}, fmt.Errorf("prediction is not valid JSON: %w", err)
	}
	// The top-level summary may arrive beside or inside the prediction
	// object depending on the model's mood; fold it in either way.
	if result.Prediction.Summary == "" {
		result.Prediction.Summary = result.Summary
	}
	missing := missingPredictionFields(result)
	if len(missing) > 0 {
		return PredictionResult{}, fmt.Errorf("prediction response missing required fields: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

func missingPredictionFields(r PredictionResult) []string {
	var missing []string
	if strings.TrimSpace(r.Prediction.Past) == "" {
		missing = append(missing, "prediction.past")
	}
	if strings.TrimSpace(r.Prediction.Present) == "" {
		missing = append(missing, "prediction.present")
	}
	if strings.TrimSpace(r.Prediction.Future) == "" {
		missing = append(missing, "prediction.future")
	}
	if strings.TrimSpace(r.FirstMessage) == "" {
		missing = append(missing, "firstMessage")
	}
	if strings.TrimSpace(r.Prediction.Summary) == "" {
		missing = append(missing, "summary")
	}
	return missing
}

func retryPrompt(badJSON string) string {
	return fmt.Sprintf(`Your previous response was not valid JSON. Here is what you returned:
%s

Return ONLY the corrected JSON object (no markdown, no code fences).`, badJSON)
}
