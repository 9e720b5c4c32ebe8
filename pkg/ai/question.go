package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tarotreader/pkg/domain"
)

// GeneratedQuestion is a discussion question with quick-reply options.
type GeneratedQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// QuestionService asks the LLM for a discussion question scoped to one
// timeframe of the reading. The full chat history goes along so the
// model can avoid topics already covered.
type QuestionService struct {
	gen TextGenerator
}

// NewQuestionService builds the service.
func NewQuestionService(gen TextGenerator) *QuestionService {
	return &QuestionService{gen: gen}
}

const questionSystemPrompt = `You are a tarot reader's assistant. Your task is to generate a thought-provoking question based on a tarot card prediction and previous conversation. The question should aim to clarify vague aspects of the prediction for the requested timeframe, encouraging the user to reflect on their own experiences.

Guidelines:
1. Identify a vague or symbolic element from the tarot card's interpretation that has not been addressed in the chat history.
2. Formulate a question that prompts the user to relate a specific experience to the card's symbolism.
3. Provide 2 to 4 distinct answer options with no overlap between them.
4. Include emojis in both the question and the options.
5. Avoid repeating questions or topics that have already been discussed in the chat history.

Respond with ONLY a JSON object (no markdown, no code fences) of the form {"question": "...", "options": ["...", "..."]}.`

// Generate produces a question about the given timeframe.
func (s *QuestionService) Generate(ctx context.Context, reading domain.Reading, history []domain.ChatMessage, timeFrame domain.TimeFrame) (GeneratedQuestion, error) {
	if !timeFrame.Valid() {
		return GeneratedQuestion{}, fmt.Errorf("invalid timeframe %q", timeFrame)
	}
	predictionJSON, err := json.Marshal(reading.Prediction)
	if err != nil {
		return GeneratedQuestion{}, fmt.Errorf("encode prediction: %w", err)
	}
	historyJSON, err := json.Marshal(HistoryMessages(history))
	if err != nil {
		return GeneratedQuestion{}, fmt.Errorf("encode chat history: %w", err)
	}
	userPrompt := fmt.Sprintf(
		"Tarot Prediction: %s\n\nChat History: %s\n\nGenerate a question about the %s with 2 to 4 answer options.",
		predictionJSON, historyJSON, strings.ToLower(string(timeFrame)),
	)

	raw, err := s.gen.GenerateText(ctx, questionSystemPrompt, userPrompt)
	if err != nil {
		return GeneratedQuestion{}, fmt.Errorf("generate question: %w", err)
	}
	q, parseErr := parseQuestion(raw)
	if parseErr == nil {
		return q, nil
	}
	raw, err = s.gen.GenerateText(ctx, questionSystemPrompt, retryPrompt(raw))
	if err != nil {
		return GeneratedQuestion{}, fmt.Errorf("generate question: %w", err)
	}
	return parseQuestion(raw)
}

func parseQuestion(raw string) (GeneratedQuestion, error) {
	var q GeneratedQuestion
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return GeneratedQuestion{}, fmt.Errorf("question is not valid JSON: %w", err)
	}
	if strings.TrimSpace(q.Question) == "" {
		return GeneratedQuestion{}, fmt.Errorf("question response missing question text")
	}
	if len(q.Options) == 0 {
		return GeneratedQuestion{}, fmt.Errorf("question response missing options")
	}
	return q, nil
}
