package app

import (
	"context"
	"fmt"
	"strings"

	"tarotreader/pkg/ai"
	"tarotreader/pkg/deck"
	"tarotreader/pkg/domain"
)

// GenerateReading turns a question and a frozen hand into a persisted
// reading. The prediction call and the validation happen before any
// write, so a failure leaves no reading row and no seed messages; the
// caller may simply retry. On success exactly two AI seed messages open
// the thread: the greeting, then the model's first message.
func (a *App) GenerateReading(ctx context.Context, user domain.User, question string, hand domain.Hand) (domain.Reading, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Reading{}, fmt.Errorf("question required")
	}
	if err := hand.Validate(); err != nil {
		return domain.Reading{}, err
	}
	for _, c := range hand {
		if !deck.Contains(c.Name) {
			return domain.Reading{}, fmt.Errorf("unknown card %q", c.Name)
		}
	}
	cards := domain.FormatHand(hand)

	result, err := a.predictions.Generate(ctx, question, cards)
	if err != nil {
		return domain.Reading{}, err
	}

	seeds := []domain.ChatMessage{
		{
			UserID:       user.ID,
			Message:      ai.Greeting(question, result.Prediction.Summary, len(hand)),
			IsAIResponse: true,
		},
		{
			UserID:       user.ID,
			Message:      result.FirstMessage,
			IsAIResponse: true,
		},
	}
	reading, err := a.store.SaveReading(domain.Reading{
		UserID:     user.ID,
		Question:   question,
		Cards:      cards,
		Prediction: result.Prediction,
	}, seeds)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("save reading: %w", err)
	}
	return reading, nil
}

// ListReadings returns the user's past readings, newest first.
func (a *App) ListReadings(user domain.User) ([]domain.Reading, error) {
	readings, err := a.store.ListReadings(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return readings, nil
}
