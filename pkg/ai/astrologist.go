package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tarotreader/pkg/domain"
)

// AstrologistService drives the conversational side of a reading. The
// service itself is stateless: every call carries the reading and the
// full ordered chat history as context.
type AstrologistService struct {
	gen TextGenerator
}

// NewAstrologistService builds the chat service.
func NewAstrologistService(gen TextGenerator) *AstrologistService {
	return &AstrologistService{gen: gen}
}

const astrologistPromptTemplate = `You are %s, a friendly AI Tarot reader and fortune teller. Provide a customized tarot interpretation for:

Question: "%s"
Cards: %s
Prediction: %s

Guidelines:
1. Use a warm, conversational tone.
2. Keep responses concise (1-2 sentences) unless asked to elaborate.
3. Ask simple questions to gather more information when needed.
4. Acknowledge the user's input before continuing.
5. Relate responses to specific cards or aspects of the user's question.
6. If the user's question is vague, offer a reasonable guess about their situation and ask for confirmation or clarification.
7. Do not let the conversation die. Keep the conversation going with follow-up questions.

Aim for a personal and insightful dialogue.`

// Reply generates the astrologist's answer to the latest user message.
// history must be the full thread in creation order, latest user
// message included.
func (s *AstrologistService) Reply(ctx context.Context, reading domain.Reading, history []domain.ChatMessage, message string) (string, error) {
	predictionJSON, err := json.Marshal(reading.Prediction)
	if err != nil {
		return "", fmt.Errorf("encode prediction: %w", err)
	}
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{
		Role:    "system",
		Content: fmt.Sprintf(astrologistPromptTemplate, Persona, reading.Question, reading.Cards, predictionJSON),
	})
	messages = append(messages, HistoryMessages(history)...)
	// The latest user message is normally the tail of history already;
	// only add it when the caller passed a thread without it.
	if len(history) == 0 || history[len(history)-1].IsAIResponse {
		messages = append(messages, Message{Role: "user", Content: message})
	}
	reply, err := s.gen.GenerateChat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("astrologist reply: %w", err)
	}
	return reply, nil
}

// HistoryMessages maps stored chat messages to completion turns:
// assistant iff the message was an AI response.
func HistoryMessages(history []domain.ChatMessage) []Message {
	out := make([]Message, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.IsAIResponse {
			role = "assistant"
		}
		out = append(out, Message{Role: role, Content: msg.Message})
	}
	return out
}

// Greeting renders the first seed message of a fresh reading.
func Greeting(question, summary string, cardCount int) string {
	return fmt.Sprintf(
		"Hello! I'm %s, your AI Tarot reader. I've drawn %d cards in response to your question: %q. \n\nThe cards suggest %s",
		Persona, cardCount, question, strings.TrimSpace(summary),
	)
}
