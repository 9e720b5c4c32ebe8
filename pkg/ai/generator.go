package ai

import "context"

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextGenerator produces completions from an LLM. Any OpenAI-compatible
// provider implements this.
type TextGenerator interface {
	// GenerateText runs a single system+user exchange.
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateChat runs a full multi-turn exchange.
	GenerateChat(ctx context.Context, messages []Message) (string, error)
}
