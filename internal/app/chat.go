package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"tarotreader/pkg/domain"
)

// ChatSession is the loaded view of one reading's conversation.
type ChatSession struct {
	Reading  domain.Reading       `json:"reading"`
	Messages []domain.ChatMessage `json:"messages"`
	// ReadOnly marks share-mode sessions: no history, no sending.
	ReadOnly bool `json:"readOnly"`
}

// LoadSession fetches the reading and its full ordered history for the
// owner. Both reads go out concurrently.
func (a *App) LoadSession(ctx context.Context, user domain.User, predictionID string) (ChatSession, error) {
	var (
		reading  domain.Reading
		messages []domain.ChatMessage
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, ok, err := a.store.GetReading(user.ID, predictionID)
		if err != nil {
			return fmt.Errorf("load reading: %w", err)
		}
		if !ok {
			return ErrReadingNotFound
		}
		reading = r
		return nil
	})
	g.Go(func() error {
		msgs, err := a.store.ListChatMessages(user.ID, predictionID)
		if err != nil {
			return fmt.Errorf("load chat history: %w", err)
		}
		messages = msgs
		return nil
	})
	if err := g.Wait(); err != nil {
		return ChatSession{}, err
	}
	pruneInactiveOptions(messages)
	return ChatSession{Reading: reading, Messages: messages}, nil
}

// pruneInactiveOptions drops quick-reply options from every message but
// the most recent AI one. Options are only actionable there; once the
// conversation moves on, stale copies must not resurface in clients.
func pruneInactiveOptions(messages []domain.ChatMessage) {
	last := -1
	for i := range messages {
		if messages[i].IsAIResponse {
			last = i
		}
	}
	for i := range messages {
		if i != last {
			messages[i].Metadata = nil
		}
	}
}

// LoadSharedSession resolves a share link into a read-only session:
// the reading only, never the owner's chat history.
func (a *App) LoadSharedSession(shareID string) (ChatSession, error) {
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return ChatSession{}, ErrReadingNotFound
	}
	reading, ok, err := a.store.GetReadingByShareID(shareID)
	if err != nil {
		return ChatSession{}, fmt.Errorf("load shared reading: %w", err)
	}
	if !ok {
		return ChatSession{}, ErrReadingNotFound
	}
	reading.UserID = ""
	return ChatSession{Reading: reading, ReadOnly: true}, nil
}

// SendMessage appends the user's message to the thread and returns the
// persisted user and AI messages. Blank input is a no-op returning no
// messages. At most one send per session runs at a time; an overlapping
// send fails with ErrSendInFlight. When the AI reply fails after the
// user message was stored, the user message stays in the thread and the
// error surfaces to the caller.
func (a *App) SendMessage(ctx context.Context, user domain.User, predictionID, text string) ([]domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if err := a.acquireSend(user.ID, predictionID); err != nil {
		return nil, err
	}
	defer a.releaseSend(user.ID, predictionID)

	reading, ok, err := a.store.GetReading(user.ID, predictionID)
	if err != nil {
		return nil, fmt.Errorf("load reading: %w", err)
	}
	if !ok {
		return nil, ErrReadingNotFound
	}

	userMsg, err := a.store.SaveChatMessage(domain.ChatMessage{
		UserID:       user.ID,
		PredictionID: predictionID,
		Message:      text,
	})
	if err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	history, err := a.store.ListChatMessages(user.ID, predictionID)
	if err != nil {
		return []domain.ChatMessage{userMsg}, fmt.Errorf("load chat history: %w", err)
	}
	reply, err := a.astrologist.Reply(ctx, reading, history, text)
	if err != nil {
		return []domain.ChatMessage{userMsg}, err
	}
	aiMsg, err := a.store.SaveChatMessage(domain.ChatMessage{
		UserID:       user.ID,
		PredictionID: predictionID,
		Message:      reply,
		IsAIResponse: true,
	})
	if err != nil {
		return []domain.ChatMessage{userMsg}, fmt.Errorf("save ai message: %w", err)
	}
	return []domain.ChatMessage{userMsg, aiMsg}, nil
}

// SelectOption sends a quick-reply option as if the user typed it.
func (a *App) SelectOption(ctx context.Context, user domain.User, predictionID, option string) ([]domain.ChatMessage, error) {
	return a.SendMessage(ctx, user, predictionID, option)
}

// GenerateDiscussionQuestion asks the LLM for a discussion question
// about one timeframe of the reading and appends it to the thread as an
// AI message carrying the quick-reply options in its metadata.
func (a *App) GenerateDiscussionQuestion(ctx context.Context, user domain.User, predictionID string, timeFrame domain.TimeFrame) (domain.ChatMessage, error) {
	reading, ok, err := a.store.GetReading(user.ID, predictionID)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("load reading: %w", err)
	}
	if !ok {
		return domain.ChatMessage{}, ErrReadingNotFound
	}
	history, err := a.store.ListChatMessages(user.ID, predictionID)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("load chat history: %w", err)
	}
	q, err := a.questions.Generate(ctx, reading, history, timeFrame)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg, err := a.store.SaveChatMessage(domain.ChatMessage{
		UserID:       user.ID,
		PredictionID: predictionID,
		Message:      q.Question,
		IsAIResponse: true,
		Metadata:     &domain.MessageMetadata{Options: q.Options},
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("save question message: %w", err)
	}
	return msg, nil
}

// ShareReading lazily assigns a share id to the reading and returns the
// public share URL. Idempotent: repeated calls return the same link.
func (a *App) ShareReading(user domain.User, predictionID string) (string, error) {
	_, ok, err := a.store.GetReading(user.ID, predictionID)
	if err != nil {
		return "", fmt.Errorf("load reading: %w", err)
	}
	if !ok {
		return "", ErrReadingNotFound
	}
	shareID, err := a.store.AssignShareID(user.ID, predictionID)
	if err != nil {
		return "", fmt.Errorf("assign share id: %w", err)
	}
	return fmt.Sprintf("%s/chat?shareId=%s", a.publicBaseURL, shareID), nil
}

func (a *App) acquireSend(userID, predictionID string) error {
	key := userID + "|" + predictionID
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.sending[key]; busy {
		return ErrSendInFlight
	}
	a.sending[key] = struct{}{}
	return nil
}

func (a *App) releaseSend(userID, predictionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sending, userID+"|"+predictionID)
}
