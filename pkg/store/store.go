package store

import "tarotreader/pkg/domain"

// Store defines persistence operations for users, readings, and chat
// messages. Readings and messages are owned by the user that created
// them; a share id grants a read-only reading lookup without exposing
// ownership.
type Store interface {
	// GetOrCreateUser binds an external identity to an internal user
	// record, creating it on first sign-in.
	GetOrCreateUser(externalID, email string) (domain.User, error)

	// SaveReading persists a new reading together with its seed chat
	// messages in one atomic step (all or nothing). ID and CreatedAt
	// are assigned by the store.
	SaveReading(reading domain.Reading, seeds []domain.ChatMessage) (domain.Reading, error)
	// GetReading returns a reading owned by userID.
	GetReading(userID, predictionID string) (domain.Reading, bool, error)
	// GetReadingByShareID resolves a share link.
	GetReadingByShareID(shareID string) (domain.Reading, bool, error)
	// ListReadings returns the user's readings, newest first.
	ListReadings(userID string) ([]domain.Reading, error)
	// AssignShareID lazily assigns a share id to a reading owned by
	// userID and returns it. Idempotent: repeated calls return the
	// same id.
	AssignShareID(userID, predictionID string) (string, error)

	// SaveChatMessage appends one message; ID and CreatedAt are
	// assigned by the store.
	SaveChatMessage(msg domain.ChatMessage) (domain.ChatMessage, error)
	// ListChatMessages returns the thread in creation order.
	ListChatMessages(userID, predictionID string) ([]domain.ChatMessage, error)
}
