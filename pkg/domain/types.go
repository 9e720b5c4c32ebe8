package domain

import "time"

// TimeFrame identifies one position of the three-card spread.
type TimeFrame string

const (
	TimeFramePast    TimeFrame = "PAST"
	TimeFramePresent TimeFrame = "PRESENT"
	TimeFrameFuture  TimeFrame = "FUTURE"
)

// Valid reports whether tf is one of the three spread positions.
func (tf TimeFrame) Valid() bool {
	switch tf {
	case TimeFramePast, TimeFramePresent, TimeFrameFuture:
		return true
	}
	return false
}

// Card is a catalog entry. Immutable, defined at process start.
type Card struct {
	Name     string `json:"name"`
	ImageKey string `json:"imageKey"`
}

// SelectedCard is a catalog card with the orientation assigned at
// selection time. The orientation is rolled once and never resampled.
type SelectedCard struct {
	Name       string `json:"name"`
	IsReversed bool   `json:"isReversed"`
}

// Prediction is the structured three-part result of a reading.
type Prediction struct {
	Past    string `json:"past"`
	Present string `json:"present"`
	Future  string `json:"future"`
	Summary string `json:"summary"`
}

// Reading is the persisted record of a question, its hand, and the
// generated prediction. Immutable after creation except for the
// lazily assigned ShareID.
type Reading struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Question   string     `json:"question"`
	Cards      string     `json:"cards"` // serialized hand, see FormatHand
	Prediction Prediction `json:"prediction"`
	ShareID    string     `json:"shareId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// MessageMetadata carries optional quick-reply options attached to an
// AI message. Options are only actionable on the most recent AI message.
type MessageMetadata struct {
	Options []string `json:"options,omitempty"`
}

// ChatMessage is one append-only entry of a reading's chat thread.
type ChatMessage struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	PredictionID string           `json:"predictionId"`
	Message      string           `json:"message"`
	IsAIResponse bool             `json:"isAiResponse"`
	Metadata     *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// User binds an external identity to an internal record.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RNG abstracts random number generation so orientation rolls are
// deterministic in tests.
type RNG interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}
