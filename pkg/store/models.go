package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID         string `gorm:"primaryKey"`
	ExternalID string `gorm:"uniqueIndex;not null"`
	Email      string
	CreatedAt  time.Time `gorm:"not null"`
}

type ReadingModel struct {
	ID         string         `gorm:"primaryKey"`
	UserID     string         `gorm:"not null;index"`
	Question   string         `gorm:"type:text;not null"`
	Cards      string         `gorm:"not null"`
	Prediction datatypes.JSON `gorm:"type:jsonb;not null"`
	ShareID    *string        `gorm:"uniqueIndex"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}

type ChatMessageModel struct {
	ID           string         `gorm:"primaryKey"`
	UserID       string         `gorm:"not null;index"`
	PredictionID string         `gorm:"not null;index"`
	Message      string         `gorm:"type:text;not null"`
	IsAIResponse bool           `gorm:"not null"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index"`
}
