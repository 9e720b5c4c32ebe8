package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tarotreader/pkg/domain"
)

const migrateLockID int64 = 52815281

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &ReadingModel{}, &ChatMessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM chat_message_models m
				WHERE NOT EXISTS (SELECT 1 FROM reading_models r WHERE r.id = m.prediction_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chat_message_models'
					AND constraint_name = 'chat_message_models_prediction_id_fkey'
				) THEN
					ALTER TABLE chat_message_models
					ADD CONSTRAINT chat_message_models_prediction_id_fkey
					FOREIGN KEY (prediction_id) REFERENCES reading_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure reading foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// GetOrCreateUser registers the external identity on first sign-in and
// returns the bound user afterwards.
func (s *GormStore) GetOrCreateUser(externalID, email string) (domain.User, error) {
	model := UserModel{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Email:      email,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	var out UserModel
	if err := s.db.First(&out, "external_id = ?", externalID).Error; err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return userFromModel(out), nil
}

// SaveReading persists a reading and its seed messages atomically.
func (s *GormStore) SaveReading(reading domain.Reading, seeds []domain.ChatMessage) (domain.Reading, error) {
	now := time.Now().UTC()
	reading.ID = uuid.NewString()
	reading.CreatedAt = now
	model, err := readingToModel(reading)
	if err != nil {
		return domain.Reading{}, err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create reading: %w", err)
		}
		for i := range seeds {
			seeds[i].ID = uuid.NewString()
			seeds[i].PredictionID = reading.ID
			// Millisecond offsets keep seed order stable under
			// created_at ordering.
			seeds[i].CreatedAt = now.Add(time.Duration(i+1) * time.Millisecond)
			seedModel, err := messageToModel(seeds[i])
			if err != nil {
				return err
			}
			if err := tx.Create(&seedModel).Error; err != nil {
				return fmt.Errorf("create seed message: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Reading{}, err
	}
	return reading, nil
}

// GetReading returns a reading owned by userID.
func (s *GormStore) GetReading(userID, predictionID string) (domain.Reading, bool, error) {
	var model ReadingModel
	if err := s.db.First(&model, "id = ? AND user_id = ?", predictionID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Reading{}, false, nil
		}
		return domain.Reading{}, false, err
	}
	reading, err := readingFromModel(model)
	if err != nil {
		return domain.Reading{}, false, err
	}
	return reading, true, nil
}

// GetReadingByShareID resolves a share link.
func (s *GormStore) GetReadingByShareID(shareID string) (domain.Reading, bool, error) {
	var model ReadingModel
	if err := s.db.First(&model, "share_id = ?", shareID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Reading{}, false, nil
		}
		return domain.Reading{}, false, err
	}
	reading, err := readingFromModel(model)
	if err != nil {
		return domain.Reading{}, false, err
	}
	return reading, true, nil
}

// ListReadings returns the user's readings, newest first.
func (s *GormStore) ListReadings(userID string) ([]domain.Reading, error) {
	var models []ReadingModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	readings := make([]domain.Reading, 0, len(models))
	for _, model := range models {
		reading, err := readingFromModel(model)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

// AssignShareID lazily assigns a share id; repeated calls return the
// same id.
func (s *GormStore) AssignShareID(userID, predictionID string) (string, error) {
	candidate := uuid.NewString()
	if err := s.db.Model(&ReadingModel{}).
		Where("id = ? AND user_id = ? AND share_id IS NULL", predictionID, userID).
		Update("share_id", candidate).Error; err != nil {
		return "", fmt.Errorf("assign share id: %w", err)
	}
	var model ReadingModel
	if err := s.db.First(&model, "id = ? AND user_id = ?", predictionID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", fmt.Errorf("reading not found")
		}
		return "", err
	}
	if model.ShareID == nil {
		return "", fmt.Errorf("share id not assigned")
	}
	return *model.ShareID, nil
}

// SaveChatMessage appends one message.
func (s *GormStore) SaveChatMessage(msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	model, err := messageToModel(msg)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.ChatMessage{}, fmt.Errorf("create chat message: %w", err)
	}
	return msg, nil
}

// ListChatMessages returns the thread in creation order.
func (s *GormStore) ListChatMessages(userID, predictionID string) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	if err := s.db.Where("user_id = ? AND prediction_id = ?", userID, predictionID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for _, model := range models {
		msg, err := messageFromModel(model)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:         m.ID,
		ExternalID: m.ExternalID,
		Email:      m.Email,
		CreatedAt:  m.CreatedAt,
	}
}

func readingToModel(r domain.Reading) (ReadingModel, error) {
	prediction, err := json.Marshal(r.Prediction)
	if err != nil {
		return ReadingModel{}, fmt.Errorf("encode prediction: %w", err)
	}
	var shareID *string
	if r.ShareID != "" {
		value := r.ShareID
		shareID = &value
	}
	return ReadingModel{
		ID:         r.ID,
		UserID:     r.UserID,
		Question:   r.Question,
		Cards:      r.Cards,
		Prediction: datatypes.JSON(prediction),
		ShareID:    shareID,
		CreatedAt:  r.CreatedAt,
	}, nil
}

func readingFromModel(m ReadingModel) (domain.Reading, error) {
	var prediction domain.Prediction
	if len(m.Prediction) > 0 {
		if err := json.Unmarshal([]byte(m.Prediction), &prediction); err != nil {
			return domain.Reading{}, fmt.Errorf("decode prediction: %w", err)
		}
	}
	shareID := ""
	if m.ShareID != nil {
		shareID = *m.ShareID
	}
	return domain.Reading{
		ID:         m.ID,
		UserID:     m.UserID,
		Question:   m.Question,
		Cards:      m.Cards,
		Prediction: prediction,
		ShareID:    shareID,
		CreatedAt:  m.CreatedAt,
	}, nil
}

func messageToModel(msg domain.ChatMessage) (ChatMessageModel, error) {
	var metadata []byte
	if msg.Metadata != nil {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return ChatMessageModel{}, fmt.Errorf("encode message metadata: %w", err)
		}
		metadata = raw
	}
	return ChatMessageModel{
		ID:           msg.ID,
		UserID:       msg.UserID,
		PredictionID: msg.PredictionID,
		Message:      msg.Message,
		IsAIResponse: msg.IsAIResponse,
		Metadata:     datatypes.JSON(metadata),
		CreatedAt:    msg.CreatedAt,
	}, nil
}

func messageFromModel(m ChatMessageModel) (domain.ChatMessage, error) {
	var metadata *domain.MessageMetadata
	if len(m.Metadata) > 0 {
		metadata = &domain.MessageMetadata{}
		if err := json.Unmarshal([]byte(m.Metadata), metadata); err != nil {
			return domain.ChatMessage{}, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return domain.ChatMessage{
		ID:           m.ID,
		UserID:       m.UserID,
		PredictionID: m.PredictionID,
		Message:      m.Message,
		IsAIResponse: m.IsAIResponse,
		Metadata:     metadata,
		CreatedAt:    m.CreatedAt,
	}, nil
}
