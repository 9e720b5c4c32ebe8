package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tarotreader/pkg/domain"
)

// MemoryStore keeps everything in-process. Used by tests and local
// development without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User          // key: external ID
	readings map[string]domain.Reading       // key: reading ID
	messages map[string][]domain.ChatMessage // key: reading ID, creation order
	clock    time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		readings: make(map[string]domain.Reading),
		messages: make(map[string][]domain.ChatMessage),
		clock:    time.Now().UTC(),
	}
}

// tick returns strictly increasing timestamps so creation order is
// stable even when rows land within the same wall-clock instant.
func (m *MemoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

// GetOrCreateUser binds an external identity to an internal record.
func (m *MemoryStore) GetOrCreateUser(externalID, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[externalID]; ok {
		return user, nil
	}
	user := domain.User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Email:      email,
		CreatedAt:  m.tick(),
	}
	m.users[externalID] = user
	return user, nil
}

// SaveReading persists a reading plus seed messages atomically.
func (m *MemoryStore) SaveReading(reading domain.Reading, seeds []domain.ChatMessage) (domain.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reading.ID = uuid.NewString()
	reading.CreatedAt = m.tick()
	m.readings[reading.ID] = reading
	for _, seed := range seeds {
		seed.ID = uuid.NewString()
		seed.PredictionID = reading.ID
		seed.CreatedAt = m.tick()
		m.messages[reading.ID] = append(m.messages[reading.ID], seed)
	}
	return reading, nil
}

// GetReading returns a reading owned by userID.
func (m *MemoryStore) GetReading(userID, predictionID string) (domain.Reading, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reading, ok := m.readings[predictionID]
	if !ok || reading.UserID != userID {
		return domain.Reading{}, false, nil
	}
	return reading, true, nil
}

// GetReadingByShareID resolves a share link.
func (m *MemoryStore) GetReadingByShareID(shareID string) (domain.Reading, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if shareID == "" {
		return domain.Reading{}, false, nil
	}
	for _, reading := range m.readings {
		if reading.ShareID == shareID {
			return reading, true, nil
		}
	}
	return domain.Reading{}, false, nil
}

// ListReadings returns the user's readings, newest first.
func (m *MemoryStore) ListReadings(userID string) ([]domain.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Reading, 0)
	for _, reading := range m.readings {
		if reading.UserID == userID {
			res = append(res, reading)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// AssignShareID lazily assigns an idempotent share id.
func (m *MemoryStore) AssignShareID(userID, predictionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reading, ok := m.readings[predictionID]
	if !ok || reading.UserID != userID {
		return "", fmt.Errorf("reading not found")
	}
	if reading.ShareID != "" {
		return reading.ShareID, nil
	}
	reading.ShareID = uuid.NewString()
	m.readings[predictionID] = reading
	return reading.ShareID, nil
}

// SaveChatMessage appends one message.
func (m *MemoryStore) SaveChatMessage(msg domain.ChatMessage) (domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.NewString()
	msg.CreatedAt = m.tick()
	m.messages[msg.PredictionID] = append(m.messages[msg.PredictionID], msg)
	return msg, nil
}

// ListChatMessages returns the thread in creation order.
func (m *MemoryStore) ListChatMessages(userID, predictionID string) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChatMessage, 0)
	for _, msg := range m.messages[predictionID] {
		if msg.UserID == userID {
			res = append(res, msg)
		}
	}
	return res, nil
}
