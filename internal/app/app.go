// Package app implements the reading-session workflow: generating a
// reading from a frozen hand, the chat session around it, and the
// in-memory card selection sessions that feed it.
package app

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"tarotreader/pkg/ai"
	"tarotreader/pkg/domain"
	"tarotreader/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store     store.Store
	Generator ai.TextGenerator
	// PublicBaseURL is the web client origin used to build share links.
	PublicBaseURL string
	// RNG rolls card orientations. Defaults to math/rand.
	RNG domain.RNG
	// FlipDelay and HandoffDelay pace the reveal choreography. Both
	// default inside pkg/selection when zero.
	FlipDelay    time.Duration
	HandoffDelay time.Duration
}

// App is the core application service wiring storage, the LLM services,
// and the selection sessions together.
type App struct {
	store         store.Store
	predictions   *ai.PredictionService
	astrologist   *ai.AstrologistService
	questions     *ai.QuestionService
	publicBaseURL string
	rng           domain.RNG
	flipDelay     time.Duration
	handoffDelay  time.Duration

	mu         sync.Mutex
	selections map[string]*selectionSession
	sending    map[string]struct{}
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	rng := cfg.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &App{
		store:         cfg.Store,
		predictions:   ai.NewPredictionService(cfg.Generator),
		astrologist:   ai.NewAstrologistService(cfg.Generator),
		questions:     ai.NewQuestionService(cfg.Generator),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		rng:           rng,
		flipDelay:     cfg.FlipDelay,
		handoffDelay:  cfg.HandoffDelay,
		selections:    make(map[string]*selectionSession),
		sending:       make(map[string]struct{}),
	}, nil
}

// GetOrCreateUser binds a verified external identity to a user record.
func (a *App) GetOrCreateUser(externalID, email string) (domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.User{}, fmt.Errorf("external id required")
	}
	user, err := a.store.GetOrCreateUser(externalID, strings.TrimSpace(email))
	if err != nil {
		return domain.User{}, fmt.Errorf("get or create user: %w", err)
	}
	return user, nil
}
