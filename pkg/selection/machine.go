// Package selection implements the card pick flow as an explicit state
// machine: cards are tapped one at a time, the hand freezes at three,
// and a timed reveal choreography hands the frozen hand to a completion
// callback exactly once.
package selection

import (
	"errors"
	"sync"
	"time"

	"tarotreader/pkg/domain"
)

// State of a selection machine.
type State string

const (
	StateSelecting State = "selecting"
	StateRevealing State = "revealing"
	StateRevealed  State = "revealed"
	StateClosed    State = "closed"
)

const defaultRevealDelay = 2 * time.Second

// ErrFrozen is returned by Tap once the hand is frozen. Callers treat
// it as a no-op condition, not a failure.
var ErrFrozen = errors.New("hand is frozen")

// Config wires a machine.
type Config struct {
	// RNG rolls each card's orientation, 50/50, once per pick.
	RNG domain.RNG
	// FlipDelay is the pause before cards flip face-up.
	FlipDelay time.Duration
	// HandoffDelay is the pause between the flip and the completion
	// callback. Both delays default to 2s.
	HandoffDelay time.Duration
	// OnComplete receives the frozen hand exactly once.
	OnComplete func(domain.Hand)
}

// Machine tracks one selection session. Safe for concurrent use.
type Machine struct {
	mu           sync.Mutex
	state        State
	hand         domain.Hand
	flipped      bool
	rng          domain.RNG
	flipDelay    time.Duration
	handoffDelay time.Duration
	onComplete   func(domain.Hand)
	flipTimer    *time.Timer
	handoffTimer *time.Timer
}

// New builds a machine in the Selecting state.
func New(cfg Config) *Machine {
	flipDelay := cfg.FlipDelay
	if flipDelay <= 0 {
		flipDelay = defaultRevealDelay
	}
	handoffDelay := cfg.HandoffDelay
	if handoffDelay <= 0 {
		handoffDelay = defaultRevealDelay
	}
	return &Machine{
		state:        StateSelecting,
		rng:          cfg.RNG,
		flipDelay:    flipDelay,
		handoffDelay: handoffDelay,
		onComplete:   cfg.OnComplete,
	}
}

// Tap selects a card, or de-selects it when it is already in the hand.
// Orientation is rolled at selection time and kept if the card is
// re-selected later (a fresh roll happens on the new pick, never a
// re-roll of a held card). Once the hand reaches three cards it
// freezes and the reveal choreography starts; the size-3 transition
// fires exactly once.
func (m *Machine) Tap(name string) error {
	m.mu.Lock()
	if m.state != StateSelecting {
		m.mu.Unlock()
		return ErrFrozen
	}
	for i, c := range m.hand {
		if c.Name == name {
			m.hand = append(m.hand[:i], m.hand[i+1:]...)
			m.mu.Unlock()
			return nil
		}
	}
	m.hand = append(m.hand, domain.SelectedCard{
		Name:       name,
		IsReversed: m.rng.Intn(2) == 1,
	})
	if len(m.hand) < domain.HandSize {
		m.mu.Unlock()
		return nil
	}
	// Hand complete: freeze and start the reveal. The state change is
	// the re-entrancy guard; Tap can no longer reach this branch.
	m.state = StateRevealing
	m.flipTimer = time.AfterFunc(m.flipDelay, m.flip)
	m.mu.Unlock()
	return nil
}

func (m *Machine) flip() {
	m.mu.Lock()
	if m.state != StateRevealing {
		m.mu.Unlock()
		return
	}
	m.flipped = true
	m.handoffTimer = time.AfterFunc(m.handoffDelay, m.deliver)
	m.mu.Unlock()
}

func (m *Machine) deliver() {
	m.mu.Lock()
	if m.state != StateRevealing {
		m.mu.Unlock()
		return
	}
	m.state = StateRevealed
	hand := make(domain.Hand, len(m.hand))
	copy(hand, m.hand)
	done := m.onComplete
	m.mu.Unlock()
	if done != nil {
		done(hand)
	}
}

// Close tears the machine down. Pending reveal timers are cancelled so
// no callback fires after teardown. Idempotent.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return
	}
	m.state = StateClosed
	if m.flipTimer != nil {
		m.flipTimer.Stop()
	}
	if m.handoffTimer != nil {
		m.handoffTimer.Stop()
	}
}

// Snapshot returns the current state, a copy of the hand, and whether
// the cards have flipped face-up.
func (m *Machine) Snapshot() (State, domain.Hand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hand := make(domain.Hand, len(m.hand))
	copy(hand, m.hand)
	return m.state, hand, m.flipped
}
