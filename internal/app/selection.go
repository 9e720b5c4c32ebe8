package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tarotreader/internal/util"
	"tarotreader/pkg/deck"
	"tarotreader/pkg/domain"
	"tarotreader/pkg/selection"
)

// selectionSession binds one selection machine to its owner and, once
// the reveal hands off, to the generated reading.
type selectionSession struct {
	id       string
	userID   string
	user     domain.User
	question string
	machine  *selection.Machine

	done      chan struct{}
	readingID string
	genErr    error
}

// SelectionStatus is the polled view of one selection session.
type SelectionStatus struct {
	ID       string      `json:"id"`
	Question string      `json:"question"`
	State    string      `json:"state"`
	Hand     domain.Hand `json:"hand"`
	Flipped  bool        `json:"flipped"`
	// ReadingID is set once the reveal completed and the reading was
	// generated.
	ReadingID string `json:"readingId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StartSelection opens a selection session for the question. The
// machine's completion callback generates the reading; polls observe
// the reading id once it lands.
func (a *App) StartSelection(user domain.User, question string) (SelectionStatus, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return SelectionStatus{}, fmt.Errorf("question required")
	}
	sess := &selectionSession{
		id:       util.NewID(),
		userID:   user.ID,
		user:     user,
		question: question,
		done:     make(chan struct{}),
	}
	sess.machine = selection.New(selection.Config{
		RNG:          a.rng,
		FlipDelay:    a.flipDelay,
		HandoffDelay: a.handoffDelay,
		OnComplete: func(hand domain.Hand) {
			a.completeSelection(sess, hand)
		},
	})
	a.mu.Lock()
	a.selections[sess.id] = sess
	a.mu.Unlock()
	return a.statusOf(sess), nil
}

// TapCard selects or de-selects a card in the session. Taps after the
// hand froze are ignored.
func (a *App) TapCard(user domain.User, sessionID, card string) (SelectionStatus, error) {
	sess, err := a.selectionFor(user, sessionID)
	if err != nil {
		return SelectionStatus{}, err
	}
	if !deck.Contains(card) {
		return SelectionStatus{}, fmt.Errorf("unknown card %q", card)
	}
	if err := sess.machine.Tap(card); err != nil && !errors.Is(err, selection.ErrFrozen) {
		return SelectionStatus{}, err
	}
	return a.statusOf(sess), nil
}

// SelectionState reports the session's current state.
func (a *App) SelectionState(user domain.User, sessionID string) (SelectionStatus, error) {
	sess, err := a.selectionFor(user, sessionID)
	if err != nil {
		return SelectionStatus{}, err
	}
	return a.statusOf(sess), nil
}

// CloseSelection abandons the session. Pending reveal timers are
// cancelled; an abandoned session never generates a reading.
func (a *App) CloseSelection(user domain.User, sessionID string) error {
	sess, err := a.selectionFor(user, sessionID)
	if err != nil {
		return err
	}
	sess.machine.Close()
	a.mu.Lock()
	delete(a.selections, sessionID)
	a.mu.Unlock()
	return nil
}

// completeSelection runs in the machine's timer goroutine, exactly once
// per session. The session outlives the request that created it, so the
// generation call is not bound to any request context.
func (a *App) completeSelection(sess *selectionSession, hand domain.Hand) {
	reading, err := a.GenerateReading(context.Background(), sess.user, sess.question, hand)
	a.mu.Lock()
	if err != nil {
		sess.genErr = err
	} else {
		sess.readingID = reading.ID
	}
	close(sess.done)
	a.mu.Unlock()
	if err != nil {
		slog.Error("reading generation failed", "selection", sess.id, "err", err)
	}
}

func (a *App) selectionFor(user domain.User, sessionID string) (*selectionSession, error) {
	a.mu.Lock()
	sess, ok := a.selections[sessionID]
	a.mu.Unlock()
	if !ok || sess.userID != user.ID {
		return nil, ErrSelectionNotFound
	}
	return sess, nil
}

func (a *App) statusOf(sess *selectionSession) SelectionStatus {
	state, hand, flipped := sess.machine.Snapshot()
	status := SelectionStatus{
		ID:       sess.id,
		Question: sess.question,
		State:    string(state),
		Hand:     hand,
		Flipped:  flipped,
	}
	select {
	case <-sess.done:
		a.mu.Lock()
		status.ReadingID = sess.readingID
		if sess.genErr != nil {
			status.Error = sess.genErr.Error()
		}
		a.mu.Unlock()
	default:
	}
	return status
}
