package domain

import (
	"fmt"
	"strings"
)

// HandSize is the fixed number of cards in a finalized spread.
// Positions 0/1/2 map to Past/Present/Future.
const HandSize = 3

const reversedSuffix = " (Reversed)"

// Hand is the ordered sequence of selected cards for one reading.
type Hand []SelectedCard

// Validate checks that the hand is complete and card names are non-empty.
func (h Hand) Validate() error {
	if len(h) != HandSize {
		return fmt.Errorf("hand must contain exactly %d cards, got %d", HandSize, len(h))
	}
	for i, c := range h {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("card %d has an empty name", i)
		}
	}
	return nil
}

// FormatHand serializes a hand to the persisted wire format:
// `"Name (Reversed), Name, Name (Reversed)"` with the suffix present
// iff the card is reversed. This encoding is stored, rendered and
// shared as-is, so it must round-trip through ParseHand.
func FormatHand(h Hand) string {
	parts := make([]string, 0, len(h))
	for _, c := range h {
		if c.IsReversed {
			parts = append(parts, c.Name+reversedSuffix)
			continue
		}
		parts = append(parts, c.Name)
	}
	return strings.Join(parts, ", ")
}

// ParseHand is the inverse of FormatHand. `"<Name> (Reversed)"` yields
// a reversed card; a bare `"<Name>"` an upright one.
func ParseHand(s string) Hand {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ", ")
	hand := make(Hand, 0, len(parts))
	for _, part := range parts {
		if name, ok := strings.CutSuffix(part, reversedSuffix); ok {
			hand = append(hand, SelectedCard{Name: name, IsReversed: true})
			continue
		}
		hand = append(hand, SelectedCard{Name: part, IsReversed: false})
	}
	return hand
}
