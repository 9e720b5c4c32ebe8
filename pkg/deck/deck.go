// Package deck holds the static card catalog. Pure data, no logic
// beyond lookup.
package deck

import "tarotreader/pkg/domain"

// Cards returns the full catalog in canonical order. The returned
// slice is a copy; callers may reorder it freely.
func Cards() []domain.Card {
	out := make([]domain.Card, len(majorArcana))
	copy(out, majorArcana)
	return out
}

// Contains reports whether name is a catalog card.
func Contains(name string) bool {
	_, ok := byName[name]
	return ok
}

// Get returns the catalog entry for name.
func Get(name string) (domain.Card, bool) {
	c, ok := byName[name]
	return c, ok
}

// Size returns the number of cards in the catalog.
func Size() int {
	return len(majorArcana)
}

// The major arcana variant of the deck. Image keys address objects in
// the artwork bucket.
var majorArcana = []domain.Card{
	{Name: "The Fool", ImageKey: "cards/major/00-the-fool.jpg"},
	{Name: "The Magician", ImageKey: "cards/major/01-the-magician.jpg"},
	{Name: "The High Priestess", ImageKey: "cards/major/02-the-high-priestess.jpg"},
	{Name: "The Empress", ImageKey: "cards/major/03-the-empress.jpg"},
	{Name: "The Emperor", ImageKey: "cards/major/04-the-emperor.jpg"},
	{Name: "The Hierophant", ImageKey: "cards/major/05-the-hierophant.jpg"},
	{Name: "The Lovers", ImageKey: "cards/major/06-the-lovers.jpg"},
	{Name: "The Chariot", ImageKey: "cards/major/07-the-chariot.jpg"},
	{Name: "Strength", ImageKey: "cards/major/08-strength.jpg"},
	{Name: "The Hermit", ImageKey: "cards/major/09-the-hermit.jpg"},
	{Name: "Wheel of Fortune", ImageKey: "cards/major/10-wheel-of-fortune.jpg"},
	{Name: "Justice", ImageKey: "cards/major/11-justice.jpg"},
	{Name: "The Hanged Man", ImageKey: "cards/major/12-the-hanged-man.jpg"},
	{Name: "Death", ImageKey: "cards/major/13-death.jpg"},
	{Name: "Temperance", ImageKey: "cards/major/14-temperance.jpg"},
	{Name: "The Devil", ImageKey: "cards/major/15-the-devil.jpg"},
	{Name: "The Tower", ImageKey: "cards/major/16-the-tower.jpg"},
	{Name: "The Star", ImageKey: "cards/major/17-the-star.jpg"},
	{Name: "The Moon", ImageKey: "cards/major/18-the-moon.jpg"},
	{Name: "The Sun", ImageKey: "cards/major/19-the-sun.jpg"},
	{Name: "Judgement", ImageKey: "cards/major/20-judgement.jpg"},
	{Name: "The World", ImageKey: "cards/major/21-the-world.jpg"},
}

var byName = func() map[string]domain.Card {
	m := make(map[string]domain.Card, len(majorArcana))
	for _, c := range majorArcana {
		m[c.Name] = c
	}
	return m
}()
