package deck

import "testing"

func TestCatalogLookup(t *testing.T) {
	if !Contains("The Lovers") {
		t.Fatalf("expected The Lovers in catalog")
	}
	if Contains("The Spreadsheet") {
		t.Fatalf("unexpected card in catalog")
	}
	card, ok := Get("The Tower")
	if !ok || card.ImageKey == "" {
		t.Fatalf("expected The Tower with artwork key, got %+v ok=%v", card, ok)
	}
}

func TestCatalogIsStable(t *testing.T) {
	first := Cards()
	first[0].Name = "mutated"
	second := Cards()
	if second[0].Name == "mutated" {
		t.Fatalf("Cards must return a copy")
	}
	if len(second) != Size() {
		t.Fatalf("catalog size mismatch: %d vs %d", len(second), Size())
	}
	seen := map[string]bool{}
	for _, c := range second {
		if seen[c.Name] {
			t.Fatalf("duplicate card %q", c.Name)
		}
		seen[c.Name] = true
	}
}
