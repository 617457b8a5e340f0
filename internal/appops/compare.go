package appops

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Comparator orders entries: negative if a sorts before b, positive if
// after, zero if equal.
type Comparator func(a, b *Entry) int

// RecencyComparator orders by switch order, then running entries first, then
// most recently used first, then by label in the given locale.
//
// The returned comparator owns a collator and must not be shared between
// goroutines.
func RecencyComparator(tag language.Tag) Comparator {
	byLabel := LabelComparator(tag)
	return func(a, b *Entry) int {
		if a.SwitchOrder() != b.SwitchOrder() {
			if a.SwitchOrder() < b.SwitchOrder() {
				return -1
			}
			return 1
		}
		if a.IsRunning() != b.IsRunning() {
			if a.IsRunning() {
				return -1
			}
			return 1
		}
		if !a.Time().Equal(b.Time()) {
			if a.Time().After(b.Time()) {
				return -1
			}
			return 1
		}
		return byLabel(a, b)
	}
}

// LabelComparator orders purely by app label in the given locale.
func LabelComparator(tag language.Tag) Comparator {
	c := collate.New(tag, collate.IgnoreCase)
	return func(a, b *Entry) int {
		return c.CompareString(a.App().Label(), b.App().Label())
	}
}

// ComparatorByName maps the CLI sort names to comparators.
func ComparatorByName(name string, tag language.Tag) (Comparator, bool) {
	switch name {
	case "", "recency", "recent":
		return RecencyComparator(tag), true
	case "label", "name":
		return LabelComparator(tag), true
	}
	return nil, false
}
