package interactions

import (
	"strings"
	"sync"
	"unicode"
)

type Kind string

const (
	KindDrugDrug      Kind = "drug-drug"
	KindDrugSubstance Kind = "drug-substance"
)

// Drug is the resolver's view of a medication.
type Drug struct {
	ID   string
	Name string
}

// Record is one flagged concern. Drug-drug records fill Medication2,
// drug-substance records fill Substance.
type Record struct {
	ID          string   `json:"id"`
	Kind        Kind     `json:"kind"`
	Medication1 string   `json:"medication1"`
	Medication2 string   `json:"medication2,omitempty"`
	Substance   string   `json:"substance,omitempty"`
	Severity    Severity `json:"severity"`
	Warning     string   `json:"warning"`
}

// Resolver runs the pair scan against a swappable Matcher.
type Resolver struct {
	mu      sync.RWMutex
	matcher Matcher
}

func NewResolver(m Matcher) *Resolver {
	if m == nil {
		m = Default()
	}
	return &Resolver{matcher: m}
}

// SetKnowledgeBase swaps the matcher, e.g. after a file reload.
func (r *Resolver) SetKnowledgeBase(m Matcher) {
	if m == nil {
		return
	}
	r.mu.Lock()
	r.matcher = m
	r.mu.Unlock()
}

func (r *Resolver) current() Matcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matcher
}

// Resolve returns drug-drug records in pair-scan order (i<j), followed by
// drug-substance records in medication order then rule order. A pair is
// flagged when either side's entry lists the other, and at most once.
func (r *Resolver) Resolve(drugs []Drug) []Record {
	m := r.current()
	records := make([]Record, 0)

	for i := 0; i < len(drugs); i++ {
		for j := i + 1; j < len(drugs); j++ {
			a, b := drugs[i], drugs[j]
			entry, ok := pairEntry(m, a.Name, b.Name)
			if !ok {
				continue
			}
			records = append(records, Record{
				ID:          a.ID + "-" + b.ID,
				Kind:        KindDrugDrug,
				Medication1: a.Name,
				Medication2: b.Name,
				Severity:    entry.Severity,
				Warning:     entry.Warning,
			})
		}
	}

	rules := m.SubstanceRules()
	for _, d := range drugs {
		for _, rule := range rules {
			if !rule.Applies(d.Name) {
				continue
			}
			records = append(records, Record{
				ID:          d.ID + "-" + slug(rule.Substance),
				Kind:        KindDrugSubstance,
				Medication1: d.Name,
				Substance:   rule.Substance,
				Severity:    rule.Severity,
				Warning:     rule.Warning,
			})
		}
	}

	return records
}

func pairEntry(m Matcher, a, b string) (Entry, bool) {
	if e, ok := m.Lookup(a); ok && e.Lists(b) {
		return e, true
	}
	if e, ok := m.Lookup(b); ok && e.Lists(a) {
		return e, true
	}
	return Entry{}, false
}

func slug(s string) string {
	return strings.Join(strings.FieldsFunc(normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), "-")
}
