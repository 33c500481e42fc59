// Package interactions flags drug/drug and drug/substance concerns in a
// medication list using a static knowledge base.
package interactions

import (
	_ "embed"
	"fmt"
	"strings"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default_kb.yaml
var defaultKB []byte

type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityMild     Severity = "mild"
)

func (s Severity) Valid() bool {
	switch s {
	case SeveritySevere, SeverityModerate, SeverityMild:
		return true
	}
	return false
}

// SeverityColor is the display colour used by the UI and CLI.
func SeverityColor(s Severity) string {
	switch s {
	case SeveritySevere:
		return "#d32f2f"
	case SeverityModerate:
		return "#f57c00"
	case SeverityMild:
		return "#1976d2"
	default:
		return "#666666"
	}
}

// Entry is the knowledge base record for one medication.
type Entry struct {
	InteractsWith []string `yaml:"interactsWith" json:"interactsWith"`
	Severity      Severity `yaml:"severity" json:"severity"`
	Warning       string   `yaml:"warning" json:"warning"`
}

// Lists reports whether name appears in the entry's interaction set.
func (e Entry) Lists(name string) bool {
	n := normalize(name)
	for _, other := range e.InteractsWith {
		if other == n {
			return true
		}
	}
	return false
}

// Patterns is a list of lower-cased name fragments. In YAML it may be a
// single string or a list.
type Patterns []string

func (p *Patterns) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*p = Patterns{value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*p = list
	return nil
}

// SubstanceRule flags a food or substance class for any medication whose
// name contains one of Match.
type SubstanceRule struct {
	Match     Patterns `yaml:"match" json:"match"`
	Substance string   `yaml:"substance" json:"substance"`
	Severity  Severity `yaml:"severity" json:"severity"`
	Warning   string   `yaml:"warning" json:"warning"`
}

// Applies reports whether the rule matches a medication name.
func (r SubstanceRule) Applies(name string) bool {
	n := normalize(name)
	for _, m := range r.Match {
		if strings.Contains(n, m) {
			return true
		}
	}
	return false
}

// Matcher is the lookup policy the resolver runs against. KnowledgeBase is
// the built-in implementation; a real drug database can replace it without
// touching the pair scan.
type Matcher interface {
	Lookup(name string) (Entry, bool)
	SubstanceRules() []SubstanceRule
}

// KnowledgeBase is an immutable, validated interaction table.
type KnowledgeBase struct {
	entries map[string]Entry
	rules   []SubstanceRule
}

type document struct {
	Interactions   map[string]Entry `yaml:"interactions"`
	SubstanceRules []SubstanceRule  `yaml:"substanceRules"`
}

// NewKnowledgeBase normalizes names and rejects unknown severities.
func NewKnowledgeBase(entries map[string]Entry, rules []SubstanceRule) (*KnowledgeBase, error) {
	kb := &KnowledgeBase{
		entries: make(map[string]Entry, len(entries)),
		rules:   make([]SubstanceRule, 0, len(rules)),
	}

	for name, e := range entries {
		key := normalize(name)
		if key == "" {
			return nil, apperrors.New(apperrors.CodeKBInvalid, "empty medication key")
		}
		if !e.Severity.Valid() {
			return nil, apperrors.New(apperrors.CodeKBInvalid,
				fmt.Sprintf("entry %q has unknown severity %q", name, e.Severity))
		}
		if _, dup := kb.entries[key]; dup {
			return nil, apperrors.New(apperrors.CodeKBInvalid, fmt.Sprintf("duplicate entry %q", key))
		}
		names := make([]string, 0, len(e.InteractsWith))
		for _, other := range e.InteractsWith {
			if n := normalize(other); n != "" {
				names = append(names, n)
			}
		}
		kb.entries[key] = Entry{InteractsWith: names, Severity: e.Severity, Warning: e.Warning}
	}

	for i, r := range rules {
		match := make(Patterns, 0, len(r.Match))
		for _, m := range r.Match {
			if m = normalize(m); m != "" {
				match = append(match, m)
			}
		}
		r.Match = match
		if len(r.Match) == 0 || strings.TrimSpace(r.Substance) == "" {
			return nil, apperrors.New(apperrors.CodeKBInvalid,
				fmt.Sprintf("substance rule %d needs match and substance", i))
		}
		if !r.Severity.Valid() {
			return nil, apperrors.New(apperrors.CodeKBInvalid,
				fmt.Sprintf("substance rule %q has unknown severity %q", strings.Join(r.Match, "|"), r.Severity))
		}
		kb.rules = append(kb.rules, r)
	}

	return kb, nil
}

// Parse reads a YAML (or JSON) knowledge base document.
func Parse(data []byte) (*KnowledgeBase, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.New(apperrors.CodeKBInvalid, "failed to parse knowledge base", err)
	}
	if len(doc.Interactions) == 0 && len(doc.SubstanceRules) == 0 {
		return nil, apperrors.New(apperrors.CodeKBInvalid, "knowledge base is empty")
	}
	return NewKnowledgeBase(doc.Interactions, doc.SubstanceRules)
}

// Default returns the embedded knowledge base.
func Default() *KnowledgeBase {
	kb, err := Parse(defaultKB)
	if err != nil {
		panic(fmt.Sprintf("embedded knowledge base: %v", err))
	}
	return kb
}

func (kb *KnowledgeBase) Lookup(name string) (Entry, bool) {
	e, ok := kb.entries[normalize(name)]
	return e, ok
}

func (kb *KnowledgeBase) SubstanceRules() []SubstanceRule {
	return kb.rules
}

func (kb *KnowledgeBase) Len() int {
	return len(kb.entries)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
