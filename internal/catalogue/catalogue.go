// Package catalogue maps instruction phrases to operations.
//
// Matching is a case-insensitive substring test against the instruction,
// evaluated in declaration order. The first rule that matches wins; overlap
// between phrases is resolved by that order alone.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Handler performs one operation and returns a short confirmation.
type Handler func(ctx context.Context) (string, error)

// Rule binds a match phrase to an operation.
type Rule struct {
	Phrase  string
	ID      string
	Handler Handler
}

// Catalogue is an ordered, immutable set of rules.
type Catalogue struct {
	rules []Rule
}

// New builds a Catalogue. Phrases are lower-cased; empty phrases, empty or
// duplicate IDs and nil handlers are rejected.
func New(rules ...Rule) (*Catalogue, error) {
	seen := make(map[string]bool, len(rules))
	out := make([]Rule, 0, len(rules))
	var errs []error

	for i, r := range rules {
		phrase := strings.ToLower(strings.TrimSpace(r.Phrase))
		switch {
		case phrase == "":
			errs = append(errs, fmt.Errorf("rule %d: empty phrase", i))
			continue
		case r.ID == "":
			errs = append(errs, fmt.Errorf("rule %d (%q): empty operation id", i, phrase))
			continue
		case r.Handler == nil:
			errs = append(errs, fmt.Errorf("rule %d (%s): nil handler", i, r.ID))
			continue
		case seen[r.ID]:
			errs = append(errs, fmt.Errorf("rule %d: duplicate operation id %s", i, r.ID))
			continue
		}
		seen[r.ID] = true
		out = append(out, Rule{Phrase: phrase, ID: r.ID, Handler: r.Handler})
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid catalogue: %w", errors.Join(errs...))
	}
	return &Catalogue{rules: out}, nil
}

// Resolve returns the first rule whose phrase occurs in the instruction.
func (c *Catalogue) Resolve(instruction string) (Rule, bool) {
	lower := strings.ToLower(instruction)
	for _, r := range c.rules {
		if strings.Contains(lower, r.Phrase) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns the rules in priority order.
func (c *Catalogue) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Len returns the number of rules.
func (c *Catalogue) Len() int {
	return len(c.rules)
}
