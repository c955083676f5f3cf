// Package sandbox gates instructions before any operation runs.
//
// The checks are substring heuristics over the instruction text. They do
// not canonicalise paths: handlers only ever touch fixed paths under the
// sandbox root, so the instruction is the only untrusted channel and the
// guard is a coarse filter on it, not an isolation boundary.
package sandbox

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule identifiers reported in a Violation.
const (
	RulePathEscape        = "path_escape"
	RuleDestructiveIntent = "destructive_intent"
)

// DeletionReason is reported for the destructive-intent rule.
const DeletionReason = "Deletion of files is not allowed."

// Rules holds the raw deny tokens organised by rule.
type Rules struct {
	PathTokens       []string `yaml:"path_tokens"`
	DestructiveWords []string `yaml:"destructive_words"`
}

// Violation describes why an instruction was rejected.
type Violation struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
	Match  string `json:"match"`
}

func (v *Violation) Error() string {
	return v.Reason
}

// Guard evaluates the deny rules. A Guard is immutable once built.
type Guard struct {
	root        string
	pathTokens  []string
	destructive []string
}

// New creates a Guard for the given sandbox root. Extra tokens are merged
// with DefaultRules, lower-cased and de-duplicated.
func New(root string, extra Rules) *Guard {
	return &Guard{
		root:        root,
		pathTokens:  merge(DefaultRules.PathTokens, extra.PathTokens),
		destructive: merge(DefaultRules.DestructiveWords, extra.DestructiveWords),
	}
}

// NewDefault creates a Guard with only the built-in rules.
func NewDefault(root string) *Guard {
	return New(root, Rules{})
}

// Load reads extra deny tokens from a YAML file. An empty path or a missing
// file yields the defaults.
func Load(root, path string) (*Guard, error) {
	if path == "" {
		return NewDefault(root), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(root), nil
		}
		return nil, fmt.Errorf("read deny rules: %w", err)
	}

	var extra Rules
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse deny rules: %w", err)
	}

	return New(root, extra), nil
}

// Check returns nil when the instruction passes every deny rule.
// Path escape is evaluated before destructive intent; both are terminal.
func (g *Guard) Check(instruction string) *Violation {
	lower := strings.ToLower(instruction)

	for _, tok := range g.pathTokens {
		if strings.Contains(lower, tok) {
			return &Violation{
				Rule:   RulePathEscape,
				Reason: g.escapeReason(),
				Match:  tok,
			}
		}
	}

	for _, word := range g.destructive {
		if strings.Contains(lower, word) {
			return &Violation{
				Rule:   RuleDestructiveIntent,
				Reason: DeletionReason,
				Match:  word,
			}
		}
	}

	return nil
}

// Rules returns a copy of the effective deny tokens.
func (g *Guard) Rules() Rules {
	return Rules{
		PathTokens:       append([]string(nil), g.pathTokens...),
		DestructiveWords: append([]string(nil), g.destructive...),
	}
}

// Root returns the sandbox root the guard reports in its reasons.
func (g *Guard) Root() string {
	return g.root
}

func (g *Guard) escapeReason() string {
	root := g.root
	if root == "" {
		root = "the sandbox"
	}
	return fmt.Sprintf("Access outside %s is restricted.", root)
}

func merge(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
