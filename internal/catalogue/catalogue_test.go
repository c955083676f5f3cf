package catalogue

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func stub(msg string) Handler {
	return func(ctx context.Context) (string, error) { return msg, nil }
}

func ids(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func TestResolveFirstMatchWins(t *testing.T) {
	c, err := New(
		Rule{Phrase: "format markdown", ID: "format", Handler: stub("f")},
		Rule{Phrase: "markdown", ID: "generic", Handler: stub("g")},
	)
	if err != nil {
		t.Fatal(err)
	}

	r, ok := c.Resolve("please format markdown now")
	if !ok || r.ID != "format" {
		t.Fatalf("expected format, got %q (ok=%v)", r.ID, ok)
	}

	r, ok = c.Resolve("convert markdown")
	if !ok || r.ID != "generic" {
		t.Fatalf("expected generic, got %q (ok=%v)", r.ID, ok)
	}
}

func TestResolveOrderIsDeclarationOrder(t *testing.T) {
	// "markdown" would also match "format markdown"; declared first, it wins.
	c, err := New(
		Rule{Phrase: "markdown", ID: "generic", Handler: stub("g")},
		Rule{Phrase: "format markdown", ID: "format", Handler: stub("f")},
	)
	if err != nil {
		t.Fatal(err)
	}

	r, _ := c.Resolve("format markdown")
	if r.ID != "generic" {
		t.Fatalf("expected earlier rule to win, got %q", r.ID)
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	c, err := New(Rule{Phrase: "Sort Contacts", ID: "sort", Handler: stub("s")})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Resolve("SORT CONTACTS please"); !ok {
		t.Fatal("expected case-insensitive match")
	}
}

func TestResolveNotFound(t *testing.T) {
	c, err := New(Rule{Phrase: "sort contacts", ID: "sort", Handler: stub("s")})
	if err != nil {
		t.Fatal(err)
	}

	if r, ok := c.Resolve("juggle flaming torches"); ok {
		t.Fatalf("expected no match, got %q", r.ID)
	}
}

func TestNewRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		want  string
	}{
		{"empty phrase", []Rule{{Phrase: "  ", ID: "a", Handler: stub("")}}, "empty phrase"},
		{"empty id", []Rule{{Phrase: "a", Handler: stub("")}}, "empty operation id"},
		{"nil handler", []Rule{{Phrase: "a", ID: "a"}}, "nil handler"},
		{"duplicate id", []Rule{
			{Phrase: "a", ID: "x", Handler: stub("")},
			{Phrase: "b", ID: "x", Handler: stub("")},
		}, "duplicate operation id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.rules...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestRulesPreservesOrderAndIsCopy(t *testing.T) {
	c, err := New(
		Rule{Phrase: "b", ID: "b", Handler: stub("")},
		Rule{Phrase: "a", ID: "a", Handler: stub("")},
		Rule{Phrase: "c", ID: "c", Handler: stub("")},
	)
	if err != nil {
		t.Fatal(err)
	}

	got := c.Rules()
	if diff := cmp.Diff([]string{"b", "a", "c"}, ids(got)); diff != "" {
		t.Fatalf("rule order mismatch (-want +got):\n%s", diff)
	}

	got[0].Phrase = "zzz"
	if r, _ := c.Resolve("b"); r.ID != "b" {
		t.Fatal("mutating Rules() result must not affect the catalogue")
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 rules, got %d", c.Len())
	}
}
