package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Filter selects entries for Summarize. Zero values match everything.
type Filter struct {
	Operation string
	From      time.Time
	To        time.Time
}

// Summary counts entries by outcome.
type Summary struct {
	Total     int            `json:"total"`
	ByOutcome map[string]int `json:"by_outcome"`
	ByOp      map[string]int `json:"by_operation"`
	First     string         `json:"first_timestamp,omitempty"`
	Last      string         `json:"last_timestamp,omitempty"`
	Entries   []Entry        `json:"entries"`
}

// Summarize reads the log and aggregates the entries matching filter.
// Malformed lines are skipped; use Verify to detect them.
func Summarize(path string, filter Filter) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	s := &Summary{ByOutcome: map[string]int{}, ByOp: map[string]int{}}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if !filter.match(e) {
			continue
		}
		s.Total++
		s.ByOutcome[e.Outcome]++
		if e.Operation != "" {
			s.ByOp[e.Operation]++
		}
		if s.First == "" {
			s.First = e.Timestamp
		}
		s.Last = e.Timestamp
		s.Entries = append(s.Entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return s, nil
}

func (f Filter) match(e Entry) bool {
	if f.Operation != "" && !strings.EqualFold(f.Operation, e.Operation) {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}
