package ops

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order for every line of dates.txt.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02-Jan-2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
}

func weekdayPlural(d time.Weekday) string {
	return strings.ToLower(d.String()) + "s"
}

// countWeekday counts the dates in dates.txt falling on day and writes the
// count to dates-<day>s.txt.
func (h *Handlers) countWeekday(day time.Weekday) func(context.Context) (string, error) {
	out := "dates-" + weekdayPlural(day) + ".txt"
	msg := fmt.Sprintf("Counted %ss and saved.", day)

	return func(ctx context.Context) (string, error) {
		data, err := h.readFile("dates.txt")
		if err != nil {
			return "", err
		}

		n, err := countWeekdays(ctx, data, day)
		if err != nil {
			return "", err
		}
		if err := h.writeFile(out, []byte(strconv.Itoa(n))); err != nil {
			return "", err
		}
		return msg, nil
	}
}

func countWeekdays(ctx context.Context, data []byte, day time.Weekday) (int, error) {
	count := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		t, err := parseDate(text)
		if err != nil {
			return 0, fmt.Errorf("dates.txt line %d: %w", line, err)
		}
		if t.Weekday() == day {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan dates.txt: %w", err)
	}
	return count, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
