package audit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	return l, path
}

func testEntry(outcome, op string) Entry {
	return Entry{
		Timestamp:   time.Now().UTC().Format(TimestampFormat),
		RequestID:   "req-1",
		Instruction: "sort contacts",
		Operation:   op,
		Outcome:     outcome,
	}
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 5; i++ {
		if err := l.Record(testEntry("success", "sort_contacts")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record(testEntry("success", "sort_contacts"))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"success"`, `"handler_error"`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record(testEntry("success", "sort_contacts"))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	os.WriteFile(path, []byte(lines[0]+"\n"+lines[2]+"\n"), 0o644)

	result := Verify(path)
	if result.Valid || result.ErrorLine != 2 {
		t.Fatalf("expected break at line 2, got %+v", result)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry("success", "sort_contacts"))
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l2.Record(testEntry("policy_violation", ""))
	l2.Close()

	if result := Verify(path); !result.Valid || result.Lines != 2 {
		t.Fatalf("expected valid 2-line chain after reopen, got %+v", result)
	}
}

func TestConcurrentWritesKeepChain(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(testEntry("success", "count_wednesdays"))
		}()
	}
	wg.Wait()
	l.Close()

	if result := Verify(path); !result.Valid || result.Lines != 20 {
		t.Fatalf("expected valid 20-line chain, got %+v", result)
	}
}

func TestSummarizeCountsByOutcomeAndOperation(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry("success", "sort_contacts"))
	l.Record(testEntry("success", "count_wednesdays"))
	l.Record(testEntry("policy_violation", ""))
	l.Record(testEntry("unknown_task", ""))
	l.Close()

	s, err := Summarize(path, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 4 {
		t.Fatalf("expected 4 entries, got %d", s.Total)
	}
	if s.ByOutcome["success"] != 2 || s.ByOutcome["policy_violation"] != 1 {
		t.Fatalf("unexpected outcome counts: %v", s.ByOutcome)
	}

	s, err = Summarize(path, Filter{Operation: "SORT_CONTACTS"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 1 || s.Entries[0].Operation != "sort_contacts" {
		t.Fatalf("expected one sort_contacts entry, got %+v", s)
	}
}

func TestSummarizeTimeWindow(t *testing.T) {
	l, path := newTestLog(t)
	old := testEntry("success", "a")
	old.Timestamp = "2020-01-01T00:00:00.000Z"
	l.Record(old)
	l.Record(testEntry("success", "b"))
	l.Close()

	s, err := Summarize(path, Filter{From: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 1 || s.Entries[0].Operation != "b" {
		t.Fatalf("expected only the recent entry, got %+v", s)
	}
}
