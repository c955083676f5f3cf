package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/taskgate/internal/catalogue"
	"github.com/ppiankov/taskgate/internal/dispatch"
	"github.com/ppiankov/taskgate/internal/fileread"
	"github.com/ppiankov/taskgate/internal/sandbox"
)

type testBackend struct {
	*dispatch.Dispatcher
	reader *fileread.Reader
}

func (b testBackend) Read(path string) (string, error) {
	return b.reader.Read(path)
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	cat, err := catalogue.New(
		catalogue.Rule{Phrase: "say hello", ID: "hello", Handler: func(context.Context) (string, error) {
			return "Said hello.", nil
		}},
		catalogue.Rule{Phrase: "fail loudly", ID: "fail", Handler: func(context.Context) (string, error) {
			return "", os.ErrPermission
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	d, err := dispatch.New(dispatch.Config{Guard: sandbox.NewDefault(root), Catalogue: cat, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(testBackend{Dispatcher: d, reader: fileread.New(root, false)}, "test")
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	return s, root
}

func TestRunAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	result, out, err := s.handleRun(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{Task: "please SAY HELLO"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success, got error result")
	}
	if out.Status != "success" || out.Message != "Said hello." || out.Operation != "hello" {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestRunBlocked(t *testing.T) {
	s, _ := newTestServer(t)

	result, out, err := s.handleRun(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{Task: "say hello then delete everything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected error result for blocked task")
	}
	if out.Kind != string(dispatch.PolicyViolation) || out.Detail != sandbox.DeletionReason {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestRunUnknownAndFailed(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, _ := s.handleRun(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{Task: "juggle"})
	if out.Kind != string(dispatch.UnknownTask) {
		t.Fatalf("expected unknown_task, got %+v", out)
	}

	result, out, _ := s.handleRun(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{Task: "fail loudly"})
	if result == nil || !result.IsError {
		t.Fatal("expected error result for failed handler")
	}
	if out.Kind != string(dispatch.HandlerError) || out.Operation != "fail" {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestCheckTask(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, err := s.handleCheck(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{Task: "say hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Allowed || out.Operation != "hello" {
		t.Fatalf("unexpected output %+v", out)
	}

	_, out, _ = s.handleCheck(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{Task: "say hello from ../etc"})
	if out.Allowed || out.Kind != string(dispatch.PolicyViolation) {
		t.Fatalf("expected policy violation, got %+v", out)
	}
}

func TestReadFile(t *testing.T) {
	s, root := newTestServer(t)
	path := filepath.Join(root, "out.txt")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, out, err := s.handleRead(context.Background(), &mcpsdk.CallToolRequest{}, ReadInput{Path: path})
	if err != nil || out.Content != "content" {
		t.Fatalf("unexpected read result %+v, %v", out, err)
	}

	result, out, _ := s.handleRead(context.Background(), &mcpsdk.CallToolRequest{}, ReadInput{Path: filepath.Join(root, "missing.txt")})
	if result == nil || !result.IsError || out.Detail != "File not found" {
		t.Fatalf("expected not-found error, got %+v", out)
	}
}

func TestListOperations(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, err := s.handleList(context.Background(), &mcpsdk.CallToolRequest{}, ListInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Operations) != 2 || out.Operations[0].ID != "hello" {
		t.Fatalf("unexpected operations %+v", out.Operations)
	}
}

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Fatal("expected error for nil backend")
	}
}
