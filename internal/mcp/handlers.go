package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/taskgate/internal/dispatch"
	"github.com/ppiankov/taskgate/internal/fileread"
)

// --- Input/Output types ---

// TaskInput defines parameters for run_task and check_task.
type TaskInput struct {
	Task string `json:"task" jsonschema:"plain-English task description"`
}

// RunOutput contains the task result or failure details.
type RunOutput struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Operation  string `json:"operation,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// CheckOutput contains the dry-run decision.
type CheckOutput struct {
	Allowed   bool   `json:"allowed"`
	Operation string `json:"operation,omitempty"`
	Phrase    string `json:"phrase,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ReadInput defines parameters for read_file.
type ReadInput struct {
	Path string `json:"path" jsonschema:"file path to read"`
}

// ReadOutput contains the file content or failure details.
type ReadOutput struct {
	Content string `json:"content,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ListInput takes no parameters.
type ListInput struct{}

// Operation describes one catalogue entry.
type Operation struct {
	Phrase string `json:"phrase"`
	ID     string `json:"id"`
}

// ListOutput lists the catalogue in priority order.
type ListOutput struct {
	Operations []Operation `json:"operations"`
}

// --- Handlers ---

func (s *Server) handleRun(ctx context.Context, req *mcpsdk.CallToolRequest, input TaskInput) (*mcpsdk.CallToolResult, RunOutput, error) {
	out, err := s.backend.Dispatch(ctx, input.Task)
	if err != nil {
		var f *dispatch.Failure
		if errors.As(err, &f) {
			return &mcpsdk.CallToolResult{IsError: true}, RunOutput{
				Status:    "error",
				Operation: f.OperationID,
				RequestID: f.RequestID,
				Kind:      string(f.Kind),
				Detail:    f.Detail,
			}, nil
		}
		return nil, RunOutput{}, err
	}

	return nil, RunOutput{
		Status:     "success",
		Message:    out.Message,
		Operation:  out.OperationID,
		RequestID:  out.RequestID,
		DurationMS: out.Duration.Milliseconds(),
	}, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input TaskInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	plan, err := s.backend.Check(input.Task)
	if err != nil {
		var f *dispatch.Failure
		if errors.As(err, &f) {
			return nil, CheckOutput{Kind: string(f.Kind), Detail: f.Detail}, nil
		}
		return nil, CheckOutput{}, err
	}
	return nil, CheckOutput{Allowed: true, Operation: plan.OperationID, Phrase: plan.Phrase}, nil
}

func (s *Server) handleRead(ctx context.Context, req *mcpsdk.CallToolRequest, input ReadInput) (*mcpsdk.CallToolResult, ReadOutput, error) {
	if input.Path == "" {
		return &mcpsdk.CallToolResult{IsError: true}, ReadOutput{Detail: "path is required"}, nil
	}

	content, err := s.backend.Read(input.Path)
	switch {
	case err == nil:
		return nil, ReadOutput{Content: content}, nil
	case errors.Is(err, fileread.ErrNotFound):
		return &mcpsdk.CallToolResult{IsError: true}, ReadOutput{Detail: "File not found"}, nil
	default:
		return &mcpsdk.CallToolResult{IsError: true}, ReadOutput{Detail: err.Error()}, nil
	}
}

func (s *Server) handleList(ctx context.Context, req *mcpsdk.CallToolRequest, input ListInput) (*mcpsdk.CallToolResult, ListOutput, error) {
	rules := s.backend.Catalogue().Rules()
	out := ListOutput{Operations: make([]Operation, len(rules))}
	for i, r := range rules {
		out.Operations[i] = Operation{Phrase: r.Phrase, ID: r.ID}
	}
	return nil, out, nil
}
