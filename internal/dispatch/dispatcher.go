// Package dispatch runs one instruction through the guard, the catalogue
// and the matched handler.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/taskgate/internal/audit"
	"github.com/ppiankov/taskgate/internal/catalogue"
	"github.com/ppiankov/taskgate/internal/metrics"
	"github.com/ppiankov/taskgate/internal/sandbox"
)

// Guard gates instructions before any side effect.
type Guard interface {
	Check(instruction string) *sandbox.Violation
}

// Recorder persists one entry per dispatch.
type Recorder interface {
	Record(entry audit.Entry) error
}

// Config holds dispatcher dependencies. Guard and Catalogue are required.
type Config struct {
	Guard     Guard
	Catalogue *catalogue.Catalogue
	Timeout   time.Duration
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Audit     Recorder
}

// Dispatcher is safe for concurrent use. It holds no mutable state.
type Dispatcher struct {
	guard   Guard
	cat     *catalogue.Catalogue
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
	audit   Recorder
}

// New creates a Dispatcher. A zero Timeout disables the handler deadline.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Guard == nil {
		return nil, errors.New("dispatch: guard is required")
	}
	if cfg.Catalogue == nil {
		return nil, errors.New("dispatch: catalogue is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("dispatch: negative timeout %s", cfg.Timeout)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		guard:   cfg.Guard,
		cat:     cfg.Catalogue,
		timeout: cfg.Timeout,
		log:     log,
		metrics: cfg.Metrics,
		audit:   cfg.Audit,
	}, nil
}

// WithGuard returns a copy that gates with g and shares everything else.
func (d *Dispatcher) WithGuard(g Guard) *Dispatcher {
	cp := *d
	cp.guard = g
	return &cp
}

// Catalogue returns the catalogue the dispatcher resolves against.
func (d *Dispatcher) Catalogue() *catalogue.Catalogue {
	return d.cat
}

// Check runs the guard and the resolver without invoking a handler.
func (d *Dispatcher) Check(instruction string) (*Plan, error) {
	if v := d.guard.Check(instruction); v != nil {
		return nil, &Failure{Kind: PolicyViolation, Detail: v.Reason, Err: v}
	}
	rule, ok := d.cat.Resolve(instruction)
	if !ok {
		return nil, &Failure{Kind: UnknownTask, Detail: UnknownTaskDetail}
	}
	return &Plan{OperationID: rule.ID, Phrase: rule.Phrase}, nil
}

// Dispatch gates, resolves and executes the instruction. Every failure is
// a *Failure.
func (d *Dispatcher) Dispatch(ctx context.Context, instruction string) (*Outcome, error) {
	reqID := uuid.NewString()
	start := time.Now()

	if v := d.guard.Check(instruction); v != nil {
		f := &Failure{Kind: PolicyViolation, Detail: v.Reason, RequestID: reqID, Err: v}
		d.finish(instruction, f, nil, start, zap.String("rule", v.Rule), zap.String("match", v.Match))
		return nil, f
	}

	rule, ok := d.cat.Resolve(instruction)
	if !ok {
		f := &Failure{Kind: UnknownTask, Detail: UnknownTaskDetail, RequestID: reqID}
		d.finish(instruction, f, nil, start)
		return nil, f
	}

	msg, err := d.invoke(ctx, rule)
	d.metrics.ObserveHandler(rule.ID, time.Since(start))
	if err != nil {
		f := &Failure{
			Kind:        HandlerError,
			Detail:      err.Error(),
			OperationID: rule.ID,
			RequestID:   reqID,
			Err:         err,
		}
		d.finish(instruction, f, nil, start)
		return nil, f
	}

	out := &Outcome{
		RequestID:   reqID,
		OperationID: rule.ID,
		Message:     msg,
		Duration:    time.Since(start),
	}
	d.finish(instruction, nil, out, start)
	return out, nil
}

func (d *Dispatcher) invoke(ctx context.Context, rule catalogue.Rule) (msg string, err error) {
	hctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			msg = ""
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	msg, err = rule.Handler(hctx)
	if err != nil && errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Errorf("operation timed out after %s: %w", d.timeout, err)
	}
	return msg, err
}

// finish logs, counts and audits one dispatch. Exactly one of f and out is set.
func (d *Dispatcher) finish(instruction string, f *Failure, out *Outcome, start time.Time, extra ...zap.Field) {
	elapsed := time.Since(start)

	entry := audit.Entry{
		Instruction: instruction,
		DurationMS:  elapsed.Milliseconds(),
	}
	fields := append([]zap.Field{
		zap.String("instruction", instruction),
		zap.Duration("duration", elapsed),
	}, extra...)

	if f != nil {
		entry.RequestID = f.RequestID
		entry.Operation = f.OperationID
		entry.Outcome = string(f.Kind)
		entry.Detail = f.Detail
		fields = append(fields,
			zap.String("request_id", f.RequestID),
			zap.String("operation", f.OperationID),
			zap.String("outcome", string(f.Kind)),
			zap.String("detail", f.Detail),
		)
		if f.Kind == HandlerError {
			d.log.Error("dispatch failed", fields...)
		} else {
			d.log.Warn("dispatch rejected", fields...)
		}
		d.metrics.ObserveDispatch(f.OperationID, string(f.Kind))
	} else {
		entry.RequestID = out.RequestID
		entry.Operation = out.OperationID
		entry.Outcome = OutcomeSuccess
		entry.Detail = out.Message
		fields = append(fields,
			zap.String("request_id", out.RequestID),
			zap.String("operation", out.OperationID),
			zap.String("outcome", OutcomeSuccess),
		)
		d.log.Info("dispatch succeeded", fields...)
		d.metrics.ObserveDispatch(out.OperationID, OutcomeSuccess)
	}

	if d.audit == nil {
		return
	}
	if err := d.audit.Record(entry); err != nil {
		d.log.Error("audit write failed", zap.String("request_id", entry.RequestID), zap.Error(err))
	}
}
