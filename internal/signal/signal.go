// Package signal defines the events the workflow manager emits and the
// emitters that deliver them.
package signal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
)

type Kind string

const (
	ChoreClaimed     Kind = "chore_claimed"
	ChoreApproved    Kind = "chore_approved"
	ChoreDisapproved Kind = "chore_disapproved"
	ChoreCompleted   Kind = "chore_completed"
	ChoreOverdue     Kind = "chore_overdue"
	ChoreMissed      Kind = "chore_missed"
	ChoreReset       Kind = "chore_reset"
	ChoreDueSoon     Kind = "chore_due_soon"
)

// Signal describes one state transition of a (chore, assignee) pair.
type Signal struct {
	Kind    Kind           `json:"kind"`
	ChoreID string         `json:"chore_id"`
	UserID  string         `json:"user_id"`
	Cycle   string         `json:"cycle"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// State returns the resolved state carried in the payload, if any.
func (s Signal) State() model.VisibleState {
	switch v := s.Payload["state"].(type) {
	case model.VisibleState:
		return v
	case string:
		return model.VisibleState(v)
	}
	return ""
}

// Emitter delivers signals to listeners.
type Emitter interface {
	Emit(ctx context.Context, sig Signal) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, sig Signal) error

func (f EmitterFunc) Emit(ctx context.Context, sig Signal) error {
	return f(ctx, sig)
}

// Multi fans a signal out to every emitter. All emitters run; their errors
// are joined.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, sig Signal) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logger writes each signal to a structured log.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Emit(ctx context.Context, sig Signal) error {
	l.logger.InfoContext(ctx, "signal",
		"kind", sig.Kind,
		"chore_id", sig.ChoreID,
		"user_id", sig.UserID,
		"cycle", sig.Cycle,
	)
	return nil
}

// Recorder keeps every emitted signal in memory.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *Recorder) Emit(_ context.Context, sig Signal) error {
	r.mu.Lock()
	r.signals = append(r.signals, sig)
	r.mu.Unlock()
	return nil
}

// Signals returns a copy of the recorded signals in emission order.
func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

// Kinds returns the kinds of the recorded signals in emission order.
func (r *Recorder) Kinds() []Kind {
	sigs := r.Signals()
	out := make([]Kind, len(sigs))
	for i, s := range sigs {
		out[i] = s.Kind
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.signals = nil
	r.mu.Unlock()
}
