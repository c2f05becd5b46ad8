// Package events publishes pipeline notifications: validated and
// committed imports, letterage runs and cleared letter codes.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	TypeImportValidated  Type = "import.validated"
	TypeImportCommitted  Type = "import.committed"
	TypeLetterageRun     Type = "letterage.run"
	TypeLetterageApplied Type = "letterage.applied"
	TypeLetterageCleared Type = "letterage.cleared"
)

// Event is one notification. Subject is the batch ID for imports and the
// account prefix or letter code for letterage.
type Event struct {
	ID      string    `json:"id"`
	Type    Type      `json:"type"`
	Subject string    `json:"subject"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data,omitempty"`
}

// New creates an event stamped with a fresh ID and the current time.
func New(t Type, subject string, data any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    t,
		Subject: subject,
		Time:    time.Now().UTC(),
		Data:    data,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, ...Event) error { return nil }
func (discard) Close() error                            { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records events.
func (r *Recorder) Publish(ctx context.Context, events ...Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the type of every recorded event, in order.
func (r *Recorder) Types() []Type {
	events := r.Events()
	out := make([]Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func (r *Recorder) Close() error { return nil }

// Tee publishes to every publisher. All of them are tried; the errors are
// joined.
func Tee(publishers ...Publisher) Publisher {
	return tee(publishers)
}

type tee []Publisher

func (t tee) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range t {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) Close() error {
	var errs []error
	for _, p := range t {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
