// Package events publishes attachment lifecycle events.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	KindUpload  Kind = "upload"
	KindSave    Kind = "save"
	KindDestroy Kind = "destroy"
)

type Event struct {
	Kind        Kind      `json:"kind"`
	Attribute   string    `json:"attribute"`
	Record      string    `json:"record,omitempty"`
	Path        string    `json:"path"`
	URL         string    `json:"url"`
	TempValue   string    `json:"temp_value,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Versions    []string  `json:"versions,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, ev Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "attachment event",
		"kind", ev.Kind,
		"attribute", ev.Attribute,
		"record", ev.Record,
		"path", ev.Path,
		"size", ev.Size,
	)
	return nil
}

// Memory keeps published events, mostly for tests and the inspect command.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
