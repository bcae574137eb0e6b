// Package events publishes notifications about record mutations to message brokers.
package events

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Op is the kind of mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes a successful create, update or delete.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	ID        any            `json:"id"`
	Data      map[string]any `json:"data,omitempty"`
	Table     string         `json:"table"`
	Op        Op             `json:"op"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi fans an event out to several publishers. Every publisher is tried;
// the returned error joins the individual failures.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subject returns the dot-separated NATS subject `<prefix>.<table>.<op>`.
func Subject(prefix string, e Event) string {
	return join(".", prefix, e.Table, string(e.Op))
}

// Topic returns the slash-separated MQTT topic `<prefix>/<table>/<op>`.
func Topic(prefix string, e Event) string {
	return join("/", prefix, e.Table, string(e.Op))
}

func join(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.Trim(p, sep); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
