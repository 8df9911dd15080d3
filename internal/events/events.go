// Package events publishes history change notifications.
package events

import (
	"context"
	"time"
)

type Type string

const (
	RecordAdded     Type = "record.added"
	RecordDeleted   Type = "record.deleted"
	HistoryCleared  Type = "history.cleared"
	HistoryImported Type = "history.imported"
	RecordSnapshot  Type = "record.snapshot"
)

// Event is the JSON message published for each history change.
type Event struct {
	Type     Type      `json:"type"`
	OwnerID  string    `json:"ownerId"`
	RecordID string    `json:"recordId,omitempty"`
	Category string    `json:"category,omitempty"`
	CO2e     float64   `json:"co2e,omitempty"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
