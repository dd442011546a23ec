// Package events publishes search lifecycle events.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"recon/internal/search/models"
)

// Type names a lifecycle transition.
type Type string

const (
	TypeSearchCreated   Type = "search.created"
	TypeSearchStarted   Type = "search.started"
	TypeSearchCompleted Type = "search.completed"
	TypeSearchFailed    Type = "search.failed"
	TypeSearchDeleted   Type = "search.deleted"
)

// Lifecycle is emitted after a search row changed. It is transport-agnostic
// so sinks can be swapped.
type Lifecycle struct {
	Type         Type                `json:"type"`
	SearchID     uuid.UUID           `json:"search_id"`
	SearchType   models.SearchType   `json:"search_type"`
	Status       models.SearchStatus `json:"status"`
	ResultsCount int                 `json:"results_count"`
	FailedCount  int                 `json:"failed_count"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	RequestID    string              `json:"request_id,omitempty"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

// FromSearch builds the event for the current state of s.
func FromSearch(t Type, s *models.Search, failed int, now time.Time) Lifecycle {
	return Lifecycle{
		Type:         t,
		SearchID:     s.ID,
		SearchType:   s.Type,
		Status:       s.Status,
		ResultsCount: s.ResultsCount,
		FailedCount:  failed,
		ErrorMessage: s.ErrorMessage,
		OccurredAt:   now,
	}
}

// TerminalType maps a terminal status to its event type.
func TerminalType(status models.SearchStatus) Type {
	if status == models.SearchStatusCompleted {
		return TypeSearchCompleted
	}
	return TypeSearchFailed
}

// Publisher delivers lifecycle events. Delivery failures are returned to the
// caller, which logs them; they never change search state.
type Publisher interface {
	Publish(ctx context.Context, event Lifecycle) error
}

// Log writes events to a structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, event Lifecycle) error {
	l.logger.InfoContext(ctx, "search lifecycle event",
		"type", event.Type,
		"search_id", event.SearchID,
		"status", event.Status,
		"results_count", event.ResultsCount,
		"failed_count", event.FailedCount,
	)
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Lifecycle) error { return nil }
