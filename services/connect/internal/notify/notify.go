// Package notify publishes claim request lifecycle events so that other
// processes (mailers, dashboards) can react without polling the stores.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// EventType names a lifecycle transition.
type EventType string

const (
	EventClaimCreated  EventType = "claim.created"
	EventClaimApproved EventType = "claim.approved"
	EventClaimRejected EventType = "claim.rejected"
)

// Event describes one claim request transition. It never carries contact
// details; consumers that need them must go through the API.
type Event struct {
	Type        EventType          `json:"type"`
	RequestID   string             `json:"request_id"`
	ItemID      string             `json:"item_id"`
	ItemTitle   string             `json:"item_title"`
	OwnerID     string             `json:"owner_id"`
	RequesterID string             `json:"requester_id"`
	Status      models.ClaimStatus `json:"status"`
	At          time.Time          `json:"at"`
}

// NewEvent builds the event for req.
func NewEvent(t EventType, req *models.ClaimRequest, at time.Time) Event {
	return Event{
		Type:        t,
		RequestID:   req.ID,
		ItemID:      req.ItemID,
		ItemTitle:   req.ItemTitle,
		OwnerID:     req.OwnerID,
		RequesterID: req.RequesterID,
		Status:      req.Status,
		At:          at,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to a structured logger. It is used when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger uses slog.Default().
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "claim event",
		"type", e.Type,
		"request", e.RequestID,
		"item", e.ItemID,
		"owner", e.OwnerID,
		"requester", e.RequesterID,
		"status", e.Status,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
