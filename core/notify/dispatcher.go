// Package notify fans incident events out to the configured channels.
// Delivery is best-effort: failures are logged, never surfaced to the caller
// who changed the incident.
package notify

import (
	"context"

	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionResolved  = "resolved"
	ActionEscalated = "escalated"
)

// Event describes one incident change worth telling someone about.
type Event struct {
	Org        *store.Organization
	Incident   *store.Incident
	Action     string
	Actor      *store.User
	Recipients []string
}

// Sender delivers an event over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

type Service struct {
	senders []Sender
	logger  *utils.Logger
}

func NewService(logger *utils.Logger, senders ...Sender) *Service {
	return &Service{senders: senders, logger: logger}
}

// Dispatch sends the event through every configured channel. Each channel
// failure is logged independently; Dispatch itself never fails.
func (s *Service) Dispatch(ctx context.Context, e Event) {
	if s == nil || e.Incident == nil {
		return
	}
	for _, sender := range s.senders {
		if err := sender.Send(ctx, e); err != nil && s.logger != nil {
			s.logger.Errorf("notify %s failed incident=%s action=%s: %v",
				sender.Name(), e.Incident.ID, e.Action, err)
		}
	}
}
