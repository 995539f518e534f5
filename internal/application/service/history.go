package service

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-gateway/internal/application/dispatcher"
	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/internal/domain/event"
)

// HistoryRecorderName is the dispatcher subscription name of the recorder
const HistoryRecorderName = "history-recorder"

// HistoryRecorder writes every engine event to the approval audit trail
type HistoryRecorder struct {
	events port.EventRepository
}

// NewHistoryRecorder creates a new HistoryRecorder
func NewHistoryRecorder(events port.EventRepository) *HistoryRecorder {
	return &HistoryRecorder{events: events}
}

// Register subscribes the recorder to every event type
func (r *HistoryRecorder) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll(HistoryRecorderName, r.Handle)
}

// Handle implements dispatcher.Handler
func (r *HistoryRecorder) Handle(ctx context.Context, evt *event.Event) error {
	err := r.events.Append(ctx, &entity.ApprovalEvent{
		ID:         evt.ID,
		ApprovalID: evt.ApprovalID,
		EventType:  evt.Type.String(),
		Actor:      evt.Actor,
		Payload:    evt.PayloadJSON(),
		Timestamp:  evt.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("append %s event: %w", evt.Type, err)
	}
	return nil
}
