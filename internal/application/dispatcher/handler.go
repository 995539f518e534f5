package dispatcher

import (
	"context"

	"github.com/garyjia/approval-gateway/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// AllTypes lists every event type the engine raises, for handlers that
// observe the whole stream.
var AllTypes = []event.Type{
	event.TypeApprovalCreated,
	event.TypeApproverResponded,
	event.TypeApprovalResolved,
	event.TypeApprovalCancelled,
	event.TypeApprovalTimedOut,
	event.TypeDeliveryFailed,
}
