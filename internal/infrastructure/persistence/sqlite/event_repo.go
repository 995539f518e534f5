package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

// EventRepository implements port.EventRepository
type EventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB, logger *zap.Logger) *EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one audit record
func (r *EventRepository) Append(ctx context.Context, evt *entity.ApprovalEvent) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	evt.Timestamp = evt.Timestamp.UTC()
	if evt.Payload == "" {
		evt.Payload = "{}"
	}

	_, err := r.db.getExecutor(ctx).ExecContext(ctx, `
		INSERT INTO approval_events (id, approval_id, event_type, actor, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		evt.ID,
		evt.ApprovalID,
		evt.EventType,
		evt.Actor,
		evt.Payload,
		evt.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append approval event",
			zap.String("approval_id", evt.ApprovalID),
			zap.String("event_type", evt.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to append approval event: %w", err)
	}
	return nil
}

// ListByApproval returns the audit trail of an approval in time order
func (r *EventRepository) ListByApproval(ctx context.Context, approvalID string) ([]*entity.ApprovalEvent, error) {
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, `
		SELECT id, approval_id, event_type, actor, payload, timestamp
		FROM approval_events
		WHERE approval_id = ?
		ORDER BY timestamp ASC, rowid ASC`,
		approvalID,
	)
	if err != nil {
		r.logger.Error("Failed to list approval events", zap.String("approval_id", approvalID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval events: %w", err)
	}
	defer rows.Close()

	var events []*entity.ApprovalEvent
	for rows.Next() {
		var e entity.ApprovalEvent
		if err := rows.Scan(&e.ID, &e.ApprovalID, &e.EventType, &e.Actor, &e.Payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan approval event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approval events: %w", err)
	}
	return events, nil
}

var _ port.EventRepository = (*EventRepository)(nil)
