package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

const approvalColumns = `
	approval_id, origin_system_ref, requesting_user_ref, document_type, document_id,
	document_title, document_url, message_text, approve_label, reject_label,
	mode, timeout_hours, status, result_code, result_label, comment,
	responded_by, responded_at, created_at, updated_at`

const approverColumns = `
	id, approval_id, approver_ref, channel_recipient, channel_username, display_name,
	status, response_code, response_label, comment, responded_at,
	channel_chat_id, channel_message_id, created_at`

// ApprovalStore implements port.ApprovalStore on SQLite
type ApprovalStore struct {
	db     *DB
	logger *zap.Logger
}

// NewApprovalStore creates a new approval store
func NewApprovalStore(db *DB, logger *zap.Logger) *ApprovalStore {
	return &ApprovalStore{
		db:     db,
		logger: logger,
	}
}

// Create inserts the approval and its approvers in one transaction
func (s *ApprovalStore) Create(ctx context.Context, approval *entity.Approval, approvers []*entity.Approver) error {
	now := time.Now().UTC()
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = now
	}
	approval.CreatedAt = approval.CreatedAt.UTC()
	approval.UpdatedAt = approval.CreatedAt
	if approval.Status == "" {
		approval.Status = entity.StatusPending
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := s.db.getExecutor(ctx)

		_, err := exec.ExecContext(ctx, `
			INSERT INTO approvals (
				approval_id, origin_system_ref, requesting_user_ref, document_type, document_id,
				document_title, document_url, message_text, approve_label, reject_label,
				mode, timeout_hours, status, expires_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			approval.ApprovalID,
			approval.OriginSystemRef,
			approval.RequestingUserRef,
			approval.DocumentType,
			approval.DocumentID,
			approval.DocumentTitle,
			approval.DocumentURL,
			approval.MessageText,
			approval.ApproveLabel,
			approval.RejectLabel,
			approval.Mode,
			approval.TimeoutHours,
			approval.Status,
			approval.ExpiresAt().Unix(),
			approval.CreatedAt,
			approval.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("approval %s: %w", approval.ApprovalID, port.ErrConflict)
			}
			s.logger.Error("Failed to create approval", zap.String("approval_id", approval.ApprovalID), zap.Error(err))
			return fmt.Errorf("failed to create approval: %w", err)
		}

		for _, a := range approvers {
			a.ApprovalID = approval.ApprovalID
			if a.Status == "" {
				a.Status = entity.ApproverStatusPending
			}
			a.CreatedAt = approval.CreatedAt

			result, err := exec.ExecContext(ctx, `
				INSERT INTO approvers (
					approval_id, approver_ref, channel_recipient, channel_username,
					display_name, status, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ApprovalID,
				a.ApproverRef,
				a.ChannelRecipient,
				a.ChannelUsername,
				a.DisplayName,
				a.Status,
				a.CreatedAt,
			)
			if err != nil {
				s.logger.Error("Failed to create approver",
					zap.String("approval_id", approval.ApprovalID),
					zap.String("approver_ref", a.ApproverRef),
					zap.Error(err))
				return fmt.Errorf("failed to create approver %s: %w", a.ApproverRef, err)
			}

			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			a.ID = id
		}

		return nil
	})
}

// Get loads an approval with its approvers
func (s *ApprovalStore) Get(ctx context.Context, approvalID string) (*entity.Approval, []*entity.Approver, error) {
	exec := s.db.getExecutor(ctx)

	row := exec.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE approval_id = ?`, approvalID)
	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("approval %s: %w", approvalID, port.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to get approval", zap.String("approval_id", approvalID), zap.Error(err))
		return nil, nil, fmt.Errorf("failed to get approval: %w", err)
	}

	rows, err := exec.QueryContext(ctx, `SELECT `+approverColumns+` FROM approvers WHERE approval_id = ? ORDER BY id`, approvalID)
	if err != nil {
		s.logger.Error("Failed to get approvers", zap.String("approval_id", approvalID), zap.Error(err))
		return nil, nil, fmt.Errorf("failed to get approvers: %w", err)
	}
	approvers, err := collectApprovers(rows)
	if err != nil {
		return nil, nil, err
	}

	return approval, approvers, nil
}

// RecordApproverResponse moves one approver out of pending. The update only
// matches while both the approver and its approval are pending.
func (s *ApprovalStore) RecordApproverResponse(ctx context.Context, approvalID, approverRef string, outcome port.ApproverOutcome) (port.ResponseResult, error) {
	if outcome.Status == "" || outcome.Status == entity.ApproverStatusPending {
		return port.ResponseNotFound, fmt.Errorf("invalid approver outcome status %q", outcome.Status)
	}
	respondedAt := outcome.RespondedAt.UTC()

	result, err := s.db.getExecutor(ctx).ExecContext(ctx, `
		UPDATE approvers
		SET status = ?, response_code = ?, response_label = ?, comment = ?, responded_at = ?
		WHERE approval_id = ? AND approver_ref = ? AND status = 'pending'
			AND EXISTS (SELECT 1 FROM approvals WHERE approval_id = ? AND status = 'pending')`,
		outcome.Status,
		nullString(outcome.ResponseCode),
		nullString(outcome.ResponseLabel),
		nullString(outcome.Comment),
		respondedAt,
		approvalID,
		approverRef,
		approvalID,
	)
	if err != nil {
		s.logger.Error("Failed to record approver response",
			zap.String("approval_id", approvalID),
			zap.String("approver_ref", approverRef),
			zap.Error(err))
		return port.ResponseNotFound, fmt.Errorf("failed to record approver response: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return port.ResponseNotFound, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return port.ResponseApplied, nil
	}

	var approverStatus, approvalStatus string
	err = s.db.getExecutor(ctx).QueryRowContext(ctx, `
		SELECT ap.status, a.status
		FROM approvers ap JOIN approvals a ON a.approval_id = ap.approval_id
		WHERE ap.approval_id = ? AND ap.approver_ref = ?`,
		approvalID, approverRef,
	).Scan(&approverStatus, &approvalStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return port.ResponseNotFound, nil
	}
	if err != nil {
		return port.ResponseNotFound, fmt.Errorf("failed to inspect approver: %w", err)
	}

	if approverStatus != entity.ApproverStatusPending {
		return port.ResponseAlreadyResponded, nil
	}
	return port.ResponseRequestClosed, nil
}

// TransitionRequest moves an approval from fromStatus to a terminal status
// and writes the result fields, only if it is still in fromStatus.
func (s *ApprovalStore) TransitionRequest(ctx context.Context, approvalID, fromStatus, toStatus string, fields port.ResolutionFields) (port.TransitionResult, error) {
	if !entity.IsTerminalStatus(toStatus) {
		return port.TransitionNotFound, fmt.Errorf("invalid target status %q", toStatus)
	}
	now := time.Now().UTC()
	respondedAt := fields.RespondedAt
	if respondedAt.IsZero() {
		respondedAt = now
	}

	result, err := s.db.getExecutor(ctx).ExecContext(ctx, `
		UPDATE approvals
		SET status = ?, result_code = ?, result_label = ?, comment = ?,
			responded_by = ?, responded_at = ?, updated_at = ?
		WHERE approval_id = ? AND status = ?`,
		toStatus,
		nullString(fields.ResultCode),
		nullString(fields.ResultLabel),
		nullString(fields.Comment),
		nullString(fields.RespondedBy),
		respondedAt.UTC(),
		now,
		approvalID,
		fromStatus,
	)
	if err != nil {
		s.logger.Error("Failed to transition approval",
			zap.String("approval_id", approvalID),
			zap.String("from", fromStatus),
			zap.String("to", toStatus),
			zap.Error(err))
		return port.TransitionNotFound, fmt.Errorf("failed to transition approval: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return port.TransitionNotFound, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return port.TransitionApplied, nil
	}

	var exists int
	err = s.db.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT 1 FROM approvals WHERE approval_id = ?`, approvalID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return port.TransitionNotFound, nil
	}
	if err != nil {
		return port.TransitionNotFound, fmt.Errorf("failed to inspect approval: %w", err)
	}
	return port.TransitionAlreadyTerminal, nil
}

// FindTimedOutPending returns pending approvals whose deadline passed before now
func (s *ApprovalStore) FindTimedOutPending(ctx context.Context, now time.Time, limit int) ([]*entity.Approval, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.getExecutor(ctx).QueryContext(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE status = 'pending' AND expires_at < ?
		ORDER BY expires_at
		LIMIT ?`,
		now.Unix(), limit,
	)
	if err != nil {
		s.logger.Error("Failed to find timed out approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to find timed out approvals: %w", err)
	}
	return collectApprovals(rows)
}

// SetMessageRef stores where the approver's message was delivered
func (s *ApprovalStore) SetMessageRef(ctx context.Context, approvalID, approverRef, chatID, messageID string) error {
	result, err := s.db.getExecutor(ctx).ExecContext(ctx, `
		UPDATE approvers SET channel_chat_id = ?, channel_message_id = ?
		WHERE approval_id = ? AND approver_ref = ?`,
		nullString(chatID), nullString(messageID), approvalID, approverRef,
	)
	if err != nil {
		s.logger.Error("Failed to set message reference",
			zap.String("approval_id", approvalID),
			zap.String("approver_ref", approverRef),
			zap.Error(err))
		return fmt.Errorf("failed to set message reference: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("approver %s/%s: %w", approvalID, approverRef, port.ErrNotFound)
	}
	return nil
}

// ExpirePendingApprovers moves every still-pending approver of the approval to timeout
func (s *ApprovalStore) ExpirePendingApprovers(ctx context.Context, approvalID string, at time.Time) (int, error) {
	result, err := s.db.getExecutor(ctx).ExecContext(ctx, `
		UPDATE approvers SET status = 'timeout', response_code = 'timeout', responded_at = ?
		WHERE approval_id = ? AND status = 'pending'`,
		at.UTC(), approvalID,
	)
	if err != nil {
		s.logger.Error("Failed to expire approvers", zap.String("approval_id", approvalID), zap.Error(err))
		return 0, fmt.Errorf("failed to expire approvers: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// FindPendingByRecipient returns the recipient's open assignments, newest approval first
func (s *ApprovalStore) FindPendingByRecipient(ctx context.Context, recipient string) ([]*entity.Approver, error) {
	rows, err := s.db.getExecutor(ctx).QueryContext(ctx, `
		SELECT `+prefixColumns("ap", approverColumns)+`
		FROM approvers ap JOIN approvals a ON a.approval_id = ap.approval_id
		WHERE ap.channel_recipient = ? AND ap.status = 'pending' AND a.status = 'pending'
		ORDER BY a.created_at DESC, ap.id DESC`,
		recipient,
	)
	if err != nil {
		s.logger.Error("Failed to find pending assignments", zap.String("recipient", recipient), zap.Error(err))
		return nil, fmt.Errorf("failed to find pending assignments: %w", err)
	}
	return collectApprovers(rows)
}

// List returns approvals matching filter, newest first
func (s *ApprovalStore) List(ctx context.Context, filter port.ApprovalFilter) ([]*entity.Approval, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.OriginSystemRef != "" {
		where = append(where, "origin_system_ref = ?")
		args = append(args, filter.OriginSystemRef)
	}
	if !filter.CreatedAfter.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UTC())
	}
	if !filter.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, filter.CreatedBefore.UTC())
	}

	query := `SELECT ` + approvalColumns + ` FROM approvals`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, approval_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to list approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return collectApprovals(rows)
}

// Stats counts approvals by status
func (s *ApprovalStore) Stats(ctx context.Context) (*entity.ApprovalStats, error) {
	exec := s.db.getExecutor(ctx)

	rows, err := exec.QueryContext(ctx, `SELECT status, COUNT(*) FROM approvals GROUP BY status`)
	if err != nil {
		s.logger.Error("Failed to count approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to count approvals: %w", err)
	}
	defer rows.Close()

	stats := &entity.ApprovalStats{ByStatus: map[string]int{
		entity.StatusPending:   0,
		entity.StatusApproved:  0,
		entity.StatusRejected:  0,
		entity.StatusTimeout:   0,
		entity.StatusCancelled: 0,
	}}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM approvers`).Scan(&stats.Approvers); err != nil {
		return nil, fmt.Errorf("failed to count approvers: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApproval(row rowScanner) (*entity.Approval, error) {
	var a entity.Approval
	var resultCode, resultLabel, comment, respondedBy sql.NullString
	var respondedAt sql.NullTime

	err := row.Scan(
		&a.ApprovalID,
		&a.OriginSystemRef,
		&a.RequestingUserRef,
		&a.DocumentType,
		&a.DocumentID,
		&a.DocumentTitle,
		&a.DocumentURL,
		&a.MessageText,
		&a.ApproveLabel,
		&a.RejectLabel,
		&a.Mode,
		&a.TimeoutHours,
		&a.Status,
		&resultCode,
		&resultLabel,
		&comment,
		&respondedBy,
		&respondedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ResultCode = resultCode.String
	a.ResultLabel = resultLabel.String
	a.Comment = comment.String
	a.RespondedBy = respondedBy.String
	a.RespondedAt = timePtr(respondedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanApprover(row rowScanner) (*entity.Approver, error) {
	var a entity.Approver
	var responseCode, responseLabel, comment, chatID, messageID sql.NullString
	var respondedAt sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.ApprovalID,
		&a.ApproverRef,
		&a.ChannelRecipient,
		&a.ChannelUsername,
		&a.DisplayName,
		&a.Status,
		&responseCode,
		&responseLabel,
		&comment,
		&respondedAt,
		&chatID,
		&messageID,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ResponseCode = responseCode.String
	a.ResponseLabel = responseLabel.String
	a.Comment = comment.String
	a.RespondedAt = timePtr(respondedAt)
	a.ChannelChatID = chatID.String
	a.ChannelMessageID = messageID.String
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func collectApprovals(rows *sql.Rows) ([]*entity.Approval, error) {
	defer rows.Close()

	var approvals []*entity.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvals: %w", err)
	}
	return approvals, nil
}

func collectApprovers(rows *sql.Rows) ([]*entity.Approver, error) {
	defer rows.Close()

	var approvers []*entity.Approver
	for rows.Next() {
		a, err := scanApprover(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approver: %w", err)
		}
		approvers = append(approvers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvers: %w", err)
	}
	return approvers, nil
}

// prefixColumns qualifies a comma separated column list with a table alias
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

var _ port.ApprovalStore = (*ApprovalStore)(nil)
