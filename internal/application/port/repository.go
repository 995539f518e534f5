package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

var (
	// ErrConflict is returned when a record with the same key already exists
	ErrConflict = errors.New("record already exists")

	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
)

// ResponseResult is the outcome of a compare-and-set on an approver row
type ResponseResult int

const (
	// ResponseApplied means the approver moved out of pending
	ResponseApplied ResponseResult = iota
	// ResponseAlreadyResponded means the approver was no longer pending
	ResponseAlreadyResponded
	// ResponseNotFound means no such approver exists on the approval
	ResponseNotFound
	// ResponseRequestClosed means the approval itself is already terminal
	ResponseRequestClosed
)

func (r ResponseResult) String() string {
	switch r {
	case ResponseApplied:
		return "applied"
	case ResponseAlreadyResponded:
		return "already_responded"
	case ResponseNotFound:
		return "not_found"
	case ResponseRequestClosed:
		return "request_closed"
	}
	return "unknown"
}

// TransitionResult is the outcome of a compare-and-set on an approval row
type TransitionResult int

const (
	// TransitionApplied means this caller moved the approval
	TransitionApplied TransitionResult = iota
	// TransitionAlreadyTerminal means another actor resolved it first
	TransitionAlreadyTerminal
	// TransitionNotFound means no such approval exists
	TransitionNotFound
)

func (r TransitionResult) String() string {
	switch r {
	case TransitionApplied:
		return "applied"
	case TransitionAlreadyTerminal:
		return "already_terminal"
	case TransitionNotFound:
		return "not_found"
	}
	return "unknown"
}

// ApproverOutcome is the response recorded for one approver
type ApproverOutcome struct {
	Status        string
	ResponseCode  string
	ResponseLabel string
	Comment       string
	RespondedAt   time.Time
}

// ResolutionFields are written onto an approval when it leaves pending
type ResolutionFields struct {
	ResultCode  string
	ResultLabel string
	Comment     string
	RespondedBy string
	RespondedAt time.Time
}

// ApprovalFilter narrows List queries. Zero values mean no constraint.
type ApprovalFilter struct {
	Status          string
	OriginSystemRef string
	CreatedAfter    time.Time
	CreatedBefore   time.Time
	Limit           int
	Offset          int
}

// ApprovalStore is the durable record of approvals and their approver
// assignments. RecordApproverResponse and TransitionRequest are atomic
// compare-and-set operations; concurrent callers see exactly one winner.
type ApprovalStore interface {
	// Create inserts the approval and its approvers atomically. Returns ErrConflict on a duplicate id.
	Create(ctx context.Context, approval *entity.Approval, approvers []*entity.Approver) error

	// Get loads an approval with its approvers. Returns ErrNotFound when missing.
	Get(ctx context.Context, approvalID string) (*entity.Approval, []*entity.Approver, error)

	RecordApproverResponse(ctx context.Context, approvalID, approverRef string, outcome ApproverOutcome) (ResponseResult, error)

	TransitionRequest(ctx context.Context, approvalID, fromStatus, toStatus string, fields ResolutionFields) (TransitionResult, error)

	// FindTimedOutPending returns pending approvals whose deadline is before now, oldest first.
	FindTimedOutPending(ctx context.Context, now time.Time, limit int) ([]*entity.Approval, error)

	SetMessageRef(ctx context.Context, approvalID, approverRef, chatID, messageID string) error

	// ExpirePendingApprovers moves every still-pending approver of the approval to timeout.
	ExpirePendingApprovers(ctx context.Context, approvalID string, at time.Time) (int, error)

	// FindPendingByRecipient returns pending assignments of pending approvals for a channel recipient, newest first.
	FindPendingByRecipient(ctx context.Context, recipient string) ([]*entity.Approver, error)

	List(ctx context.Context, filter ApprovalFilter) ([]*entity.Approval, error)

	Stats(ctx context.Context) (*entity.ApprovalStats, error)
}

// IdentityMappingRepository manages origin user to channel recipient mappings
type IdentityMappingRepository interface {
	// FindActive returns nil, nil when no active mapping exists
	FindActive(ctx context.Context, originSystemRef, originUserRef string) (*entity.IdentityMapping, error)
	FindActiveByRecipient(ctx context.Context, recipient string) (*entity.IdentityMapping, error)
	FindActiveByUsername(ctx context.Context, originSystemRef, username string) (*entity.IdentityMapping, error)
	Upsert(ctx context.Context, mapping *entity.IdentityMapping) error
	Deactivate(ctx context.Context, originSystemRef, originUserRef string) error
	DeactivateByOrigin(ctx context.Context, originSystemRef string) (int, error)
	ListActive(ctx context.Context, originSystemRef string) ([]*entity.IdentityMapping, error)
}

// EventRepository persists the approval audit trail
type EventRepository interface {
	Append(ctx context.Context, evt *entity.ApprovalEvent) error
	ListByApproval(ctx context.Context, approvalID string) ([]*entity.ApprovalEvent, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
