package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/approval-gateway/internal/application/dispatcher"
	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/internal/domain/event"
	"github.com/garyjia/approval-gateway/internal/metrics"
)

const defaultReportTimeout = 2 * time.Minute

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// OrchestratorConfig tunes engine behavior
type OrchestratorConfig struct {
	// ReportCancellations sends result_code=cancelled to the origin on Cancel
	ReportCancellations bool
	DefaultApproveLabel string
	DefaultRejectLabel  string
	DefaultTimeoutHours int
	// ReportTimeout bounds one result delivery including its retries.
	// It runs detached from the caller's context.
	ReportTimeout time.Duration
	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

// OrchestratorDeps are the collaborators of the orchestrator
type OrchestratorDeps struct {
	Store      port.ApprovalStore
	Mappings   port.IdentityMappingRepository
	Events     port.EventRepository
	Notifier   port.Notifier
	Reporter   port.ResultReporter
	Dispatcher dispatcher.Dispatcher
	Config     OrchestratorConfig
	Logger     Logger
}

// Orchestrator drives approvals from creation to a reported resolution.
// The store's compare-and-set operations are the only serialization
// points; every side effect runs after the state change it follows.
type Orchestrator struct {
	store      port.ApprovalStore
	mappings   port.IdentityMappingRepository
	events     port.EventRepository
	notifier   port.Notifier
	reporter   port.ResultReporter
	dispatcher dispatcher.Dispatcher
	cfg        OrchestratorConfig
	logger     Logger
	validate   *validator.Validate

	// background tracks result deliveries that outlive their request
	background sync.WaitGroup
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	cfg := deps.Config
	if cfg.DefaultApproveLabel == "" {
		cfg.DefaultApproveLabel = entity.DefaultApproveLabel
	}
	if cfg.DefaultRejectLabel == "" {
		cfg.DefaultRejectLabel = entity.DefaultRejectLabel
	}
	if cfg.DefaultTimeoutHours == 0 {
		cfg.DefaultTimeoutHours = entity.DefaultTimeoutHours
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = defaultReportTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Orchestrator{
		store:      deps.Store,
		mappings:   deps.Mappings,
		events:     deps.Events,
		notifier:   deps.Notifier,
		reporter:   deps.Reporter,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     deps.Logger,
		validate:   newValidator(),
	}
}

// Wait blocks until background result deliveries have finished
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) now() time.Time {
	return o.cfg.Clock().UTC()
}

// Create validates the request, resolves approver identities, persists the
// approval and delivers one message per mapped approver.
func (o *Orchestrator) Create(ctx context.Context, input CreateApprovalInput) (*CreateResult, error) {
	in, err := o.normalizeCreate(input)
	if err != nil {
		return nil, err
	}
	if in.ApprovalID == "" {
		in.ApprovalID = uuid.NewString()
	}

	approvers, unmapped, err := o.resolveApprovers(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(approvers) == 0 {
		o.logger.Warn("No deliverable approvers",
			"approval_id", in.ApprovalID,
			"origin_system_ref", in.OriginSystemRef,
			"unmapped", unmapped,
		)
		return nil, ErrNoDeliverableApprovers
	}

	now := o.now()
	approval := &entity.Approval{
		ApprovalID:        in.ApprovalID,
		OriginSystemRef:   in.OriginSystemRef,
		RequestingUserRef: in.RequestingUserRef,
		DocumentType:      in.DocumentType,
		DocumentID:        in.DocumentID,
		DocumentTitle:     in.DocumentTitle,
		DocumentURL:       in.DocumentURL,
		MessageText:       in.MessageText,
		ApproveLabel:      in.ApproveLabel,
		RejectLabel:       in.RejectLabel,
		Mode:              in.Mode,
		TimeoutHours:      in.TimeoutHours,
		Status:            entity.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, a := range approvers {
		a.ApprovalID = approval.ApprovalID
		a.Status = entity.ApproverStatusPending
		a.CreatedAt = now
	}

	if err := o.store.Create(ctx, approval, approvers); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, approval.ApprovalID)
		}
		o.logger.Error("Failed to create approval", "approval_id", approval.ApprovalID, "error", err)
		return nil, fmt.Errorf("create approval: %w", err)
	}

	sent := o.deliver(ctx, approval, approvers)
	if sent == 0 {
		o.logger.Error("No approval message delivered",
			"approval_id", approval.ApprovalID,
			"approvers", len(approvers),
		)
	}

	metrics.RecordApprovalCreated(approval.Mode)
	o.logger.Info("approval_created",
		"approval_id", approval.ApprovalID,
		"origin_system_ref", approval.OriginSystemRef,
		"mode", approval.Mode,
		"approvers", len(approvers),
		"notifications_sent", sent,
	)
	o.emit(ctx, event.NewEvent(event.TypeApprovalCreated, approval.ApprovalID, map[string]interface{}{
		"mode":               approval.Mode,
		"approvers_created":  len(approvers),
		"notifications_sent": sent,
		"unmapped":           unmapped,
	}).WithActor(approval.RequestingUserRef))

	return &CreateResult{
		ApprovalID:        approval.ApprovalID,
		ApproversCreated:  len(approvers),
		NotificationsSent: sent,
		Unmapped:          unmapped,
	}, nil
}

// resolveApprovers maps origin users onto channel recipients. Unmapped users are skipped.
func (o *Orchestrator) resolveApprovers(ctx context.Context, in CreateApprovalInput) ([]*entity.Approver, []string, error) {
	var (
		approvers []*entity.Approver
		unmapped  []string
	)
	recipients := make(map[string]bool, len(in.Approvers))

	for _, ai := range in.Approvers {
		mapping, err := o.mappings.FindActive(ctx, in.OriginSystemRef, ai.OriginUserRef)
		if err != nil {
			return nil, nil, fmt.Errorf("find identity mapping for %s: %w", ai.OriginUserRef, err)
		}
		if mapping == nil && ai.ChannelHint != "" {
			mapping, err = o.mappings.FindActiveByUsername(ctx, in.OriginSystemRef, strings.TrimPrefix(ai.ChannelHint, "@"))
			if err != nil {
				return nil, nil, fmt.Errorf("find identity mapping by username %s: %w", ai.ChannelHint, err)
			}
		}
		if mapping == nil {
			o.logger.Warn("IdentityUnmapped",
				"origin_system_ref", in.OriginSystemRef,
				"origin_user_ref", ai.OriginUserRef,
			)
			unmapped = append(unmapped, ai.OriginUserRef)
			continue
		}
		// Two refs mapped to one recipient would make button presses ambiguous
		if recipients[mapping.ChannelRecipient] {
			o.logger.Warn("Approver shares a channel recipient, skipping",
				"origin_user_ref", ai.OriginUserRef,
				"recipient", mapping.ChannelRecipient,
			)
			continue
		}
		recipients[mapping.ChannelRecipient] = true

		approvers = append(approvers, &entity.Approver{
			ApproverRef:      ai.OriginUserRef,
			ChannelRecipient: mapping.ChannelRecipient,
			ChannelUsername:  mapping.ChannelUsername,
			DisplayName:      firstNonEmpty(mapping.DisplayName, mapping.OriginUserName),
		})
	}
	return approvers, unmapped, nil
}

// deliver sends the approval message to every approver concurrently and
// records where each message landed. It returns the number delivered.
func (o *Orchestrator) deliver(ctx context.Context, approval *entity.Approval, approvers []*entity.Approver) int {
	msg := port.ApprovalMessage{
		ApprovalID:    approval.ApprovalID,
		DocumentType:  approval.DocumentType,
		DocumentTitle: approval.DocumentTitle,
		DocumentURL:   approval.DocumentURL,
		MessageText:   approval.MessageText,
		ApproveLabel:  approval.ApproveLabel,
		RejectLabel:   approval.RejectLabel,
		TimeoutHours:  approval.TimeoutHours,
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for _, a := range approvers {
		wg.Add(1)
		go func(a *entity.Approver) {
			defer wg.Done()

			ref, err := o.notifier.SendApproval(ctx, a.ChannelRecipient, msg)
			metrics.RecordNotification(o.notifier.Channel(), "send", err)
			if err != nil {
				o.logger.Error("Failed to send approval message",
					"approval_id", approval.ApprovalID,
					"approver_ref", a.ApproverRef,
					"recipient", a.ChannelRecipient,
					"error", err,
				)
				return
			}

			if err := o.store.SetMessageRef(ctx, approval.ApprovalID, a.ApproverRef, ref.ChatID, ref.MessageID); err != nil {
				o.logger.Warn("Failed to record message reference",
					"approval_id", approval.ApprovalID,
					"approver_ref", a.ApproverRef,
					"error", err,
				)
			}
			a.ChannelChatID = ref.ChatID
			a.ChannelMessageID = ref.MessageID

			mu.Lock()
			sent++
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return sent
}

// Status returns an approval with its approvers and audit trail
func (o *Orchestrator) Status(ctx context.Context, approvalID string) (*StatusView, error) {
	approval, approvers, err := o.store.Get(ctx, approvalID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, approvalID)
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}

	view := &StatusView{Approval: approval, Approvers: approvers}
	if o.events != nil {
		events, err := o.events.ListByApproval(ctx, approvalID)
		if err != nil {
			o.logger.Warn("Failed to load approval events", "approval_id", approvalID, "error", err)
		} else {
			view.Events = events
		}
	}
	return view, nil
}

// Stats returns approval counts grouped by status
func (o *Orchestrator) Stats(ctx context.Context) (*entity.ApprovalStats, error) {
	stats, err := o.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("approval stats: %w", err)
	}
	return stats, nil
}

// emit dispatches a domain event. Subscriber failures are logged only.
func (o *Orchestrator) emit(ctx context.Context, evt *event.Event) {
	if o.dispatcher == nil {
		return
	}
	if err := o.dispatcher.Dispatch(ctx, evt); err != nil {
		o.logger.Warn("Event dispatch failed",
			"event_type", evt.Type,
			"approval_id", evt.ApprovalID,
			"error", err,
		)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
