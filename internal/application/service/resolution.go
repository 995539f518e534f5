package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/internal/domain/event"
	"github.com/garyjia/approval-gateway/internal/domain/workflow"
	"github.com/garyjia/approval-gateway/internal/metrics"
)

// Cancel withdraws a pending approval at the origin's request
func (o *Orchestrator) Cancel(ctx context.Context, approvalID, reason string) (*entity.Approval, error) {
	approval, approvers, err := o.store.Get(ctx, approvalID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, approvalID)
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}

	target, err := workflow.Resolve(approval.Status, entity.ResultCancelled)
	if err != nil {
		return nil, fmt.Errorf("%w: status is %s", ErrNotPending, approval.Status)
	}

	fields := port.ResolutionFields{
		ResultCode:  entity.ResultCancelled,
		ResultLabel: "Cancelled",
		Comment:     strings.TrimSpace(reason),
		RespondedBy: entity.SystemResponder,
		RespondedAt: o.now(),
	}
	result, err := o.store.TransitionRequest(ctx, approvalID, entity.StatusPending, target, fields)
	if err != nil {
		return nil, fmt.Errorf("transition approval: %w", err)
	}
	switch result {
	case port.TransitionNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, approvalID)
	case port.TransitionAlreadyTerminal:
		return nil, fmt.Errorf("%w: resolved concurrently", ErrNotPending)
	}

	metrics.RecordApprovalResolved(target, fields.RespondedAt.Sub(approval.CreatedAt))
	o.logger.Info("approval_cancelled", "approval_id", approvalID, "reason", fields.Comment)

	o.finalizeAll(ctx, approval, approvers, port.FinalNotice{
		ApprovalID:    approvalID,
		DocumentTitle: approval.DocumentTitle,
		Outcome:       entity.StatusCancelled,
		ResultLabel:   fields.ResultLabel,
		Responder:     entity.SystemResponder,
		At:            fields.RespondedAt,
	}, true)

	if o.cfg.ReportCancellations {
		o.reportAsync(ctx, approval, fields)
	}
	o.emit(ctx, event.NewEvent(event.TypeApprovalCancelled, approvalID, map[string]interface{}{
		"reason":   fields.Comment,
		"reported": o.cfg.ReportCancellations,
	}).WithActor(entity.SystemResponder))

	approval.Status = target
	approval.ResultCode = fields.ResultCode
	approval.ResultLabel = fields.ResultLabel
	approval.Comment = fields.Comment
	approval.RespondedBy = fields.RespondedBy
	at := fields.RespondedAt
	approval.RespondedAt = &at
	return approval, nil
}

// ExpireApproval resolves an overdue approval as timed out. Losing the race
// to a responder returns nil.
func (o *Orchestrator) ExpireApproval(ctx context.Context, approval *entity.Approval) error {
	target, err := workflow.Resolve(approval.Status, entity.ResultTimeout)
	if err != nil {
		return nil
	}

	fields := port.ResolutionFields{
		ResultCode:  entity.ResultTimeout,
		ResultLabel: "Timed out",
		RespondedBy: entity.SystemResponder,
		RespondedAt: o.now(),
	}
	result, err := o.store.TransitionRequest(ctx, approval.ApprovalID, entity.StatusPending, target, fields)
	if err != nil {
		return fmt.Errorf("transition approval %s: %w", approval.ApprovalID, err)
	}
	if result != port.TransitionApplied {
		o.logger.Info("Expiry lost the race", "approval_id", approval.ApprovalID, "result", result.String())
		return nil
	}

	expired, err := o.store.ExpirePendingApprovers(ctx, approval.ApprovalID, fields.RespondedAt)
	if err != nil {
		o.logger.Warn("Failed to expire pending approvers", "approval_id", approval.ApprovalID, "error", err)
	}

	metrics.RecordApprovalResolved(target, fields.RespondedAt.Sub(approval.CreatedAt))
	o.logger.Info("approval_timed_out",
		"approval_id", approval.ApprovalID,
		"expired_approvers", expired,
		"timeout_hours", approval.TimeoutHours,
	)

	_, approvers, err := o.store.Get(ctx, approval.ApprovalID)
	if err != nil {
		o.logger.Warn("Failed to reload approvers", "approval_id", approval.ApprovalID, "error", err)
	} else {
		notice := port.FinalNotice{
			ApprovalID:    approval.ApprovalID,
			DocumentTitle: approval.DocumentTitle,
			Outcome:       entity.StatusTimeout,
			ResultLabel:   fields.ResultLabel,
			Responder:     entity.SystemResponder,
			At:            fields.RespondedAt,
		}
		o.finalizeAll(ctx, approval, timedOut(approvers), notice, false)
	}

	o.report(ctx, approval, fields)
	o.emit(ctx, event.NewEvent(event.TypeApprovalTimedOut, approval.ApprovalID, map[string]interface{}{
		"expired_approvers": expired,
		"timeout_hours":     approval.TimeoutHours,
	}).WithActor(entity.SystemResponder))
	return nil
}

func timedOut(approvers []*entity.Approver) []*entity.Approver {
	out := make([]*entity.Approver, 0, len(approvers))
	for _, a := range approvers {
		if a.Status == entity.ApproverStatusTimeout {
			out = append(out, a)
		}
	}
	return out
}

// reportAsync delivers the resolution after the caller has returned
func (o *Orchestrator) reportAsync(ctx context.Context, approval *entity.Approval, fields port.ResolutionFields) {
	if o.reporter == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	snapshot := *approval
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		o.report(ctx, &snapshot, fields)
	}()
}

// report delivers the resolution to the origin. Failures never roll back state.
// Delivery gets its own ReportTimeout budget so retries survive the end of
// the request or update that resolved the approval.
func (o *Orchestrator) report(ctx context.Context, approval *entity.Approval, fields port.ResolutionFields) {
	if o.reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ReportTimeout)
	defer cancel()

	err := o.reporter.Report(ctx, port.ResultReport{
		ApprovalID:      approval.ApprovalID,
		OriginSystemRef: approval.OriginSystemRef,
		ResultCode:      fields.ResultCode,
		ResultLabel:     fields.ResultLabel,
		Comment:         fields.Comment,
		RespondedBy:     fields.RespondedBy,
		RespondedAt:     fields.RespondedAt,
	})
	if err == nil {
		return
	}

	o.logger.Error("Failed to deliver result to origin",
		"approval_id", approval.ApprovalID,
		"origin_system_ref", approval.OriginSystemRef,
		"result_code", fields.ResultCode,
		"error", err,
	)
	o.emit(ctx, event.NewEvent(event.TypeDeliveryFailed, approval.ApprovalID, map[string]interface{}{
		"result_code": fields.ResultCode,
		"error":       err.Error(),
	}))
}

// finalizeAll replaces the buttons on every delivered message. With
// pendingOnly set, approvers who already responded keep their notice.
func (o *Orchestrator) finalizeAll(ctx context.Context, approval *entity.Approval, approvers []*entity.Approver, notice port.FinalNotice, pendingOnly bool) {
	var wg sync.WaitGroup
	for _, a := range approvers {
		if pendingOnly && !a.IsPending() {
			continue
		}
		wg.Add(1)
		go func(a *entity.Approver) {
			defer wg.Done()
			o.finalizeOne(ctx, approval, a, notice)
		}(a)
	}
	wg.Wait()
}

func (o *Orchestrator) finalizeOne(ctx context.Context, approval *entity.Approval, a *entity.Approver, notice port.FinalNotice) {
	if a == nil || !a.HasMessage() {
		return
	}
	ref := port.MessageRef{ChatID: a.ChannelChatID, MessageID: a.ChannelMessageID}
	err := o.notifier.Finalize(ctx, ref, notice)
	metrics.RecordNotification(o.notifier.Channel(), "finalize", err)
	if err != nil {
		o.logger.Warn("Failed to finalize approval message",
			"approval_id", approval.ApprovalID,
			"approver_ref", a.ApproverRef,
			"error", err,
		)
	}
}
