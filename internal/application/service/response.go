package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/consensus"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/internal/domain/event"
	"github.com/garyjia/approval-gateway/internal/domain/workflow"
	"github.com/garyjia/approval-gateway/internal/metrics"
	"github.com/garyjia/approval-gateway/internal/webhook"
)

// Text reply vocabulary. Multi-word phrases come first within each list.
var (
	rejectPhrases = []string{
		"не согласовано", "не согласен",
		"reject", "rejected", "no", "отклонено", "нет",
	}
	approvePhrases = []string{
		"approve", "approved", "yes", "ok",
		"согласовано", "согласен", "одобрено", "да",
	}

	rejectPattern  = phrasePattern(rejectPhrases)
	approvePattern = phrasePattern(approvePhrases)
)

// phrasePattern matches any phrase as a whole word. \b is ASCII-only in RE2,
// so boundaries are spelled out as non-letter runs.
func phrasePattern(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

// MatchReplyAction maps a free-text reply onto a button action. Reject
// phrases are checked first so "не согласовано" is not read as approval.
func MatchReplyAction(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if rejectPattern.MatchString(text) {
		return webhook.ActionReject, true
	}
	if approvePattern.MatchString(text) {
		return webhook.ActionApprove, true
	}
	return "", false
}

// RecordResponse applies one approver decision. Repeated and late responses
// are reported through the outcome, never as errors.
func (o *Orchestrator) RecordResponse(ctx context.Context, input ResponseInput) (*ResponseOutcome, error) {
	resultCode, err := resultForAction(input.Action)
	if err != nil {
		return nil, err
	}

	approval, approvers, err := o.store.Get(ctx, input.ApprovalID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			metrics.RecordApproverResponse(port.ResponseNotFound.String())
			return &ResponseOutcome{ApprovalID: input.ApprovalID, Result: port.ResponseNotFound}, nil
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}

	approver := findByRecipient(approvers, input.Recipient)
	if approver == nil {
		o.logger.Warn("Response from a recipient not assigned to the approval",
			"approval_id", input.ApprovalID,
			"recipient", input.Recipient,
		)
		metrics.RecordApproverResponse(port.ResponseNotFound.String())
		return &ResponseOutcome{ApprovalID: approval.ApprovalID, Result: port.ResponseNotFound, Status: approval.Status}, nil
	}

	at := o.now()
	result, err := o.store.RecordApproverResponse(ctx, approval.ApprovalID, approver.ApproverRef, port.ApproverOutcome{
		Status:        entity.ApproverStatusForResult(resultCode),
		ResponseCode:  resultCode,
		ResponseLabel: approval.LabelFor(resultCode),
		Comment:       strings.TrimSpace(input.Comment),
		RespondedAt:   at,
	})
	if err != nil {
		return nil, fmt.Errorf("record approver response: %w", err)
	}
	metrics.RecordApproverResponse(result.String())

	outcome := &ResponseOutcome{ApprovalID: approval.ApprovalID, Result: result, Status: approval.Status}
	if result != port.ResponseApplied {
		o.logger.Info("Response ignored",
			"approval_id", approval.ApprovalID,
			"approver_ref", approver.ApproverRef,
			"result", result.String(),
		)
		return outcome, nil
	}

	o.logger.Info("approver_responded",
		"approval_id", approval.ApprovalID,
		"approver_ref", approver.ApproverRef,
		"result_code", resultCode,
	)
	o.emit(ctx, event.NewEvent(event.TypeApproverResponded, approval.ApprovalID, map[string]interface{}{
		"approver_ref": approver.ApproverRef,
		"result_code":  resultCode,
		"comment":      strings.TrimSpace(input.Comment),
	}).WithActor(approver.ApproverRef))

	// Re-read so the verdict sees every response committed so far
	approval, approvers, err = o.store.Get(ctx, approval.ApprovalID)
	if err != nil {
		return nil, fmt.Errorf("reload approval: %w", err)
	}
	outcome.Status = approval.Status

	verdict := consensus.Evaluate(approval.Mode, approvers)
	if !verdict.Resolved {
		o.finalizeOne(ctx, approval, findByRef(approvers, approver.ApproverRef), port.FinalNotice{
			ApprovalID:    approval.ApprovalID,
			DocumentTitle: approval.DocumentTitle,
			Outcome:       entity.ApproverStatusForResult(resultCode),
			ResultLabel:   approval.LabelFor(resultCode),
			Responder:     approver.Name(),
			At:            at,
			Waiting:       true,
		})
		return outcome, nil
	}

	resolved, status, err := o.resolve(ctx, approval, approvers, verdict)
	if err != nil {
		return nil, err
	}
	outcome.Resolved = resolved
	if status != "" {
		outcome.Status = status
	}
	return outcome, nil
}

// resolve moves a pending approval to the verdict's status and runs the
// resolution side effects. Losing the race is not an error.
func (o *Orchestrator) resolve(ctx context.Context, approval *entity.Approval, approvers []*entity.Approver, verdict consensus.Verdict) (bool, string, error) {
	target, err := workflow.Resolve(approval.Status, verdict.ResultCode)
	if err != nil {
		o.logger.Info("Approval already resolved", "approval_id", approval.ApprovalID, "status", approval.Status)
		return false, approval.Status, nil
	}

	fields := port.ResolutionFields{
		ResultCode:  verdict.ResultCode,
		ResultLabel: firstNonEmpty(verdict.ResultLabel, approval.LabelFor(verdict.ResultCode)),
		RespondedBy: entity.SystemResponder,
		RespondedAt: o.now(),
	}
	responderName := entity.SystemResponder
	if c := verdict.Contributor; c != nil {
		fields.RespondedBy = c.ApproverRef
		fields.Comment = c.Comment
		if c.RespondedAt != nil {
			fields.RespondedAt = c.RespondedAt.UTC()
		}
		responderName = c.Name()
	}

	result, err := o.store.TransitionRequest(ctx, approval.ApprovalID, entity.StatusPending, target, fields)
	if err != nil {
		return false, "", fmt.Errorf("transition approval: %w", err)
	}
	if result != port.TransitionApplied {
		o.logger.Info("Resolution lost the race",
			"approval_id", approval.ApprovalID,
			"result", result.String(),
		)
		return false, "", nil
	}

	metrics.RecordApprovalResolved(target, fields.RespondedAt.Sub(approval.CreatedAt))
	o.logger.Info("approval_resolved",
		"approval_id", approval.ApprovalID,
		"status", target,
		"result_code", fields.ResultCode,
		"responded_by", fields.RespondedBy,
	)

	o.finalizeAll(ctx, approval, approvers, port.FinalNotice{
		ApprovalID:    approval.ApprovalID,
		DocumentTitle: approval.DocumentTitle,
		Outcome:       target,
		ResultLabel:   fields.ResultLabel,
		Responder:     responderName,
		At:            fields.RespondedAt,
	}, false)

	o.report(ctx, approval, fields)
	o.emit(ctx, event.NewEvent(event.TypeApprovalResolved, approval.ApprovalID, map[string]interface{}{
		"status":       target,
		"result_code":  fields.ResultCode,
		"result_label": fields.ResultLabel,
		"responded_by": fields.RespondedBy,
	}).WithActor(fields.RespondedBy))

	return true, target, nil
}

// HandleChannelUpdate applies a decoded channel update
func (o *Orchestrator) HandleChannelUpdate(ctx context.Context, update webhook.ChannelUpdate) error {
	switch u := update.(type) {
	case webhook.ButtonPress:
		return o.handleButtonPress(ctx, u)
	case webhook.TextReply:
		return o.handleTextReply(ctx, u)
	case webhook.Unrecognized:
		if u.CallbackID != "" {
			o.answer(ctx, u.CallbackID, "This button is no longer valid")
		}
		return nil
	}
	return nil
}

func (o *Orchestrator) handleButtonPress(ctx context.Context, u webhook.ButtonPress) error {
	outcome, err := o.RecordResponse(ctx, ResponseInput{
		ApprovalID: u.ApprovalID,
		Recipient:  u.Responder.Recipient,
		Action:     u.Action,
	})
	if err != nil {
		o.answer(ctx, u.CallbackID, "Something went wrong, please try again")
		return err
	}
	o.answer(ctx, u.CallbackID, callbackText(outcome, u.Action))
	return nil
}

func (o *Orchestrator) handleTextReply(ctx context.Context, u webhook.TextReply) error {
	pending, err := o.store.FindPendingByRecipient(ctx, u.Responder.Recipient)
	if err != nil {
		return fmt.Errorf("find pending assignments: %w", err)
	}
	if len(pending) == 0 {
		o.say(ctx, u.Responder.Recipient, "You have no active approvals.")
		return nil
	}

	action, ok := MatchReplyAction(u.Text)
	if !ok {
		o.say(ctx, u.Responder.Recipient, "Reply \"approve\" or \"reject\", or use the buttons on the approval message.")
		return nil
	}

	// Newest assignment first
	target := pending[0]
	outcome, err := o.RecordResponse(ctx, ResponseInput{
		ApprovalID: target.ApprovalID,
		Recipient:  u.Responder.Recipient,
		Action:     action,
		Comment:    u.Text,
	})
	if err != nil {
		return err
	}
	if outcome.Result == port.ResponseApplied {
		o.say(ctx, u.Responder.Recipient, callbackText(outcome, action))
	}
	return nil
}

func (o *Orchestrator) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	err := o.notifier.AnswerCallback(ctx, callbackID, text)
	metrics.RecordNotification(o.notifier.Channel(), "answer", err)
	if err != nil {
		o.logger.Warn("Failed to answer callback", "callback_id", callbackID, "error", err)
	}
}

func (o *Orchestrator) say(ctx context.Context, recipient, text string) {
	err := o.notifier.SendText(ctx, recipient, text)
	metrics.RecordNotification(o.notifier.Channel(), "text", err)
	if err != nil {
		o.logger.Warn("Failed to send text", "recipient", recipient, "error", err)
	}
}

func callbackText(outcome *ResponseOutcome, action string) string {
	switch outcome.Result {
	case port.ResponseApplied:
		if action == webhook.ActionReject {
			return "Rejected"
		}
		return "Approved"
	case port.ResponseAlreadyResponded:
		return "You have already responded"
	case port.ResponseRequestClosed:
		return "This approval is already closed"
	}
	return "Approval not found"
}

func resultForAction(action string) (string, error) {
	switch action {
	case webhook.ActionApprove:
		return entity.ResultApprove, nil
	case webhook.ActionReject:
		return entity.ResultReject, nil
	}
	verr := newValidationError()
	verr.add("action", "must be approve or reject")
	return "", verr
}

func findByRecipient(approvers []*entity.Approver, recipient string) *entity.Approver {
	for _, a := range approvers {
		if a.ChannelRecipient == recipient {
			return a
		}
	}
	return nil
}

func findByRef(approvers []*entity.Approver, ref string) *entity.Approver {
	for _, a := range approvers {
		if a.ApproverRef == ref {
			return a
		}
	}
	return nil
}
