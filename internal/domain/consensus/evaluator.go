// Package consensus turns individual approver responses into one aggregate verdict.
package consensus

import (
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

// Verdict is the outcome of evaluating a set of approver assignments
type Verdict struct {
	Resolved    bool
	ResultCode  string
	ResultLabel string
	// Contributor is the approver whose response decided the outcome.
	// Nil when the verdict is unresolved or produced by timeouts only.
	Contributor *entity.Approver
}

// Unresolved is the verdict for a request that still needs responses.
var Unresolved = Verdict{}

// Evaluate decides whether the assignments resolve the request under mode.
// It never mutates its input and returns the same verdict for the same set
// regardless of slice order.
func Evaluate(mode string, approvers []*entity.Approver) Verdict {
	if len(approvers) == 0 {
		return Unresolved
	}

	switch entity.NormalizeMode(mode) {
	case entity.ModeSingle:
		return evaluateSingle(approvers)
	case entity.ModeFirstResponse:
		return evaluateFirstResponse(approvers)
	case entity.ModeWaitAll:
		return evaluateWaitAll(approvers)
	default:
		return Unresolved
	}
}

// evaluateSingle mirrors the response of the lone approver. When more than
// one assignment exists the earliest response is used, which keeps the mode
// well defined for malformed input.
func evaluateSingle(approvers []*entity.Approver) Verdict {
	return evaluateFirstResponse(approvers)
}

func evaluateFirstResponse(approvers []*entity.Approver) Verdict {
	first := earliest(approvers, func(a *entity.Approver) bool {
		return isDecision(a)
	})
	if first == nil {
		return Unresolved
	}
	return mirror(first)
}

// evaluateWaitAll resolves once nobody is pending. Any rejection wins; with
// no rejection a timed-out assignment makes the result a timeout.
func evaluateWaitAll(approvers []*entity.Approver) Verdict {
	var (
		timedOut bool
		rejector *entity.Approver
		last     *entity.Approver
	)

	for _, a := range approvers {
		switch a.Status {
		case entity.ApproverStatusPending:
			return Unresolved
		case entity.ApproverStatusTimeout:
			timedOut = true
		case entity.ApproverStatusRejected:
			if rejector == nil || before(a, rejector) {
				rejector = a
			}
		case entity.ApproverStatusApproved:
			if last == nil || before(last, a) {
				last = a
			}
		}
	}

	if rejector != nil {
		return mirror(rejector)
	}
	if timedOut || last == nil {
		return Verdict{
			Resolved:   true,
			ResultCode: entity.ResultTimeout,
		}
	}
	return mirror(last)
}

func mirror(a *entity.Approver) Verdict {
	code := a.ResponseCode
	if code == "" {
		code = resultFromStatus(a.Status)
	}
	return Verdict{
		Resolved:    true,
		ResultCode:  code,
		ResultLabel: a.ResponseLabel,
		Contributor: a,
	}
}

func isDecision(a *entity.Approver) bool {
	return a.Status == entity.ApproverStatusApproved || a.Status == entity.ApproverStatusRejected
}

func resultFromStatus(status string) string {
	switch status {
	case entity.ApproverStatusApproved:
		return entity.ResultApprove
	case entity.ApproverStatusRejected:
		return entity.ResultReject
	}
	return entity.ResultTimeout
}

func earliest(approvers []*entity.Approver, match func(*entity.Approver) bool) *entity.Approver {
	var found *entity.Approver
	for _, a := range approvers {
		if !match(a) {
			continue
		}
		if found == nil || before(a, found) {
			found = a
		}
	}
	return found
}

// before orders responses by time, then by approver ref so ties are stable.
func before(a, b *entity.Approver) bool {
	switch {
	case a.RespondedAt == nil && b.RespondedAt == nil:
	case a.RespondedAt == nil:
		return false
	case b.RespondedAt == nil:
		return true
	case !a.RespondedAt.Equal(*b.RespondedAt):
		return a.RespondedAt.Before(*b.RespondedAt)
	}
	return a.ApproverRef < b.ApproverRef
}
