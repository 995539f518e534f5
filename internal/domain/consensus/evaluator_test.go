package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func pending(ref string) *entity.Approver {
	return &entity.Approver{ApproverRef: ref, Status: entity.ApproverStatusPending}
}

func responded(ref, code string, offset time.Duration) *entity.Approver {
	at := base.Add(offset)
	label := "Согласовать"
	if code == entity.ResultReject {
		label = "Отклонить"
	}
	return &entity.Approver{
		ApproverRef:   ref,
		Status:        entity.ApproverStatusForResult(code),
		ResponseCode:  code,
		ResponseLabel: label,
		RespondedAt:   &at,
	}
}

func timedOut(ref string) *entity.Approver {
	return &entity.Approver{ApproverRef: ref, Status: entity.ApproverStatusTimeout}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		approvers   []*entity.Approver
		resolved    bool
		result      string
		contributor string
	}{
		{
			name:      "empty set is unresolved",
			mode:      entity.ModeSingle,
			approvers: nil,
		},
		{
			name:      "single pending",
			mode:      entity.ModeSingle,
			approvers: []*entity.Approver{pending("u1")},
		},
		{
			name:        "single approved",
			mode:        entity.ModeSingle,
			approvers:   []*entity.Approver{responded("u1", entity.ResultApprove, 0)},
			resolved:    true,
			result:      entity.ResultApprove,
			contributor: "u1",
		},
		{
			name:        "single rejected",
			mode:        entity.ModeSingle,
			approvers:   []*entity.Approver{responded("u1", entity.ResultReject, 0)},
			resolved:    true,
			result:      entity.ResultReject,
			contributor: "u1",
		},
		{
			name: "first response resolves with others pending",
			mode: entity.ModeFirstResponse,
			approvers: []*entity.Approver{
				pending("u1"),
				responded("u2", entity.ResultReject, time.Minute),
				pending("u3"),
			},
			resolved:    true,
			result:      entity.ResultReject,
			contributor: "u2",
		},
		{
			name: "first response picks the earliest",
			mode: entity.ModeFirstResponse,
			approvers: []*entity.Approver{
				responded("u1", entity.ResultApprove, 2*time.Minute),
				responded("u2", entity.ResultReject, time.Minute),
			},
			resolved:    true,
			result:      entity.ResultReject,
			contributor: "u2",
		},
		{
			name:      "first response all pending",
			mode:      entity.ModeFirstResponse,
			approvers: []*entity.Approver{pending("u1"), pending("u2")},
		},
		{
			name: "wait all with one pending",
			mode: entity.ModeWaitAll,
			approvers: []*entity.Approver{
				responded("u1", entity.ResultApprove, 0),
				pending("u2"),
			},
		},
		{
			name: "wait all approved by everyone",
			mode: entity.ModeWaitAll,
			approvers: []*entity.Approver{
				responded("u1", entity.ResultApprove, time.Minute),
				responded("u2", entity.ResultApprove, 3*time.Minute),
				responded("u3", entity.ResultApprove, 2*time.Minute),
			},
			resolved:    true,
			result:      entity.ResultApprove,
			contributor: "u2",
		},
		{
			name: "wait all reject dominates",
			mode: entity.ModeWaitAll,
			approvers: []*entity.Approver{
				responded("u1", entity.ResultApprove, time.Minute),
				responded("u2", entity.ResultReject, 3*time.Minute),
				responded("u3", entity.ResultReject, 2*time.Minute),
			},
			resolved:    true,
			result:      entity.ResultReject,
			contributor: "u3",
		},
		{
			name: "wait all with timeout and no rejection",
			mode: entity.ModeWaitAll,
			approvers: []*entity.Approver{
				responded("u1", entity.ResultApprove, time.Minute),
				timedOut("u2"),
			},
			resolved: true,
			result:   entity.ResultTimeout,
		},
		{
			name: "wait all rejection beats timeout",
			mode: entity.ModeWaitAll,
			approvers: []*entity.Approver{
				responded("u1", entity.ResultReject, time.Minute),
				timedOut("u2"),
			},
			resolved:    true,
			result:      entity.ResultReject,
			contributor: "u1",
		},
		{
			name: "legacy mode name",
			mode: "multiple_first",
			approvers: []*entity.Approver{
				pending("u1"),
				responded("u2", entity.ResultApprove, 0),
			},
			resolved:    true,
			result:      entity.ResultApprove,
			contributor: "u2",
		},
		{
			name:      "unknown mode never resolves",
			mode:      "majority",
			approvers: []*entity.Approver{responded("u1", entity.ResultApprove, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.mode, tt.approvers)
			assert.Equal(t, tt.resolved, v.Resolved)
			assert.Equal(t, tt.result, v.ResultCode)
			if tt.contributor == "" {
				assert.Nil(t, v.Contributor)
			} else if assert.NotNil(t, v.Contributor) {
				assert.Equal(t, tt.contributor, v.Contributor.ApproverRef)
			}
		})
	}
}

func TestEvaluate_OrderIndependent(t *testing.T) {
	a := responded("u1", entity.ResultApprove, time.Minute)
	b := responded("u2", entity.ResultReject, time.Minute)
	c := responded("u3", entity.ResultReject, time.Minute)

	forward := Evaluate(entity.ModeWaitAll, []*entity.Approver{a, b, c})
	reverse := Evaluate(entity.ModeWaitAll, []*entity.Approver{c, b, a})

	assert.Equal(t, forward, reverse)
	assert.Equal(t, "u2", forward.Contributor.ApproverRef)
}

func TestEvaluate_Idempotent(t *testing.T) {
	set := []*entity.Approver{
		responded("u1", entity.ResultApprove, 0),
		pending("u2"),
	}
	first := Evaluate(entity.ModeFirstResponse, set)
	second := Evaluate(entity.ModeFirstResponse, set)
	assert.Equal(t, first, second)
	assert.Equal(t, entity.ApproverStatusPending, set[1].Status)
}

func TestEvaluate_WaitAllResolvesOnlyAfterEveryResponse(t *testing.T) {
	for n := 1; n <= 5; n++ {
		set := make([]*entity.Approver, n)
		for i := range set {
			set[i] = pending(string(rune('a' + i)))
		}
		for i := 0; i < n; i++ {
			set[i] = responded(set[i].ApproverRef, entity.ResultApprove, time.Duration(i)*time.Second)
			v := Evaluate(entity.ModeWaitAll, set)
			if i < n-1 {
				assert.False(t, v.Resolved, "n=%d after %d responses", n, i+1)
			} else {
				assert.True(t, v.Resolved, "n=%d after all responses", n)
				assert.Equal(t, entity.ResultApprove, v.ResultCode)
			}
		}
	}
}
