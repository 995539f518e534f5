package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		eventType Type
		want      bool
	}{
		{TypeApprovalCreated, true},
		{TypeApproverResponded, true},
		{TypeApprovalResolved, true},
		{TypeApprovalCancelled, true},
		{TypeApprovalTimedOut, true},
		{TypeDeliveryFailed, true},
		{Type("instance.created"), false},
		{Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestType_IsResolution(t *testing.T) {
	assert.True(t, TypeApprovalResolved.IsResolution())
	assert.True(t, TypeApprovalTimedOut.IsResolution())
	assert.True(t, TypeApprovalCancelled.IsResolution())
	assert.False(t, TypeApprovalCreated.IsResolution())
	assert.False(t, TypeDeliveryFailed.IsResolution())
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeApprovalCreated, "A1", map[string]interface{}{"mode": "single"})

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, TypeApprovalCreated, evt.Type)
	assert.Equal(t, "A1", evt.ApprovalID)
	assert.Equal(t, "A1", evt.CorrelationID)
	assert.False(t, evt.Timestamp.IsZero())
	assert.Equal(t, "single", evt.GetPayloadString("mode"))

	other := NewEvent(TypeApprovalCreated, "A1", nil)
	assert.NotEqual(t, evt.ID, other.ID)
	assert.NotNil(t, other.Payload)
}

func TestEvent_WithPayloadDoesNotMutate(t *testing.T) {
	original := NewEvent(TypeApproverResponded, "A1", map[string]interface{}{"approver": "U1"})
	updated := original.WithPayload("result_code", "approve").WithActor("U1")

	assert.Equal(t, "", original.GetPayloadString("result_code"))
	assert.Equal(t, "", original.Actor)
	assert.Equal(t, "approve", updated.GetPayloadString("result_code"))
	assert.Equal(t, "U1", updated.GetPayloadString("approver"))
	assert.Equal(t, "U1", updated.Actor)
	assert.Equal(t, original.ID, updated.ID)
}

func TestEvent_PayloadAccessors(t *testing.T) {
	evt := NewEvent(TypeApprovalCreated, "A1", map[string]interface{}{
		"approvers_created":  2,
		"notifications_sent": float64(1),
		"big":                int64(7),
		"reported":           true,
		"name":               42,
	})

	assert.Equal(t, int64(2), evt.GetPayloadInt("approvers_created"))
	assert.Equal(t, int64(1), evt.GetPayloadInt("notifications_sent"))
	assert.Equal(t, int64(7), evt.GetPayloadInt("big"))
	assert.Equal(t, int64(0), evt.GetPayloadInt("missing"))
	assert.True(t, evt.GetPayloadBool("reported"))
	assert.False(t, evt.GetPayloadBool("name"))
	assert.Equal(t, "", evt.GetPayloadString("name"))
}

func TestEvent_PayloadJSON(t *testing.T) {
	evt := NewEvent(TypeApprovalResolved, "A1", map[string]interface{}{"result_code": "approve"})

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(evt.PayloadJSON()), &decoded))
	assert.Equal(t, "approve", decoded["result_code"])

	assert.Equal(t, "{}", NewEvent(TypeApprovalCreated, "A1", nil).PayloadJSON())
}
