package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallbackToken(t *testing.T) {
	tests := []struct {
		token  string
		action string
		id     string
		ok     bool
	}{
		{"approve:A1", ActionApprove, "A1", true},
		{"reject:A1", ActionReject, "A1", true},
		{"approve_A1", ActionApprove, "A1", true},
		{"reject_doc_7", ActionReject, "doc_7", true},
		{"approve:", "", "", false},
		{"completed", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			action, id, ok := ParseCallbackToken(tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestCallbackTokenRoundTrip(t *testing.T) {
	action, id, ok := ParseCallbackToken(CallbackToken(ActionReject, "b24:DOC-1"))
	require.True(t, ok)
	assert.Equal(t, ActionReject, action)
	assert.Equal(t, "b24:DOC-1", id)
}

func TestDecodeTelegramUpdate(t *testing.T) {
	t.Run("callback query", func(t *testing.T) {
		body := `{"update_id":10,"callback_query":{"id":"cb1","from":{"id":555,"first_name":"Ivan","last_name":"Petrov","username":"ivan"},"message":{"message_id":77,"chat":{"id":555}},"data":"approve:A1"}}`
		upd, err := DecodeTelegramUpdate([]byte(body))
		require.NoError(t, err)

		press, ok := upd.(ButtonPress)
		require.True(t, ok)
		assert.Equal(t, "telegram:10", press.Key())
		assert.Equal(t, "cb1", press.CallbackID)
		assert.Equal(t, ActionApprove, press.Action)
		assert.Equal(t, "A1", press.ApprovalID)
		assert.Equal(t, "555", press.Responder.Recipient)
		assert.Equal(t, "Ivan Petrov", press.Responder.Name())
		assert.Equal(t, "555", press.ChatID)
		assert.Equal(t, "77", press.MessageID)
	})

	t.Run("callback with unknown data", func(t *testing.T) {
		body := `{"update_id":11,"callback_query":{"id":"cb2","from":{"id":1},"data":"completed"}}`
		upd, err := DecodeTelegramUpdate([]byte(body))
		require.NoError(t, err)

		u, ok := upd.(Unrecognized)
		require.True(t, ok)
		assert.Equal(t, "cb2", u.CallbackID)
	})

	t.Run("text message", func(t *testing.T) {
		body := `{"update_id":12,"message":{"message_id":3,"from":{"id":42,"username":"anna"},"chat":{"id":42},"text":"  Согласовано "}}`
		upd, err := DecodeTelegramUpdate([]byte(body))
		require.NoError(t, err)

		reply, ok := upd.(TextReply)
		require.True(t, ok)
		assert.Equal(t, "Согласовано", reply.Text)
		assert.Equal(t, "42", reply.Responder.Recipient)
		assert.Equal(t, "@anna", reply.Responder.Name())
	})

	t.Run("bot message is ignored", func(t *testing.T) {
		body := `{"update_id":13,"message":{"message_id":3,"from":{"id":42,"is_bot":true},"chat":{"id":42},"text":"yes"}}`
		upd, err := DecodeTelegramUpdate([]byte(body))
		require.NoError(t, err)
		assert.IsType(t, Unrecognized{}, upd)
	})

	t.Run("other update types", func(t *testing.T) {
		upd, err := DecodeTelegramUpdate([]byte(`{"update_id":14,"edited_message":{}}`))
		require.NoError(t, err)
		assert.IsType(t, Unrecognized{}, upd)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeTelegramUpdate([]byte(`{`))
		assert.Error(t, err)
	})
}
