package lark

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

type mockMessageAPI struct {
	CreateFunc func(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, string, error)
	PatchFunc  func(ctx context.Context, messageID, content string) error
}

func (m *mockMessageAPI) Create(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, receiveIDType, receiveID, msgType, content)
	}
	return "om_1", "oc_1", nil
}

func (m *mockMessageAPI) Patch(ctx context.Context, messageID, content string) error {
	if m.PatchFunc != nil {
		return m.PatchFunc(ctx, messageID, content)
	}
	return nil
}

func newMockNotifier(api messageAPI) *Notifier {
	return &Notifier{
		messages:      api,
		receiveIDType: "open_id",
		ping:          func(ctx context.Context) (string, error) { return "app:test", nil },
		logger:        zap.NewNop(),
	}
}

func TestNotifier_SendApproval(t *testing.T) {
	var gotType, gotRecipient, gotMsgType, gotContent string
	api := &mockMessageAPI{
		CreateFunc: func(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, string, error) {
			gotType, gotRecipient, gotMsgType, gotContent = receiveIDType, receiveID, msgType, content
			return "om_42", "oc_7", nil
		},
	}
	n := newMockNotifier(api)

	ref, err := n.SendApproval(context.Background(), "ou_abc", port.ApprovalMessage{
		ApprovalID:    "A1",
		DocumentTitle: "Contract",
		DocumentURL:   "https://crm.example.com/c/1",
		MessageText:   "Sign off please",
		ApproveLabel:  "Approve",
		RejectLabel:   "Reject",
		TimeoutHours:  8,
	})
	require.NoError(t, err)
	assert.Equal(t, port.MessageRef{ChatID: "oc_7", MessageID: "om_42"}, ref)
	assert.Equal(t, "open_id", gotType)
	assert.Equal(t, "ou_abc", gotRecipient)
	assert.Equal(t, "interactive", gotMsgType)

	var card map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(gotContent), &card))
	elements := card["elements"].([]interface{})

	var tokens []string
	for _, el := range elements {
		m := el.(map[string]interface{})
		if m["tag"] != "action" {
			continue
		}
		for _, a := range m["actions"].([]interface{}) {
			value := a.(map[string]interface{})["value"].(map[string]interface{})
			tokens = append(tokens, value["token"].(string))
		}
	}
	assert.Equal(t, []string{"approve:A1", "reject:A1"}, tokens)
	assert.Contains(t, gotContent, "[Contract](https://crm.example.com/c/1)")
	assert.Contains(t, gotContent, "within 8 hours")
}

func TestNotifier_SendApprovalFailure(t *testing.T) {
	api := &mockMessageAPI{
		CreateFunc: func(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, string, error) {
			return "", "", errors.New("API error: code=230002")
		},
	}
	n := newMockNotifier(api)

	_, err := n.SendApproval(context.Background(), "ou_abc", port.ApprovalMessage{ApprovalID: "A1"})
	assert.Error(t, err)

	_, err = n.SendApproval(context.Background(), "", port.ApprovalMessage{ApprovalID: "A1"})
	assert.Error(t, err)
}

func TestNotifier_Finalize(t *testing.T) {
	var patched, content string
	api := &mockMessageAPI{
		PatchFunc: func(ctx context.Context, messageID, c string) error {
			patched, content = messageID, c
			return nil
		},
	}
	n := newMockNotifier(api)

	err := n.Finalize(context.Background(), port.MessageRef{ChatID: "oc_7", MessageID: "om_42"}, port.FinalNotice{
		ApprovalID: "A1",
		Outcome:    entity.StatusCancelled,
		Responder:  entity.SystemResponder,
	})
	require.NoError(t, err)
	assert.Equal(t, "om_42", patched)
	assert.Contains(t, content, "Approval cancelled")
	assert.NotContains(t, content, `"tag":"action"`)
	assert.NotContains(t, content, "by System")

	assert.Error(t, n.Finalize(context.Background(), port.MessageRef{}, port.FinalNotice{}))
}

func TestNotifier_SendTextAndAnswer(t *testing.T) {
	var msgType, content string
	api := &mockMessageAPI{
		CreateFunc: func(ctx context.Context, receiveIDType, receiveID, mt, c string) (string, string, error) {
			msgType, content = mt, c
			return "om_1", "oc_1", nil
		},
	}
	n := newMockNotifier(api)

	require.NoError(t, n.SendText(context.Background(), "ou_abc", `say "hi"`))
	assert.Equal(t, "text", msgType)
	assert.JSONEq(t, `{"text":"say \"hi\""}`, content)

	assert.NoError(t, n.AnswerCallback(context.Background(), "cb", "ok"))
	assert.Equal(t, ChannelName, n.Channel())
}

func TestSDKClient_TenantAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/open-apis/auth/v3/tenant_access_token/internal", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["app_secret"] != "secret" {
			_, _ = w.Write([]byte(`{"code":10014,"msg":"app secret invalid"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"msg":"ok","tenant_access_token":"t-123","expire":7200}`))
	}))
	defer server.Close()

	good := NewSDKClient(Config{AppID: "cli_1", AppSecret: "secret", BaseURL: server.URL}, zap.NewNop())
	token, err := good.TenantAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t-123", token)

	name, err := NewNotifier(good, zap.NewNop()).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "app:cli_1", name)

	bad := NewSDKClient(Config{AppID: "cli_1", AppSecret: "wrong", BaseURL: server.URL}, zap.NewNop())
	_, err = bad.TenantAccessToken(context.Background())
	assert.Error(t, err)
}
