package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-gateway/internal/application/service"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/internal/webhook"
)

const testSecret = "test-backend-secret"

type mockApprovalService struct {
	createFunc func(ctx context.Context, input service.CreateApprovalInput) (*service.CreateResult, error)
	statusFunc func(ctx context.Context, approvalID string) (*service.StatusView, error)
	cancelFunc func(ctx context.Context, approvalID, reason string) (*entity.Approval, error)
	statsFunc  func(ctx context.Context) (*entity.ApprovalStats, error)
}

func (m *mockApprovalService) Create(ctx context.Context, input service.CreateApprovalInput) (*service.CreateResult, error) {
	return m.createFunc(ctx, input)
}

func (m *mockApprovalService) Status(ctx context.Context, approvalID string) (*service.StatusView, error) {
	return m.statusFunc(ctx, approvalID)
}

func (m *mockApprovalService) Cancel(ctx context.Context, approvalID, reason string) (*entity.Approval, error) {
	return m.cancelFunc(ctx, approvalID, reason)
}

func (m *mockApprovalService) Stats(ctx context.Context) (*entity.ApprovalStats, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return &entity.ApprovalStats{ByStatus: map[string]int{}}, nil
}

type mockWebhooks struct {
	telegramCalls int
}

func (m *mockWebhooks) HandleTelegram(c *gin.Context) {
	m.telegramCalls++
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (m *mockWebhooks) HandleLark(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func newTestServer(svc ApprovalService, checks ...HealthCheck) (*Server, *mockWebhooks) {
	hooks := &mockWebhooks{}
	s := NewServer(DefaultServerConfig(), ServerDeps{
		Approvals:    svc,
		Webhooks:     hooks,
		Verifier:     webhook.NewSignatureVerifier(testSecret, webhook.DefaultReplayWindow),
		HealthChecks: checks,
		Logger:       &mockLogger{},
	})
	return s, hooks
}

func signedRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	sig, ts, err := webhook.Sign(testSecret, []byte(body), time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderSignature, sig)
	req.Header.Set(webhook.HeaderTimestamp, ts)
	return req
}

func httptestBody(body string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(body))
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

const createBody = `{
	"approval_id": "A1",
	"origin_system_ref": "https://portal.example.com",
	"message_text": "Please approve",
	"mode": "single",
	"approvers": [{"origin_user_ref": "U1"}]
}`

func TestCreateApproval(t *testing.T) {
	var got service.CreateApprovalInput
	svc := &mockApprovalService{createFunc: func(ctx context.Context, input service.CreateApprovalInput) (*service.CreateResult, error) {
		got = input
		return &service.CreateResult{ApprovalID: input.ApprovalID, ApproversCreated: 1, NotificationsSent: 1}, nil
	}}
	s, _ := newTestServer(svc)

	w := serve(s, signedRequest(t, http.MethodPost, "/api/v1/approvals", createBody))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CreateApprovalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "A1", resp.ApprovalID)
	assert.Equal(t, 1, resp.ApproversCreated)
	assert.Equal(t, 1, resp.NotificationsSent)
	assert.Nil(t, resp.TelegramMessagesSent)

	assert.Equal(t, "https://portal.example.com", got.OriginSystemRef)
	require.Len(t, got.Approvers, 1)
	assert.Equal(t, "U1", got.Approvers[0].OriginUserRef)
}

func TestCreateApproval_LegacyFields(t *testing.T) {
	var got service.CreateApprovalInput
	svc := &mockApprovalService{createFunc: func(ctx context.Context, input service.CreateApprovalInput) (*service.CreateResult, error) {
		got = input
		return &service.CreateResult{ApprovalID: input.ApprovalID, ApproversCreated: 1, NotificationsSent: 1}, nil
	}}
	s, _ := newTestServer(svc)

	body := `{
		"approval_id": "B24-7",
		"bitrix24_portal": "https://b24.example.com",
		"bitrix24_user_id": 5,
		"document_id": 77,
		"message_text": "Contract",
		"mode": "multiple_first",
		"timeout_hours": "12",
		"approvers": [{"bitrix24_user_id": 11, "telegram_username": "ivan"}],
		"timestamp": 1700000000
	}`
	w := serve(s, signedRequest(t, http.MethodPost, "/api/b24/notify", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CreateApprovalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.TelegramMessagesSent)
	assert.Equal(t, 1, *resp.TelegramMessagesSent)

	assert.Equal(t, "https://b24.example.com", got.OriginSystemRef)
	assert.Equal(t, "5", got.RequestingUserRef)
	assert.Equal(t, "77", got.DocumentID)
	assert.Equal(t, 12, got.TimeoutHours)
	assert.Equal(t, "multiple_first", got.Mode)
	require.Len(t, got.Approvers, 1)
	assert.Equal(t, "11", got.Approvers[0].OriginUserRef)
	assert.Equal(t, "ivan", got.Approvers[0].ChannelHint)
}

func TestCreateApproval_SignatureRequired(t *testing.T) {
	called := false
	svc := &mockApprovalService{createFunc: func(ctx context.Context, input service.CreateApprovalInput) (*service.CreateResult, error) {
		called = true
		return &service.CreateResult{}, nil
	}}
	s, _ := newTestServer(svc)

	unsigned := httptest.NewRequest(http.MethodPost, "/api/v1/approvals", strings.NewReader(createBody))
	assert.Equal(t, http.StatusUnauthorized, serve(s, unsigned).Code)

	tampered := signedRequest(t, http.MethodPost, "/api/v1/approvals", createBody)
	tampered.Body = httptestBody(strings.Replace(createBody, "U1", "U2", 1))
	assert.Equal(t, http.StatusUnauthorized, serve(s, tampered).Code)

	stale := signedRequest(t, http.MethodPost, "/api/v1/approvals", createBody)
	sig, ts, err := webhook.Sign(testSecret, []byte(createBody), time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	stale.Header.Set(webhook.HeaderSignature, sig)
	stale.Header.Set(webhook.HeaderTimestamp, ts)
	assert.Equal(t, http.StatusUnauthorized, serve(s, stale).Code)

	assert.False(t, called)
}

func TestCreateApproval_BodyLimit(t *testing.T) {
	calls := 0
	svc := &mockApprovalService{createFunc: func(ctx context.Context, input service.CreateApprovalInput) (*service.CreateResult, error) {
		calls++
		return &service.CreateResult{ApprovalID: input.ApprovalID}, nil
	}}
	s, _ := newTestServer(svc)

	bodyOfSize := func(n int) string {
		const prefix, suffix = `{"approval_id":"A1","message_text":"`, `"}`
		return prefix + strings.Repeat("a", n-len(prefix)-len(suffix)) + suffix
	}

	w := serve(s, signedRequest(t, http.MethodPost, "/api/v1/approvals", bodyOfSize(maxSignedBody)))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(s, signedRequest(t, http.MethodPost, "/api/v1/approvals", bodyOfSize(maxSignedBody+1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "too large")

	assert.Equal(t, 1, calls)
}

func TestCreateApproval_ErrorMapping(t *testing.T) {
	verr := &service.ValidationError{Fields: map[string]string{"message_text": "is required"}}
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", verr, http.StatusBadRequest},
		{"no approvers", service.ErrNoDeliverableApprovers, http.StatusBadRequest},
		{"duplicate", service.ErrDuplicate, http.StatusConflict},
		{"internal", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockApprovalService{createFunc: func(ctx context.Context, input service.CreateApprovalInput) (*service.CreateResult, error) {
				return nil, tt.err
			}}
			s, _ := newTestServer(svc)
			w := serve(s, signedRequest(t, http.MethodPost, "/api/v1/approvals", createBody))
			assert.Equal(t, tt.code, w.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			if tt.name == "validation" {
				assert.Equal(t, "is required", resp.Fields["message_text"])
			}
		})
	}
}

func TestGetApproval(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	responded := created.Add(time.Hour)
	svc := &mockApprovalService{statusFunc: func(ctx context.Context, approvalID string) (*service.StatusView, error) {
		if approvalID != "A1" {
			return nil, service.ErrNotFound
		}
		return &service.StatusView{
			Approval: &entity.Approval{
				ApprovalID:   "A1",
				Mode:         entity.ModeSingle,
				Status:       entity.StatusApproved,
				ResultCode:   entity.ResultApprove,
				TimeoutHours: 24,
				CreatedAt:    created,
				RespondedAt:  &responded,
			},
			Approvers: []*entity.Approver{{
				ApproverRef:      "U1",
				ChannelRecipient: "C1",
				Status:           entity.ApproverStatusApproved,
				RespondedAt:      &responded,
			}},
			Events: []*entity.ApprovalEvent{{EventType: "approval.created", Payload: `{"mode":"single"}`, Timestamp: created}},
		}, nil
	}}
	s, _ := newTestServer(svc)

	for _, path := range []string{"/api/v1/approvals/A1", "/api/b24/status/A1"} {
		w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)

		var resp ApprovalStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "approved", resp.Status)
		assert.Equal(t, "approve", resp.ResultCode)
		assert.Equal(t, "2024-03-01T09:00:00Z", resp.CreatedAt)
		assert.Equal(t, "2024-03-02T09:00:00Z", resp.ExpiresAt)
		require.NotNil(t, resp.RespondedAt)
		require.Len(t, resp.Approvers, 1)
		assert.Equal(t, "U1", resp.Approvers[0].OriginUserRef)
		assert.Equal(t, "C1", resp.Approvers[0].ChannelIdentity)
		require.Len(t, resp.Events, 1)
		assert.JSONEq(t, `{"mode":"single"}`, string(resp.Events[0].Payload))
	}

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/approvals/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelApproval(t *testing.T) {
	var gotReason string
	svc := &mockApprovalService{cancelFunc: func(ctx context.Context, approvalID, reason string) (*entity.Approval, error) {
		gotReason = reason
		switch approvalID {
		case "A1":
			return &entity.Approval{ApprovalID: "A1", Status: entity.StatusCancelled}, nil
		case "done":
			return nil, service.ErrNotPending
		}
		return nil, service.ErrNotFound
	}}
	s, _ := newTestServer(svc)

	w := serve(s, signedRequest(t, http.MethodPost, "/api/v1/approvals/A1/cancel", `{"reason":"withdrawn"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CancelResponse{Success: true, ApprovalID: "A1", Status: "cancelled"}, resp)
	assert.Equal(t, "withdrawn", gotReason)

	assert.Equal(t, http.StatusBadRequest, serve(s, signedRequest(t, http.MethodPost, "/api/b24/cancel/done", `{}`)).Code)
	assert.Equal(t, http.StatusNotFound, serve(s, signedRequest(t, http.MethodPost, "/api/v1/approvals/x/cancel", `{}`)).Code)

	unsigned := httptest.NewRequest(http.MethodPost, "/api/v1/approvals/A1/cancel", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusUnauthorized, serve(s, unsigned).Code)
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(&mockApprovalService{},
		HealthCheck{Name: "database", Check: func(ctx context.Context) (string, error) { return "", nil }},
		HealthCheck{Name: "telegram", Check: func(ctx context.Context) (string, error) { return "@approval_bot", nil }},
	)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "@approval_bot", resp.Checks["telegram"].Detail)

	failing, _ := newTestServer(&mockApprovalService{},
		HealthCheck{Name: "database", Check: func(ctx context.Context) (string, error) { return "", errors.New("locked") }},
	)
	w = serve(failing, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthProbes(t *testing.T) {
	healthy, _ := newTestServer(&mockApprovalService{},
		HealthCheck{Name: "database", Check: func(ctx context.Context) (string, error) { return "", nil }},
	)
	failing, _ := newTestServer(&mockApprovalService{},
		HealthCheck{Name: "database", Check: func(ctx context.Context) (string, error) { return "", nil }},
		HealthCheck{Name: "telegram", Check: func(ctx context.Context) (string, error) { return "", errors.New("unauthorized") }},
	)

	tests := []struct {
		name       string
		server     *Server
		path       string
		wantCode   int
		wantStatus string
	}{
		{"live", healthy, "/health/live", http.StatusOK, "alive"},
		{"live with failing dependency", failing, "/health/live", http.StatusOK, "alive"},
		{"ready", healthy, "/health/ready", http.StatusOK, "ready"},
		{"not ready", failing, "/health/ready", http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(tt.server, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.wantCode, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}

	w := serve(failing, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Checks["database"].Status)
	assert.Equal(t, "unauthorized", resp.Checks["telegram"].Error)
}

func TestStatsAndWebhookRoutes(t *testing.T) {
	svc := &mockApprovalService{statsFunc: func(ctx context.Context) (*entity.ApprovalStats, error) {
		return &entity.ApprovalStats{Total: 3, ByStatus: map[string]int{"pending": 2, "approved": 1}}, nil
	}}
	s, hooks := newTestServer(svc)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":3`)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, hooks.telegramCalls)
}

func TestFlexibleString(t *testing.T) {
	var v struct {
		A FlexibleString `json:"a"`
		B FlexibleString `json:"b"`
		C FlexibleString `json:"c"`
		N FlexibleInt    `json:"n"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":42,"c":null,"n":"7"}`), &v))
	assert.Equal(t, FlexibleString("x"), v.A)
	assert.Equal(t, FlexibleString("42"), v.B)
	assert.Equal(t, FlexibleString(""), v.C)
	assert.Equal(t, FlexibleInt(7), v.N)

	assert.Error(t, json.Unmarshal([]byte(`{"a":{}}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"n":"seven"}`), &v))
}
