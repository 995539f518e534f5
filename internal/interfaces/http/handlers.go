package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-gateway/internal/application/service"
)

const healthCheckTimeout = 5 * time.Second

// Handlers contains all HTTP request handlers
type Handlers struct {
	approvals    ApprovalService
	healthChecks []HealthCheck
	version      string
	logger       Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(approvals ApprovalService, healthChecks []HealthCheck, version string, logger Logger) *Handlers {
	return &Handlers{
		approvals:    approvals,
		healthChecks: healthChecks,
		version:      version,
		logger:       logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one dependency probe
type CheckResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	})
}

// LivenessCheck handles GET /health/live. It answers while the process serves HTTP.
func (h *Handlers) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	})
}

// ReadinessCheck handles GET /health/ready. Any failing dependency makes it 503.
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	resp, healthy := h.runChecks(c.Request.Context())
	resp.Status = "ready"
	status := http.StatusOK
	if !healthy {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// DetailedHealthCheck handles GET /health/detailed
func (h *Handlers) DetailedHealthCheck(c *gin.Context) {
	resp, healthy := h.runChecks(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (h *Handlers) runChecks(ctx context.Context) (HealthResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(h.healthChecks)),
	}
	healthy := true
	for _, hc := range h.healthChecks {
		detail, err := hc.Check(ctx)
		if err != nil {
			h.logger.Warn("Health check failed", "check", hc.Name, "error", err)
			healthy = false
			resp.Checks[hc.Name] = CheckResult{Status: "unhealthy", Error: err.Error()}
			continue
		}
		resp.Checks[hc.Name] = CheckResult{Status: "healthy", Detail: detail}
	}
	return resp, healthy
}

// CreateApproval handles POST /api/v1/approvals
func (h *Handlers) CreateApproval(c *gin.Context) {
	h.createApproval(c, false)
}

// CreateApprovalLegacy handles POST /api/b24/notify
func (h *Handlers) CreateApprovalLegacy(c *gin.Context) {
	h.createApproval(c, true)
}

func (h *Handlers) createApproval(c *gin.Context, legacy bool) {
	var req CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid create request body", "error", err)
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.approvals.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.writeError(c, err, "approval_id", string(req.ApprovalID))
		return
	}

	resp := CreateApprovalResponse{
		Success:           true,
		ApprovalID:        result.ApprovalID,
		ApproversCreated:  result.ApproversCreated,
		NotificationsSent: result.NotificationsSent,
		Unmapped:          result.Unmapped,
	}
	if legacy {
		sent := result.NotificationsSent
		resp.TelegramMessagesSent = &sent
	}
	c.JSON(http.StatusOK, resp)
}

// GetApproval handles GET /api/v1/approvals/:approval_id
func (h *Handlers) GetApproval(c *gin.Context) {
	id := c.Param("approval_id")

	view, err := h.approvals.Status(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "approval_id", id)
		return
	}

	c.JSON(http.StatusOK, toStatusResponse(view))
}

// CancelApproval handles POST /api/v1/approvals/:approval_id/cancel
func (h *Handlers) CancelApproval(c *gin.Context) {
	id := c.Param("approval_id")

	var req CancelRequest
	if c.Request.ContentLength != 0 {
		// The body may carry only signature fields, so unknown content is tolerated
		_ = c.ShouldBindJSON(&req)
	}

	approval, err := h.approvals.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.writeError(c, err, "approval_id", id)
		return
	}

	c.JSON(http.StatusOK, CancelResponse{
		Success:    true,
		ApprovalID: approval.ApprovalID,
		Status:     approval.Status,
	})
}

// Stats handles GET /api/v1/stats
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.approvals.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// writeError maps service errors onto HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error, keysAndValues ...interface{}) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: service.ErrValidation.Error(), Fields: verr.Fields})
	case errors.Is(err, service.ErrNoDeliverableApprovers):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	case errors.Is(err, service.ErrNotPending):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	case errors.Is(err, service.ErrDuplicate):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error("Request failed", append(keysAndValues, "path", c.Request.URL.Path, "error", err)...)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal server error"})
	}
}
