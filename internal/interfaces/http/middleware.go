package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-gateway/internal/metrics"
	"github.com/garyjia/approval-gateway/internal/webhook"
)

// maxSignedBody caps the body read by the signature check
const maxSignedBody = 1 << 20

// loggingMiddleware logs each request and records its metrics
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(method, route, status, latency)

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// signatureMiddleware rejects requests whose HMAC signature does not
// verify. The body is restored for the handler.
func (s *Server) signatureMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBody+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, Response{Success: false, Error: "failed to read request body"})
			return
		}
		if len(body) > maxSignedBody {
			s.logger.Warn("Rejected oversized request",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, Response{Success: false, Error: "request body too large"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		signature, timestamp := webhook.ExtractCredentials(
			c.GetHeader(webhook.HeaderSignature),
			c.GetHeader(webhook.HeaderTimestamp),
			body,
		)
		if err := s.verifier.Verify(body, signature, timestamp); err != nil {
			reason := signatureFailureReason(err)
			metrics.RecordSignatureFailure(reason)
			s.logger.Warn("Rejected unsigned request",
				"event", "security",
				"reason", reason,
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: err.Error()})
			return
		}

		c.Next()
	}
}

func signatureFailureReason(err error) string {
	switch {
	case errors.Is(err, webhook.ErrMissingCredentials):
		return "missing"
	case errors.Is(err, webhook.ErrExpired):
		return "expired"
	default:
		return "invalid"
	}
}
