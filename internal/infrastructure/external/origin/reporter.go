package origin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/metrics"
	"github.com/garyjia/approval-gateway/internal/webhook"
)

// Defaults for Config fields left empty
const (
	DefaultCallbackPath   = "/rest/bizproc.event.send"
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 10 * time.Second
	DefaultTimeout        = 8 * time.Second
	DefaultUserAgent      = "ApprovalGateway/1.0"
)

// Config holds result reporter configuration
type Config struct {
	Secret         string
	CallbackPath   string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	UserAgent      string
}

// DeliveryError is a failed result delivery. Permanent failures are not worth retrying.
type DeliveryError struct {
	URL        string
	StatusCode int
	Attempts   int
	Permanent  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery failure to %s after %d attempt(s): http %d", kind, e.URL, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("%s delivery failure to %s after %d attempt(s): %v", kind, e.URL, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a delivery failure that retrying cannot fix
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}

// Reporter implements port.ResultReporter with signed HTTP callbacks
type Reporter struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// NewReporter creates a result reporter
func NewReporter(cfg Config, logger *zap.Logger) *Reporter {
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = DefaultCallbackPath
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &Reporter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Budget is the longest a Report call can take when every attempt times out
func (r *Reporter) Budget() time.Duration {
	return time.Duration(r.cfg.MaxAttempts) * (r.cfg.Timeout + r.cfg.MaxBackoff)
}

// callbackPayload is the body posted to the origin. The return_values block
// matches the bizproc.event.send contract.
type callbackPayload struct {
	EventToken   string       `json:"event_token"`
	ResultCode   string       `json:"result_code"`
	ResultLabel  string       `json:"result_label"`
	Comment      string       `json:"comment"`
	RespondedBy  string       `json:"responded_by"`
	RespondedAt  string       `json:"responded_at"`
	ReturnValues returnValues `json:"return_values"`
}

type returnValues struct {
	ResultCode  string `json:"RESULT_CODE"`
	ResultLabel string `json:"RESULT_LABEL"`
	Comment     string `json:"COMMENT"`
	RespondedBy string `json:"RESPONDED_BY"`
	RespondedAt string `json:"RESPONDED_AT"`
}

// Report delivers the resolution, retrying network errors, 5xx and 429
func (r *Reporter) Report(ctx context.Context, report port.ResultReport) error {
	url, err := r.callbackURL(report.OriginSystemRef)
	if err != nil {
		return &DeliveryError{Permanent: true, Err: err}
	}

	respondedAt := report.RespondedAt
	if respondedAt.IsZero() {
		respondedAt = r.now()
	}
	at := respondedAt.UTC().Format(time.RFC3339)

	body, err := json.Marshal(callbackPayload{
		EventToken:  report.ApprovalID,
		ResultCode:  report.ResultCode,
		ResultLabel: report.ResultLabel,
		Comment:     report.Comment,
		RespondedBy: report.RespondedBy,
		RespondedAt: at,
		ReturnValues: returnValues{
			ResultCode:  report.ResultCode,
			ResultLabel: report.ResultLabel,
			Comment:     report.Comment,
			RespondedBy: report.RespondedBy,
			RespondedAt: at,
		},
	})
	if err != nil {
		return &DeliveryError{URL: url, Permanent: true, Err: fmt.Errorf("failed to marshal callback: %w", err)}
	}

	start := time.Now()
	backoff := r.cfg.InitialBackoff
	var lastErr *DeliveryError

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		lastErr = r.attempt(ctx, url, body)
		if lastErr == nil {
			metrics.RecordResultReport("delivered", time.Since(start))
			r.logger.Info("Result delivered",
				zap.String("approval_id", report.ApprovalID),
				zap.String("result_code", report.ResultCode),
				zap.Int("attempt", attempt))
			return nil
		}
		lastErr.Attempts = attempt

		if lastErr.Permanent || attempt == r.cfg.MaxAttempts {
			break
		}

		r.logger.Warn("Result delivery failed, retrying",
			zap.String("approval_id", report.ApprovalID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		if err := r.sleep(ctx, backoff); err != nil {
			lastErr.Err = err
			break
		}
		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	status := "failed"
	if lastErr.Permanent {
		status = "rejected"
	}
	metrics.RecordResultReport(status, time.Since(start))
	r.logger.Error("Result delivery failed",
		zap.String("approval_id", report.ApprovalID),
		zap.String("url", url),
		zap.Bool("permanent", lastErr.Permanent),
		zap.Error(lastErr))
	return lastErr
}

func (r *Reporter) attempt(ctx context.Context, url string, body []byte) *DeliveryError {
	signature, timestamp, err := webhook.Sign(r.cfg.Secret, body, r.now())
	if err != nil {
		return &DeliveryError{URL: url, Permanent: true, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: url, Permanent: true, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderSignature, signature)
	req.Header.Set(webhook.HeaderTimestamp, timestamp)
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		// a cancelled context will not recover on retry
		return &DeliveryError{URL: url, Permanent: ctx.Err() != nil, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &DeliveryError{URL: url, StatusCode: resp.StatusCode}
	default:
		return &DeliveryError{URL: url, StatusCode: resp.StatusCode, Permanent: true}
	}
}

func (r *Reporter) callbackURL(originSystemRef string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(originSystemRef), "/")
	if base == "" {
		return "", fmt.Errorf("origin system reference is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	path := r.cfg.CallbackPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ port.ResultReporter = (*Reporter)(nil)
