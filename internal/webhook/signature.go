package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header names carrying the request signature
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"

	// DefaultReplayWindow bounds the accepted clock difference between signer and verifier
	DefaultReplayWindow = 300 * time.Second
)

var (
	// ErrMissingCredentials is returned when signature, timestamp or secret is absent
	ErrMissingCredentials = errors.New("missing signature or timestamp")

	// ErrExpired is returned when the timestamp is outside the replay window or unparsable
	ErrExpired = errors.New("request timestamp expired")

	// ErrInvalidSignature is returned when the signature does not match the body
	ErrInvalidSignature = errors.New("invalid signature")
)

// Canonicalize re-serializes a JSON object with sorted keys and the
// top-level signature field removed. Numbers keep their original literal
// form and HTML characters are not escaped. An empty body canonicalizes to
// an empty string.
func Canonicalize(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to parse body: %w", err)
	}
	if obj, ok := doc.(map[string]interface{}); ok {
		delete(obj, "signature")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to serialize body: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ComputeSignature returns hex(HMAC-SHA256(secret, canonical(body) + timestamp))
func ComputeSignature(secret string, body []byte, timestamp string) (string, error) {
	canonical, err := Canonicalize(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Sign signs body at time at and returns the signature with the timestamp used
func Sign(secret string, body []byte, at time.Time) (signature, timestamp string, err error) {
	timestamp = strconv.FormatInt(at.Unix(), 10)
	signature, err = ComputeSignature(secret, body, timestamp)
	return signature, timestamp, err
}

// SignatureVerifier authenticates signed requests from the origin system
type SignatureVerifier struct {
	secret string
	window time.Duration
	now    func() time.Time
}

// NewSignatureVerifier creates a verifier. A non-positive window falls back to DefaultReplayWindow.
func NewSignatureVerifier(secret string, window time.Duration) *SignatureVerifier {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &SignatureVerifier{
		secret: secret,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the verifier's clock
func (v *SignatureVerifier) WithClock(now func() time.Time) *SignatureVerifier {
	v.now = now
	return v
}

// Verify checks freshness first and then the signature in constant time
func (v *SignatureVerifier) Verify(body []byte, signature, timestamp string) error {
	if signature == "" || timestamp == "" || v.secret == "" {
		return ErrMissingCredentials
	}

	ts, err := parseTimestamp(timestamp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	skew := v.now().Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window {
		return ErrExpired
	}

	expected, err := ComputeSignature(v.secret, body, timestamp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

// parseTimestamp accepts unix seconds and, for callers sending
// JavaScript-style values, unix milliseconds.
func parseTimestamp(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	if n > 1e12 {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}

// ExtractCredentials returns the signature and timestamp from the headers,
// falling back to top-level body fields of the same name.
func ExtractCredentials(headerSignature, headerTimestamp string, body []byte) (signature, timestamp string) {
	signature, timestamp = headerSignature, headerTimestamp
	if signature != "" && timestamp != "" {
		return signature, timestamp
	}

	var fields struct {
		Signature string      `json:"signature"`
		Timestamp json.Number `json:"timestamp"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return signature, timestamp
	}

	if signature == "" {
		signature = fields.Signature
	}
	if timestamp == "" {
		timestamp = fields.Timestamp.String()
	}
	return signature, timestamp
}
