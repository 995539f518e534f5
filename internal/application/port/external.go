package port

import (
	"context"
	"time"
)

// MessageRef locates a delivered channel message so it can be edited later
type MessageRef struct {
	ChatID    string
	MessageID string
}

// IsZero reports whether the reference points nowhere
func (r MessageRef) IsZero() bool {
	return r.MessageID == ""
}

// ApprovalMessage is the approver-facing request with its two buttons
type ApprovalMessage struct {
	ApprovalID    string
	DocumentType  string
	DocumentTitle string
	DocumentURL   string
	MessageText   string
	ApproveLabel  string
	RejectLabel   string
	TimeoutHours  int
}

// FinalNotice replaces the buttons of a delivered message once the
// approver can no longer act on it
type FinalNotice struct {
	ApprovalID    string
	DocumentTitle string
	// Outcome is an approval status, or the approver's own status when
	// the approval is still waiting for others.
	Outcome     string
	ResultLabel string
	Responder   string
	At          time.Time
	// Waiting is set when other approvers have yet to respond
	Waiting bool
}

// Notifier delivers approval messages over a messaging channel
type Notifier interface {
	// Channel names the messaging channel, e.g. "telegram"
	Channel() string

	SendApproval(ctx context.Context, recipient string, msg ApprovalMessage) (MessageRef, error)

	// Finalize edits a delivered message into its final, button-less form
	Finalize(ctx context.Context, ref MessageRef, notice FinalNotice) error

	SendText(ctx context.Context, recipient, text string) error

	// AnswerCallback acknowledges a button press. Channels without the concept return nil.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// Ping verifies credentials and returns the bot identity
	Ping(ctx context.Context) (string, error)
}

// ResultReport is the resolution delivered to the origin system
type ResultReport struct {
	ApprovalID      string
	OriginSystemRef string
	ResultCode      string
	ResultLabel     string
	Comment         string
	RespondedBy     string
	RespondedAt     time.Time
}

// ResultReporter delivers resolutions to the origin workflow
type ResultReporter interface {
	Report(ctx context.Context, report ResultReport) error
}

// UpdateDeduper remembers channel updates already processed so redelivered
// webhooks are dropped
type UpdateDeduper interface {
	// FirstSeen returns true the first time key is presented within the retention window
	FirstSeen(ctx context.Context, key string) (bool, error)
}
