package lark

import (
	"encoding/json"
	"fmt"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/internal/webhook"
)

func plainText(content string) map[string]interface{} {
	return map[string]interface{}{"tag": "plain_text", "content": content}
}

func markdownDiv(content string) map[string]interface{} {
	return map[string]interface{}{
		"tag":  "div",
		"text": map[string]interface{}{"tag": "lark_md", "content": content},
	}
}

func button(label, buttonType, token string) map[string]interface{} {
	return map[string]interface{}{
		"tag":   "button",
		"text":  plainText(label),
		"type":  buttonType,
		"value": map[string]interface{}{"token": token},
	}
}

// buildApprovalCard builds the interactive card with approve and reject buttons
func buildApprovalCard(msg port.ApprovalMessage) map[string]interface{} {
	var elements []interface{}

	title := msg.DocumentTitle
	if title == "" {
		title = msg.DocumentType
	}
	if title != "" {
		if msg.DocumentURL != "" {
			elements = append(elements, markdownDiv(fmt.Sprintf("**Document:** [%s](%s)", title, msg.DocumentURL)))
		} else {
			elements = append(elements, markdownDiv("**Document:** "+title))
		}
	}
	if msg.MessageText != "" {
		elements = append(elements, markdownDiv(msg.MessageText))
	}

	elements = append(elements,
		map[string]interface{}{
			"tag": "action",
			"actions": []interface{}{
				button(msg.ApproveLabel, "primary", webhook.CallbackToken(webhook.ActionApprove, msg.ApprovalID)),
				button(msg.RejectLabel, "danger", webhook.CallbackToken(webhook.ActionReject, msg.ApprovalID)),
			},
		},
		map[string]interface{}{
			"tag":      "note",
			"elements": []interface{}{plainText(fmt.Sprintf("Please respond within %d hours", msg.TimeoutHours))},
		},
	)

	return map[string]interface{}{
		"config": map[string]interface{}{"wide_screen_mode": true, "update_multi": true},
		"header": map[string]interface{}{
			"title":    plainText("Approval required"),
			"template": "blue",
		},
		"elements": elements,
	}
}

// buildFinalCard builds the button-less card shown once the approver can no longer act
func buildFinalCard(notice port.FinalNotice) map[string]interface{} {
	heading, template, fallback := "Approval completed", "grey", notice.Outcome
	switch notice.Outcome {
	case entity.StatusApproved:
		template, fallback = "green", "Approved"
	case entity.StatusRejected:
		template, fallback = "red", "Rejected"
	case entity.StatusTimeout:
		heading, template, fallback = "Approval timed out", "orange", "No response in time"
	case entity.StatusCancelled:
		heading, fallback = "Approval cancelled", "Cancelled"
	}
	if notice.Waiting {
		heading = "Response recorded"
	}

	label := notice.ResultLabel
	if label == "" {
		label = fallback
	}
	status := "**" + label + "**"
	if notice.Responder != "" && notice.Responder != entity.SystemResponder {
		status += " by " + notice.Responder
	}

	var elements []interface{}
	if notice.DocumentTitle != "" {
		elements = append(elements, markdownDiv(notice.DocumentTitle))
	}
	elements = append(elements, markdownDiv(status))
	if notice.Waiting {
		elements = append(elements, markdownDiv("_Waiting for the other approvers_"))
	}

	note := "ID: " + notice.ApprovalID
	if !notice.At.IsZero() {
		note += " · " + notice.At.UTC().Format("2006-01-02 15:04 UTC")
	}
	elements = append(elements, map[string]interface{}{
		"tag":      "note",
		"elements": []interface{}{plainText(note)},
	})

	return map[string]interface{}{
		"config": map[string]interface{}{"wide_screen_mode": true, "update_multi": true},
		"header": map[string]interface{}{
			"title":    plainText(heading),
			"template": template,
		},
		"elements": elements,
	}
}

func marshalContent(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(data), nil
}
