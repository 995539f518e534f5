package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf16"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

const (
	// maxMessageLength is the Bot API limit, counted in UTF-16 code units
	maxMessageLength = 4096
	maxTitleLength   = 256
	maxLinkLength    = 1024
	ellipsis         = "…"
)

func escape(s string) string {
	return html.EscapeString(s)
}

// textLength counts s the way Telegram does
func textLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// escapeWithin escapes s, cutting it on a rune boundary so the result
// including a trailing ellipsis fits in limit code units
func escapeWithin(s string, limit int) string {
	escaped := escape(s)
	if textLength(escaped) <= limit {
		return escaped
	}

	budget := limit - textLength(ellipsis)
	var b strings.Builder
	used := 0
	for _, r := range s {
		piece := escape(string(r))
		n := textLength(piece)
		if used+n > budget {
			break
		}
		b.WriteString(piece)
		used += n
	}
	b.WriteString(ellipsis)
	return b.String()
}

func formatApprovalMessage(msg port.ApprovalMessage) string {
	header := "📋 <b>Approval required</b>\n\n"
	footer := fmt.Sprintf("⏰ <i>Please respond within %d hours</i>", msg.TimeoutHours)

	var document string
	title := msg.DocumentTitle
	if title == "" {
		title = msg.DocumentType
	}
	if title != "" {
		title = escapeWithin(title, maxTitleLength)
		link := escape(msg.DocumentURL)
		if link != "" && textLength(link) <= maxLinkLength {
			document = fmt.Sprintf("📄 <b>Document:</b> <a href=\"%s\">%s</a>\n\n", link, title)
		} else {
			document = fmt.Sprintf("📄 <b>Document:</b> %s\n\n", title)
		}
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString(document)

	if msg.MessageText != "" {
		const prefix, suffix = "💬 ", "\n\n"
		budget := maxMessageLength - textLength(header+document+footer+prefix+suffix)
		b.WriteString(prefix)
		b.WriteString(escapeWithin(msg.MessageText, budget))
		b.WriteString(suffix)
	}

	b.WriteString(footer)
	return b.String()
}

func formatFinalMessage(notice port.FinalNotice) string {
	var b strings.Builder
	b.WriteString("📋 <b>")
	b.WriteString(outcomeHeading(notice))
	b.WriteString("</b>\n\n")

	if notice.DocumentTitle != "" {
		fmt.Fprintf(&b, "📄 %s\n", escape(notice.DocumentTitle))
	}

	status := outcomeText(notice.Outcome, notice.ResultLabel)
	if notice.Responder != "" && notice.Responder != entity.SystemResponder {
		fmt.Fprintf(&b, "%s by <b>%s</b>\n", status, escape(notice.Responder))
	} else {
		b.WriteString(status)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n🆔 <code>%s</code>", escape(notice.ApprovalID))
	if !notice.At.IsZero() {
		fmt.Fprintf(&b, "\n⏰ <i>%s</i>", notice.At.UTC().Format("2006-01-02 15:04 UTC"))
	}
	if notice.Waiting {
		b.WriteString("\n\n<i>Waiting for the other approvers</i>")
	}
	return b.String()
}

func outcomeHeading(notice port.FinalNotice) string {
	if notice.Waiting {
		return "Response recorded"
	}
	switch notice.Outcome {
	case entity.StatusCancelled:
		return "Approval cancelled"
	case entity.StatusTimeout:
		return "Approval timed out"
	case entity.StatusApproved, entity.StatusRejected:
		return "Approval completed"
	}
	return "Response recorded"
}

func outcomeText(outcome, label string) string {
	var icon, fallback string
	switch outcome {
	case entity.StatusApproved:
		icon, fallback = "✅", "Approved"
	case entity.StatusRejected:
		icon, fallback = "❌", "Rejected"
	case entity.StatusTimeout:
		icon, fallback = "⌛", "No response in time"
	case entity.StatusCancelled:
		icon, fallback = "🚫", "Cancelled"
	default:
		icon, fallback = "ℹ️", outcome
	}
	if label == "" {
		label = fallback
	}
	return icon + " " + escape(label)
}
