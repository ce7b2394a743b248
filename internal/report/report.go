// Package report prints human-readable summaries of resolved requests and
// captured messages.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shineum/email-sender/internal/email"
)

type line struct {
	key   string
	value string
}

// Request writes the resolved request as aligned "key: value" lines. Empty
// fields are omitted and the verbose flag is never shown.
func Request(w io.Writer, req *email.Request) error {
	lines := []line{
		{"host", req.DestinationHost},
		{"port", port(req.DestinationPort)},
		{"envelope from", req.EnvelopeFrom},
		{"header from", req.HeaderFrom},
		{"envelope to", strings.Join(req.EnvelopeTo, ", ")},
		{"header to", strings.Join(req.HeaderTo, ", ")},
		{"header cc", strings.Join(req.HeaderCc, ", ")},
		{"bcc", strings.Join(req.Bcc, ", ")},
		{"subject", req.Subject},
		{"body", req.Body},
		{"attachments", attachments(req.Attachments)},
	}
	return write(w, lines)
}

// Message writes a summary of a message as received by the sink.
func Message(w io.Writer, from string, rcpts []string, msg *email.Message) error {
	var names []string
	for _, att := range msg.Attachments {
		names = append(names, fmt.Sprintf("%s (%s, %s)", att.Filename, att.ContentType(), formatSize(len(att.Content))))
	}

	lines := []line{
		{"envelope from", from},
		{"envelope to", strings.Join(rcpts, ", ")},
		{"from", msg.From},
		{"to", msg.To},
		{"cc", msg.Cc},
		{"subject", msg.Subject},
		{"message id", msg.MessageID},
		{"body", msg.Body},
		{"attachments", strings.Join(names, ", ")},
	}
	return write(w, lines)
}

func write(w io.Writer, lines []line) error {
	width := 0
	for _, l := range lines {
		if l.value != "" {
			width = max(width, len(l.key)+1)
		}
	}

	var b strings.Builder
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		fmt.Fprintf(&b, "%-*s %s\n", width, l.key+":", l.value)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func port(p int) string {
	if p == 0 {
		return ""
	}
	return strconv.Itoa(p)
}

func attachments(refs []email.AttachmentRef) string {
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, fmt.Sprintf("%s (%s, %s)", ref.Filename, ref.ContentType(), formatSize(len(ref.Content))))
	}
	return strings.Join(names, ", ")
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
