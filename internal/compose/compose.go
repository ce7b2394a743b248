// Package compose assembles resolved requests into outbound messages and
// renders them as RFC 5322 / MIME.
package compose

import (
	"strings"

	"github.com/rs/xid"

	"github.com/shineum/email-sender/internal/address"
	"github.com/shineum/email-sender/internal/email"
)

// defaultIDDomain is used for the Message-ID when From carries no domain.
const defaultIDDomain = "localhost"

// Assemble builds the outbound message for req. Bcc recipients never appear
// in the result.
func Assemble(req *email.Request) *email.Message {
	msg := &email.Message{
		Subject: req.Subject,
		Body:    req.Body,
	}

	if req.HeaderFrom != "" {
		msg.From = req.HeaderFrom
		msg.MessageID = NewMessageID(address.Extract(req.HeaderFrom))
	}
	if len(req.HeaderTo) > 0 {
		msg.To = strings.Join(req.HeaderTo, ", ")
	}
	if len(req.HeaderCc) > 0 {
		msg.Cc = strings.Join(req.HeaderCc, ", ")
	}

	if len(req.Attachments) > 0 {
		msg.Attachments = make([]email.Attachment, 0, len(req.Attachments))
		for _, ref := range req.Attachments {
			msg.Attachments = append(msg.Attachments, email.Attachment{
				Filename: ref.Filename,
				MainType: ref.MainType,
				SubType:  ref.SubType,
				Content:  ref.Content,
			})
		}
	}

	return msg
}

// NewMessageID returns a unique Message-ID scoped to the domain of addr.
func NewMessageID(addr string) string {
	domain := defaultIDDomain
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		domain = addr[i+1:]
	}
	return "<" + xid.New().String() + "@" + domain + ">"
}
