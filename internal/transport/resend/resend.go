// Package resend implements a Transport that sends messages via the Resend
// HTTP API.
package resend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/resend/resend-go/v2"

	"github.com/shineum/email-sender/internal/email"
	"github.com/shineum/email-sender/internal/transport"
)

// Transport sends messages through a Resend client.
type Transport struct {
	client *resend.Client
}

// New creates a Transport authenticated with apiKey.
func New(apiKey string) *Transport {
	return &Transport{client: resend.NewClient(apiKey)}
}

// NewWithClient creates a Transport around an existing client.
func NewWithClient(client *resend.Client) *Transport {
	return &Transport{client: client}
}

// Send delivers msg in one API call. Envelope recipients missing from the
// To and Cc headers are sent as Bcc.
func (t *Transport) Send(ctx context.Context, msg *email.Message, from string, rcpts []string) error {
	to, cc, bcc := transport.Recipients(msg, rcpts)
	// The API requires at least one To address.
	if len(to) == 0 {
		to, bcc = bcc, nil
	}

	sender := msg.From
	if sender == "" {
		sender = from
	}

	req := &resend.SendEmailRequest{
		From:        sender,
		To:          to,
		Cc:          cc,
		Bcc:         bcc,
		Subject:     msg.Subject,
		Text:        msg.Body,
		Attachments: make([]*resend.Attachment, 0, len(msg.Attachments)),
	}
	if msg.MessageID != "" {
		req.Headers = map[string]string{"Message-ID": msg.MessageID}
	}

	for _, att := range msg.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Content:     att.Content,
			Filename:    att.Filename,
			ContentType: att.ContentType(),
		})
	}

	sent, err := t.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return email.NewTransportError(t.Name(), classify(ctx, err), fmt.Errorf("sending email: %w", err))
	}

	slog.Debug("Resend accepted message", "id", sent.Id, "recipients", len(rcpts))
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "resend"
}

// classify separates network failures from API rejections. The client does
// not expose HTTP status codes, so every API answer counts as a rejection.
func classify(ctx context.Context, err error) email.TransportErrorKind {
	var netErr net.Error
	if ctx.Err() != nil || errors.As(err, &netErr) {
		return email.KindConnection
	}
	return email.KindRejectedMessage
}
