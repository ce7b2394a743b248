// Package stdout implements a Transport that prints messages instead of
// delivering them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/email-sender/internal/compose"
	"github.com/shineum/email-sender/internal/email"
)

const separator = "========================================\n"

// Transport writes the envelope and the rendered message to a writer.
type Transport struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Transport that writes to os.Stdout.
func New() *Transport {
	return &Transport{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Transport that writes to the given writer.
func NewWithWriter(w io.Writer) *Transport {
	return &Transport{writer: w}
}

// Send prints the envelope followed by the rendered message.
func (t *Transport) Send(_ context.Context, msg *email.Message, from string, to []string) error {
	raw, err := compose.Bytes(msg)
	if err != nil {
		return email.NewTransportError(t.Name(), email.KindRejectedMessage, err)
	}

	var b strings.Builder
	b.WriteString(separator)
	fmt.Fprintf(&b, "MAIL FROM:<%s>\n", from)
	for _, rcpt := range to {
		fmt.Fprintf(&b, "RCPT TO:<%s>\n", rcpt)
	}
	b.WriteString(separator)
	b.WriteString(strings.ReplaceAll(string(raw), "\r\n", "\n"))
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	b.WriteString(separator)

	if _, err := io.WriteString(t.writer, b.String()); err != nil {
		return email.NewTransportError(t.Name(), email.KindConnection, fmt.Errorf("failed to write message: %w", err))
	}

	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "stdout"
}
