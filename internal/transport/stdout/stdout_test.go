package stdout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shineum/email-sender/internal/email"
)

func TestSend_BasicEmail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	msg := &email.Message{
		From:    "Ann <ann@x.com>",
		To:      "Bo <bo@y.com>",
		Subject: "Monthly Report abc12",
		Body:    "Please find the report attached.",
	}

	err := p.Send(context.Background(), msg, "ann@x.com", []string{"bo@y.com", "hidden@z.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()

	for _, want := range []string{
		"MAIL FROM:<ann@x.com>\n",
		"RCPT TO:<bo@y.com>\n",
		"RCPT TO:<hidden@z.com>\n",
		"From: Ann <ann@x.com>\n",
		"To: Bo <bo@y.com>\n",
		"Subject: Monthly Report abc12\n",
		"Please find the report attached.\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(output, "\r") {
		t.Error("output should use plain newlines")
	}
	if strings.Contains(output, "Cc:") {
		t.Error("output should not contain Cc line when there are no Cc recipients")
	}
	if !strings.HasPrefix(output, separator) {
		t.Error("output should start with separator line")
	}
	if !strings.HasSuffix(output, separator) {
		t.Error("output should end with separator line")
	}
}

func TestSend_WithAttachment(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	msg := &email.Message{
		Subject: "files 12345",
		Body:    "see attached",
		Attachments: []email.Attachment{
			{Filename: "report.pdf", MainType: "application", SubType: "pdf", Content: []byte("Hello World")},
		},
	}

	if err := p.Send(context.Background(), msg, "a@x.com", []string{"b@x.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Content-Type: multipart/mixed") {
		t.Error("output missing multipart content type")
	}
	if !strings.Contains(output, "filename=report.pdf") {
		t.Error("output missing attachment filename")
	}
	if !strings.Contains(output, "SGVsbG8gV29ybGQ=") {
		t.Error("output missing base64 attachment content")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestSend_WriteErrorIsSurfaced(t *testing.T) {
	t.Parallel()

	p := NewWithWriter(failingWriter{})
	err := p.Send(context.Background(), &email.Message{Subject: "s"}, "a@x.com", []string{"b@x.com"})
	if !errors.Is(err, email.ErrTransport) {
		t.Fatalf("error: got %v, want ErrTransport", err)
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	if got := New().Name(); got != "stdout" {
		t.Errorf("Name(): got %q, want %q", got, "stdout")
	}
}
