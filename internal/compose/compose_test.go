package compose

import (
	"regexp"
	"strings"
	"testing"

	"github.com/shineum/email-sender/internal/email"
	"github.com/shineum/email-sender/internal/parser"
)

var messageIDPattern = regexp.MustCompile(`^<[0-9a-v]{20}@x\.com>$`)

func TestAssembleHeaders(t *testing.T) {
	t.Parallel()

	req := &email.Request{
		EnvelopeFrom: "ann@x.com",
		HeaderFrom:   "Ann <ann@x.com>",
		EnvelopeTo:   []string{"bo@y.com", "cy@y.com"},
		HeaderTo:     []string{"Bo <bo@y.com>"},
		HeaderCc:     []string{"cy@y.com", "Di <di@y.com>"},
		Bcc:          []string{"hidden@z.com"},
		Subject:      "Status abc12",
		Body:         "ok",
	}

	msg := Assemble(req)

	if msg.From != "Ann <ann@x.com>" {
		t.Errorf("From: got %q, want %q", msg.From, "Ann <ann@x.com>")
	}
	if msg.To != "Bo <bo@y.com>" {
		t.Errorf("To: got %q, want %q", msg.To, "Bo <bo@y.com>")
	}
	if msg.Cc != "cy@y.com, Di <di@y.com>" {
		t.Errorf("Cc: got %q, want %q", msg.Cc, "cy@y.com, Di <di@y.com>")
	}
	if msg.Subject != "Status abc12" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Status abc12")
	}
	if msg.Body != "ok" {
		t.Errorf("Body: got %q, want %q", msg.Body, "ok")
	}
	if !messageIDPattern.MatchString(msg.MessageID) {
		t.Errorf("MessageID: got %q, want match %s", msg.MessageID, messageIDPattern)
	}
}

func TestAssembleWithoutHeaderFrom(t *testing.T) {
	t.Parallel()

	msg := Assemble(&email.Request{
		EnvelopeFrom: "ann@x.com",
		EnvelopeTo:   []string{"bo@y.com"},
		Subject:      "s 12345",
	})

	if msg.From != "" {
		t.Errorf("From: got %q, want empty", msg.From)
	}
	if msg.MessageID != "" {
		t.Errorf("MessageID: got %q, want empty when From is omitted", msg.MessageID)
	}
	if msg.To != "" || msg.Cc != "" {
		t.Errorf("To/Cc: got %q/%q, want empty", msg.To, msg.Cc)
	}
}

func TestAssembleAttachmentsInOrder(t *testing.T) {
	t.Parallel()

	msg := Assemble(&email.Request{
		Attachments: []email.AttachmentRef{
			{Path: "/tmp/b.pdf", Filename: "b.pdf", MainType: "application", SubType: "pdf", Content: []byte("b")},
			{Path: "/tmp/a.png", Filename: "a.png", MainType: "image", SubType: "png", Content: []byte("a")},
		},
	})

	if len(msg.Attachments) != 2 {
		t.Fatalf("Attachments: got %d, want 2", len(msg.Attachments))
	}
	if msg.Attachments[0].Filename != "b.pdf" || msg.Attachments[1].Filename != "a.png" {
		t.Errorf("order: got %q, %q", msg.Attachments[0].Filename, msg.Attachments[1].Filename)
	}
	if msg.Attachments[1].ContentType() != "image/png" {
		t.Errorf("ContentType: got %q, want image/png", msg.Attachments[1].ContentType())
	}
}

func TestNewMessageID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr   string
		suffix string
	}{
		{"ann@x.com", "@x.com>"},
		{"weird@name@mail.example.org", "@mail.example.org>"},
		{"nodomain", "@localhost>"},
		{"trailing@", "@localhost>"},
	}

	for _, tt := range tests {
		got := NewMessageID(tt.addr)
		if !strings.HasPrefix(got, "<") || !strings.HasSuffix(got, tt.suffix) {
			t.Errorf("NewMessageID(%q) = %q, want suffix %q", tt.addr, got, tt.suffix)
		}
	}

	if NewMessageID("a@x.com") == NewMessageID("a@x.com") {
		t.Error("expected unique message IDs")
	}
}

func TestRenderSinglePart(t *testing.T) {
	t.Parallel()

	msg := &email.Message{
		From:      "Ann <ann@x.com>",
		To:        "Bo <bo@y.com>",
		Subject:   "Status abc12",
		MessageID: "<id@x.com>",
		Body:      "line one\nline two",
	}

	raw, err := Bytes(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := string(raw)

	for _, want := range []string{
		"From: Ann <ann@x.com>\r\n",
		"To: Bo <bo@y.com>\r\n",
		"Subject: Status abc12\r\n",
		"Message-ID: <id@x.com>\r\n",
		"MIME-Version: 1.0\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"Content-Transfer-Encoding: 7bit\r\n",
		"\r\n\r\nline one\r\nline two",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Cc:") {
		t.Error("output should not contain Cc header when Cc is empty")
	}
	if !strings.HasPrefix(out, "From: ") {
		t.Error("From should be the first header")
	}
}

func TestRenderFoldsLineBreaksInHeaders(t *testing.T) {
	t.Parallel()

	msg := Assemble(&email.Request{
		HeaderFrom: "Ann <ann@x.com>\nX-Injected: 1",
		HeaderTo:   []string{"b@y.com\r\nBcc: hidden@z.com"},
		HeaderCc:   []string{"c@y.com\rCc: more@z.com"},
		Subject:    "Status\r\nBcc: hidden@z.com abc12",
		Body:       "body",
	})

	raw, err := Bytes(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header, _, _ := strings.Cut(string(raw), "\r\n\r\n")
	for _, line := range strings.Split(header, "\r\n") {
		name, _, _ := strings.Cut(line, ":")
		switch name {
		case "From", "To", "Cc", "Subject", "Message-ID", "MIME-Version", "Content-Type", "Content-Transfer-Encoding":
		default:
			t.Errorf("unexpected header line %q", line)
		}
		if strings.ContainsAny(line, "\r\n") {
			t.Errorf("header line %q contains a bare line break", line)
		}
	}
	if !strings.Contains(header, "To: b@y.com Bcc: hidden@z.com\r\n") {
		t.Errorf("To header not folded onto one line:\n%s", header)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	t.Parallel()

	msg := &email.Message{
		From:      "Jörg <jorg@x.com>",
		To:        "Bo <bo@y.com>, cy@y.com",
		Cc:        "Di <di@y.com>",
		Subject:   "Grüße abc12",
		MessageID: "<id@x.com>",
		Body:      "Schön",
		Attachments: []email.Attachment{
			{Filename: "report.pdf", MainType: "application", SubType: "pdf", Content: []byte("%PDF-1.4 binary \x00\x01")},
			{Filename: "blob", MainType: "application", SubType: "octet-stream", Content: []byte(strings.Repeat("x", 200))},
		},
	}

	raw, err := Bytes(msg)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	got, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got.From != msg.From {
		t.Errorf("From: got %q, want %q", got.From, msg.From)
	}
	if got.To != msg.To {
		t.Errorf("To: got %q, want %q", got.To, msg.To)
	}
	if got.Cc != msg.Cc {
		t.Errorf("Cc: got %q, want %q", got.Cc, msg.Cc)
	}
	if got.Subject != msg.Subject {
		t.Errorf("Subject: got %q, want %q", got.Subject, msg.Subject)
	}
	if got.MessageID != msg.MessageID {
		t.Errorf("MessageID: got %q, want %q", got.MessageID, msg.MessageID)
	}
	if got.Body != msg.Body {
		t.Errorf("Body: got %q, want %q", got.Body, msg.Body)
	}
	if len(got.Attachments) != 2 {
		t.Fatalf("Attachments: got %d, want 2", len(got.Attachments))
	}
	for i, want := range msg.Attachments {
		att := got.Attachments[i]
		if att.Filename != want.Filename {
			t.Errorf("Attachments[%d].Filename: got %q, want %q", i, att.Filename, want.Filename)
		}
		if att.ContentType() != want.ContentType() {
			t.Errorf("Attachments[%d].ContentType: got %q, want %q", i, att.ContentType(), want.ContentType())
		}
		if string(att.Content) != string(want.Content) {
			t.Errorf("Attachments[%d].Content: got %q, want %q", i, att.Content, want.Content)
		}
	}
}

func TestEncodeBase64WithLineBreaks(t *testing.T) {
	t.Parallel()

	encoded := encodeBase64WithLineBreaks([]byte(strings.Repeat("a", 120)))
	for _, line := range strings.Split(encoded, "\r\n") {
		if len(line) > 76 {
			t.Errorf("line length %d exceeds 76", len(line))
		}
	}
}
