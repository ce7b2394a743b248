package compose

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/shineum/email-sender/internal/email"
)

// Bytes renders msg into a byte slice.
func Bytes(msg *email.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render writes msg to w as an RFC 5322 message. Messages without attachments
// are a single text/plain part; otherwise multipart/mixed with the text part
// first.
func Render(w io.Writer, msg *email.Message) error {
	var buf bytes.Buffer

	writeHeader(&buf, "From", encodeAddressList(msg.From))
	writeHeader(&buf, "To", encodeAddressList(msg.To))
	writeHeader(&buf, "Cc", encodeAddressList(msg.Cc))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Message-ID", msg.MessageID)
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(msg.Attachments) == 0 {
		writeTextPart(&buf, msg.Body)
	} else if err := writeMixed(&buf, msg); err != nil {
		return err
	}

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// writeHeader writes one header line. Line breaks in value are folded into
// spaces so a value can never start another header.
func writeHeader(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(buf, "%s: %s\r\n", key, lineBreaks.Replace(value))
}

// writeTextPart writes the Content-Type headers, the blank separator line and
// the encoded body.
func writeTextPart(buf *bytes.Buffer, body string) {
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	if needsQuotedPrintable(body) {
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		writeQuotedPrintable(buf, body)
		return
	}
	buf.WriteString("Content-Transfer-Encoding: 7bit\r\n\r\n")
	buf.WriteString(toCRLF(body))
}

func writeMixed(buf *bytes.Buffer, msg *email.Message) error {
	writer := multipart.NewWriter(buf)
	fmt.Fprintf(buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", "text/plain; charset=utf-8")
	qp := needsQuotedPrintable(msg.Body)
	if qp {
		bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	} else {
		bodyHeader.Set("Content-Transfer-Encoding", "7bit")
	}

	part, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	var body bytes.Buffer
	if qp {
		writeQuotedPrintable(&body, msg.Body)
	} else {
		body.WriteString(toCRLF(msg.Body))
	}
	if _, err := part.Write(body.Bytes()); err != nil {
		return fmt.Errorf("failed to write body part: %w", err)
	}

	for _, att := range msg.Attachments {
		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", mime.FormatMediaType(att.ContentType(), map[string]string{"name": att.Filename}))
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
			return fmt.Errorf("failed to write attachment part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return nil
}

// encodeAddressList keeps ASCII address headers verbatim and encodes display
// names of non-ASCII lists per RFC 2047.
func encodeAddressList(value string) string {
	if value == "" || isASCII(value) {
		return value
	}

	list, err := mail.ParseAddressList(value)
	if err != nil {
		return mime.QEncoding.Encode("utf-8", value)
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.String())
	}
	return strings.Join(out, ", ")
}

func needsQuotedPrintable(s string) bool {
	if !isASCII(s) {
		return true
	}
	for _, line := range strings.Split(s, "\n") {
		if len(line) > 998 {
			return true
		}
	}
	return false
}

func writeQuotedPrintable(buf *bytes.Buffer, s string) {
	qw := quotedprintable.NewWriter(buf)
	qw.Write([]byte(s))
	qw.Close()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// toCRLF normalizes line endings to CRLF.
func toCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
