// Package address splits delimited address fields and derives envelope
// addresses from header addresses.
package address

import (
	"net/mail"
	"strings"

	"github.com/shineum/email-sender/internal/email"
)

// Normalize splits a comma-delimited field into trimmed tokens, preserving
// order. Empty tokens from consecutive delimiters are kept; an empty field
// yields nil.
func Normalize(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Extract reduces a display-name-qualified address such as
// `"Name" <addr@example.com>` to the bare address inside the last <...>
// pair. Strings without such a pair are returned unchanged.
func Extract(addr string) string {
	end := strings.LastIndex(addr, ">")
	if end < 0 {
		return addr
	}
	start := strings.LastIndex(addr[:end], "<")
	if start < 0 {
		return addr
	}
	return addr[start+1 : end]
}

// ResolveFrom returns the envelope sender. An explicit envelope address wins;
// otherwise it is extracted from the header address.
func ResolveFrom(envelopeFrom, headerFrom string) (string, error) {
	switch {
	case envelopeFrom != "":
		return envelopeFrom, nil
	case headerFrom != "":
		return Extract(headerFrom), nil
	default:
		return "", &email.FieldError{Field: "envelope_from", Err: email.ErrMissingAddress}
	}
}

// ResolveTo returns the envelope recipients. Explicit envelope recipients win;
// otherwise the header To entries followed by the header Cc entries are used,
// each reduced to its bare address.
func ResolveTo(envelopeTo, headerTo, headerCc []string) ([]string, error) {
	if len(envelopeTo) > 0 {
		return envelopeTo, nil
	}

	if len(headerTo) == 0 && len(headerCc) == 0 {
		return nil, &email.FieldError{Field: "envelope_to", Err: email.ErrMissingAddress}
	}

	out := make([]string, 0, len(headerTo)+len(headerCc))
	for _, a := range headerTo {
		out = append(out, Extract(a))
	}
	for _, a := range headerCc {
		out = append(out, Extract(a))
	}
	return out, nil
}

// ParseList returns the bare addresses of a rendered address header such as
// "A <a@x.com>, b@x.com". Headers that do not parse as RFC 5322 lists fall
// back to a comma split with Extract applied per entry.
func ParseList(header string) []string {
	if header == "" {
		return nil
	}

	list, err := mail.ParseAddressList(header)
	if err != nil {
		var out []string
		for _, p := range Normalize(header) {
			if p != "" {
				out = append(out, Extract(p))
			}
		}
		return out
	}

	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}
