// Package request turns raw, partially specified field values into a fully
// resolved email.Request.
package request

import (
	"fmt"
	"strings"

	"github.com/shineum/email-sender/internal/address"
	"github.com/shineum/email-sender/internal/attachment"
	"github.com/shineum/email-sender/internal/email"
	"github.com/shineum/email-sender/internal/subject"
)

// Fields holds raw values as supplied by the command line or configuration
// defaults. Empty strings and a zero port mean "not supplied", so an explicit
// port of 0 selects email.DefaultPort rather than failing. Address list
// fields and Attachments are comma-delimited; empty tokens are dropped.
type Fields struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	EnvelopeFrom string `yaml:"envelope_from"`
	HeaderFrom   string `yaml:"header_from"`
	EnvelopeTo   string `yaml:"envelope_to"`
	HeaderTo     string `yaml:"header_to"`
	HeaderCc     string `yaml:"header_cc"`
	Bcc          string `yaml:"bcc"`
	Subject      string `yaml:"subject"`
	Body         string `yaml:"body"`
	Attachments  string `yaml:"attachments"`
	Verbose      bool   `yaml:"verbose"`
}

// Builder resolves Fields into a Request. The zero value is ready to use.
type Builder struct {
	// Aliases maps shorthand names to address values. Applied to the from
	// fields and to every address list token before resolution.
	Aliases map[string]string

	Tagger subject.Tagger

	// Load reads one attachment; defaults to attachment.Load.
	Load func(path string) (email.AttachmentRef, error)
}

// Build resolves fields with a zero Builder.
func Build(fields Fields) (*email.Request, error) {
	return Builder{}.Build(fields)
}

// Build validates and resolves fields. It stops at the first failing step
// and never touches the network.
func (b Builder) Build(fields Fields) (*email.Request, error) {
	headerFrom := b.alias(fields.HeaderFrom)
	envelopeFrom := b.alias(fields.EnvelopeFrom)
	envelopeTo := b.aliasAll(tokens(fields.EnvelopeTo))
	headerTo := b.aliasAll(tokens(fields.HeaderTo))
	headerCc := b.aliasAll(tokens(fields.HeaderCc))
	bcc := b.aliasAll(tokens(fields.Bcc))
	paths := tokens(fields.Attachments)

	host, port, err := destination(fields.Host, fields.Port)
	if err != nil {
		return nil, err
	}

	from, err := address.ResolveFrom(envelopeFrom, headerFrom)
	if err != nil {
		return nil, err
	}

	to, err := address.ResolveTo(envelopeTo, headerTo, headerCc)
	if err != nil {
		return nil, err
	}

	if err := singleLine(map[string][]string{
		"envelope_from": {from},
		"header_from":   {headerFrom},
		"envelope_to":   to,
		"header_to":     headerTo,
		"header_cc":     headerCc,
		"bcc":           bcc,
	}); err != nil {
		return nil, err
	}

	tagged, tag := b.Tagger.Tag(fields.Subject)

	attachments, err := b.loadAll(paths)
	if err != nil {
		return nil, err
	}

	return &email.Request{
		DestinationHost: host,
		DestinationPort: port,
		EnvelopeFrom:    from,
		HeaderFrom:      headerFrom,
		EnvelopeTo:      to,
		HeaderTo:        headerTo,
		HeaderCc:        headerCc,
		Bcc:             bcc,
		Subject:         tagged,
		Tag:             tag,
		Body:            fields.Body,
		Attachments:     attachments,
		Verbose:         fields.Verbose,
	}, nil
}

// tokens splits a comma-delimited field and drops the empty tokens left by
// stray or trailing delimiters.
func tokens(raw string) []string {
	var out []string
	for _, t := range address.Normalize(raw) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// singleLine rejects addresses carrying CR or LF, which would otherwise
// start a new header line or SMTP command.
func singleLine(fields map[string][]string) error {
	for _, name := range []string{"header_from", "header_to", "header_cc", "bcc", "envelope_from", "envelope_to"} {
		for _, v := range fields[name] {
			if strings.ContainsAny(v, "\r\n") {
				return &email.FieldError{
					Field: name,
					Err:   fmt.Errorf("%w: %q", email.ErrInvalidAddress, v),
				}
			}
		}
	}
	return nil
}

func destination(host string, port int) (string, int, error) {
	if host == "" {
		return "", 0, &email.FieldError{Field: "destination_host", Err: email.ErrMissingHost}
	}
	if port == 0 {
		port = email.DefaultPort
	}
	if port < 1 || port > 65535 {
		return "", 0, &email.FieldError{
			Field: "destination_port",
			Err:   fmt.Errorf("%w: %d", email.ErrInvalidPort, port),
		}
	}
	return host, port, nil
}

func (b Builder) loadAll(paths []string) ([]email.AttachmentRef, error) {
	if b.Load == nil {
		return attachment.LoadAll(paths)
	}

	var refs []email.AttachmentRef
	for _, p := range paths {
		ref, err := b.Load(p)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (b Builder) alias(v string) string {
	if a, ok := b.Aliases[v]; ok && v != "" {
		return a
	}
	return v
}

func (b Builder) aliasAll(vs []string) []string {
	if len(b.Aliases) == 0 {
		return vs
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = b.alias(v)
	}
	return out
}
