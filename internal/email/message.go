// Package email defines the core data model shared by the request pipeline,
// the message assembler and the transports.
package email

// DefaultPort is the submission port used when no port is supplied.
const DefaultPort = 587

// Request is a fully resolved send request. It is built once by the request
// builder and never mutated afterwards.
type Request struct {
	DestinationHost string
	DestinationPort int

	EnvelopeFrom string
	HeaderFrom   string

	EnvelopeTo []string
	HeaderTo   []string
	HeaderCc   []string
	Bcc        []string

	// Subject already carries Tag as its last word.
	Subject string
	Tag     string
	Body    string

	Attachments []AttachmentRef

	Verbose bool
}

// Recipients returns the transport-level recipient list: the envelope
// recipients followed by the blind copies.
func (r *Request) Recipients() []string {
	out := make([]string, 0, len(r.EnvelopeTo)+len(r.Bcc))
	out = append(out, r.EnvelopeTo...)
	return append(out, r.Bcc...)
}

// AttachmentRef is a file loaded from disk for attaching to a message.
type AttachmentRef struct {
	Path     string
	MainType string
	SubType  string
	Filename string
	Content  []byte
}

// ContentType returns the media type as "maintype/subtype".
func (a AttachmentRef) ContentType() string {
	return a.MainType + "/" + a.SubType
}

// Message is the outbound message handed to a transport. Empty header fields
// are omitted when the message is rendered.
type Message struct {
	From      string
	To        string
	Cc        string
	Subject   string
	MessageID string
	Body      string

	Attachments []Attachment
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename string
	MainType string
	SubType  string
	Content  []byte
}

// ContentType returns the media type as "maintype/subtype".
func (a Attachment) ContentType() string {
	return a.MainType + "/" + a.SubType
}
