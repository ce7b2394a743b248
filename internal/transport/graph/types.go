// Package graph implements a Transport that sends messages via the Microsoft
// Graph sendMail API.
package graph

import (
	"encoding/base64"

	"github.com/shineum/email-sender/internal/email"
	"github.com/shineum/email-sender/internal/transport"
)

type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject                string            `json:"subject"`
	Body                   messageBody       `json:"body"`
	ToRecipients           []recipient       `json:"toRecipients,omitempty"`
	CcRecipients           []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients          []recipient       `json:"bccRecipients,omitempty"`
	InternetMessageHeaders []messageHeader   `json:"internetMessageHeaders,omitempty"`
	Attachments            []graphAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// messageHeader is a custom internet header. Graph only accepts names
// starting with "X-".
type messageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// tokenResponse is the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type graphErrorResponse struct {
	Error graphError `json:"error"`
}

type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts msg and its envelope recipients into a
// sendMail request body. Envelope recipients missing from the To and Cc
// headers become blind copies.
func buildSendMailRequest(msg *email.Message, rcpts []string) *sendMailRequest {
	to, cc, bcc := transport.Recipients(msg, rcpts)

	attachments := make([]graphAttachment, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  att.ContentType(),
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	m := sendMailMessage{
		Subject:       msg.Subject,
		Body:          messageBody{ContentType: "text", Content: msg.Body},
		ToRecipients:  recipients(to),
		CcRecipients:  recipients(cc),
		BccRecipients: recipients(bcc),
		Attachments:   attachments,
	}
	if msg.MessageID != "" {
		m.InternetMessageHeaders = []messageHeader{{Name: "X-Original-Message-ID", Value: msg.MessageID}}
	}

	return &sendMailRequest{Message: m}
}

func recipients(addrs []string) []recipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]recipient, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, recipient{EmailAddress: emailAddress{Address: addr}})
	}
	return out
}
