// Package ses implements a Transport that sends messages via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/shineum/email-sender/internal/compose"
	"github.com/shineum/email-sender/internal/email"
)

// Config holds the configuration for creating a Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender overrides the envelope sender when set. It must be a verified
	// SES identity.
	Sender string
}

// Transport sends raw MIME messages via the AWS SES v2 API.
type Transport struct {
	sender string
	client SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new Transport with the given configuration.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Transport{
		sender: cfg.Sender,
		client: sesv2.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *Transport {
	return &Transport{
		sender: sender,
		client: client,
	}
}

// Send delivers msg as a raw MIME message to exactly the given recipients.
func (s *Transport) Send(ctx context.Context, msg *email.Message, from string, to []string) error {
	raw, err := compose.Bytes(msg)
	if err != nil {
		return email.NewTransportError(s.Name(), email.KindRejectedMessage, fmt.Errorf("failed to build raw message: %w", err))
	}

	sender := s.sender
	if sender == "" {
		sender = from
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: to,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: raw,
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return email.NewTransportError(s.Name(), classify(err), err)
	}

	slog.Debug("SES accepted message",
		"message_id", aws.ToString(out.MessageId),
		"recipients", len(to),
	)
	return nil
}

// Name returns the transport name.
func (s *Transport) Name() string {
	return "ses"
}

// classify maps SES API failures onto transport error kinds.
func classify(err error) email.TransportErrorKind {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "MessageRejected", "MailFromDomainNotVerifiedException", "BadRequestException":
			return email.KindRejectedMessage
		case "AccountSuspendedException", "SendingPausedException", "NotFoundException",
			"AccessDeniedException", "UnrecognizedClientException", "InvalidClientTokenId":
			return email.KindAuthentication
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return email.KindAuthentication
		case code >= 400 && code < 500:
			return email.KindRejectedMessage
		}
	}

	return email.KindConnection
}
