package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/shineum/email-sender/internal/config"
	"github.com/shineum/email-sender/internal/email"
	"github.com/shineum/email-sender/internal/transport"
	"github.com/shineum/email-sender/internal/transport/graph"
	"github.com/shineum/email-sender/internal/transport/resend"
	"github.com/shineum/email-sender/internal/transport/ses"
	"github.com/shineum/email-sender/internal/transport/smtp"
	"github.com/shineum/email-sender/internal/transport/stdout"
)

// newTransport creates the configured transport. The SMTP transport talks to
// the destination named in the request.
func newTransport(ctx context.Context, cfg *config.Config, req *email.Request, out, trace io.Writer) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		mode, err := smtp.ParseMode(cfg.SMTP.TLS)
		if err != nil {
			return nil, err
		}
		sc := smtp.Config{
			Host:               req.DestinationHost,
			Port:               req.DestinationPort,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			TLS:                mode,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			Helo:               cfg.SMTP.Helo,
			Timeout:            cfg.SMTP.Timeout,
		}
		if req.Verbose {
			sc.Debug = trace
		}
		return smtp.New(sc), nil

	case config.TransportSES:
		t, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES transport: %w", err)
		}
		return t, nil

	case config.TransportGraph:
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case config.TransportResend:
		return resend.New(cfg.Resend.APIKey), nil

	case config.TransportStdout:
		return stdout.NewWithWriter(out), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
