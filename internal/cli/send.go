package cli

import (
	"context"
	"fmt"
	"log/slog"

	"dario.cat/mergo"
	"github.com/spf13/cobra"

	"github.com/shineum/email-sender/internal/compose"
	"github.com/shineum/email-sender/internal/config"
	"github.com/shineum/email-sender/internal/report"
	"github.com/shineum/email-sender/internal/request"
	"github.com/shineum/email-sender/internal/transport"
)

// runSend builds the request, prints it, and delivers the message. Every
// validation step runs before a transport is created.
func runSend(ctx context.Context, cmd *cobra.Command, opts *options) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	cfg, err := loadConfig(opts.configPath, stderr, opts.fields.Verbose)
	if err != nil {
		return err
	}
	if opts.transport != "" {
		cfg.Transport = opts.transport
	}
	if opts.dryRun {
		cfg.Transport = config.TransportStdout
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fields, err := mergeDefaults(opts.fields, cfg.Defaults)
	if err != nil {
		return err
	}

	req, err := request.Builder{Aliases: cfg.Aliases}.Build(fields)
	if err != nil {
		return err
	}

	if err := report.Request(stdout, req); err != nil {
		return err
	}
	if req.Verbose {
		fmt.Fprintln(stdout)
	}

	msg := compose.Assemble(req)

	t, err := newTransport(ctx, cfg, req, stdout, stderr)
	if err != nil {
		return err
	}
	t = transport.Instrument(t)

	rcpts := req.Recipients()
	sendErr := t.Send(ctx, msg, req.EnvelopeFrom, rcpts)

	if cfg.Metrics.PushURL != "" {
		if err := pushMetrics(ctx, cfg.Metrics.PushURL); err != nil {
			slog.Warn("failed to push metrics", "url", cfg.Metrics.PushURL, "error", err)
		}
	}

	if sendErr != nil {
		return sendErr
	}

	slog.Info("message sent",
		"transport", t.Name(),
		"message_id", msg.MessageID,
		"recipients", len(rcpts),
		"tag", req.Tag,
	)
	return nil
}

// mergeDefaults fills every field the command line left empty from the
// configured defaults.
func mergeDefaults(fields, defaults request.Fields) (request.Fields, error) {
	if err := mergo.Merge(&fields, defaults); err != nil {
		return fields, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return fields, nil
}
