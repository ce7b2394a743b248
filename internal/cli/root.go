// Package cli implements the email-sender command tree.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shineum/email-sender/internal/config"
	"github.com/shineum/email-sender/internal/logging"
	"github.com/shineum/email-sender/internal/request"
)

// Version is the release version, set at build time with
// -ldflags "-X github.com/shineum/email-sender/internal/cli.Version=...".
var Version = "dev"

// options holds values shared by the command tree.
type options struct {
	configPath string
	transport  string
	dryRun     bool
	fields     request.Fields
}

// NewRootCommand builds the command tree. The root command sends one
// message; subcommands run the capture sink and print the version.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "email-sender",
		Short: "Send a test email assembled from partial addressing",
		Long: `email-sender resolves envelope and header addressing from whatever is
supplied, tags the subject with a random 5-character id, and hands the
message to a transport.

Example:
  email-sender -d mail.example.com -F "Ann <ann@example.com>" -T bo@example.com -u "hello"
  email-sender --dry-run -d localhost -f ann@example.com -t bo@example.com -a report.pdf
  email-sender sink --listen :2525`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd.Context(), cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML configuration file (optional)")

	f := cmd.Flags()
	f.StringVarP(&opts.fields.Host, "host", "d", "", "destination IP/host")
	f.IntVarP(&opts.fields.Port, "port", "p", 0, "destination port (default 587)")
	f.StringVarP(&opts.fields.EnvelopeFrom, "envelope-from", "f", "", `envelope "from" address`)
	f.StringVarP(&opts.fields.HeaderFrom, "header-from", "F", "", `header "from" address`)
	f.StringVarP(&opts.fields.EnvelopeTo, "envelope-to", "t", "", `envelope "to" addresses, comma-delimited`)
	f.StringVarP(&opts.fields.HeaderTo, "header-to", "T", "", `header "to" addresses, comma-delimited`)
	f.StringVarP(&opts.fields.HeaderCc, "cc", "c", "", `header "cc" addresses, comma-delimited`)
	f.StringVarP(&opts.fields.Bcc, "bcc", "B", "", "blind copy addresses, comma-delimited")
	f.StringVarP(&opts.fields.Subject, "subject", "u", "", "subject text")
	f.StringVarP(&opts.fields.Body, "body", "b", "", "body text")
	f.StringVarP(&opts.fields.Attachments, "attach", "a", "", "attachment paths, comma-delimited")
	f.BoolVarP(&opts.fields.Verbose, "verbose", "v", false, "enable verbose output")
	f.StringVar(&opts.transport, "transport", "", "transport: smtp, ses, graph, resend or stdout")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the message instead of sending it")

	cmd.AddCommand(newSinkCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute runs the command tree with the given arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// loadConfig reads the file at path, or only the environment when path is
// empty, and installs the configured logger on w.
func loadConfig(path string, w io.Writer, verbose bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logging.Setup(w, level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "path", path, "transport", cfg.Transport)

	return cfg, nil
}
