package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/maxatome/go-testdeep/td"

	"github.com/shineum/email-sender/internal/email"
	"github.com/shineum/email-sender/internal/request"
	"github.com/shineum/email-sender/internal/sink"
	"github.com/shineum/email-sender/internal/transport/smtp"
)

var envVars = []string{
	"TRANSPORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_TLS",
	"SES_REGION", "SES_ACCESS_KEY_ID", "SES_SECRET_ACCESS_KEY", "SES_SENDER",
	"GRAPH_TENANT_ID", "GRAPH_CLIENT_ID", "GRAPH_CLIENT_SECRET", "GRAPH_SENDER",
	"RESEND_API_KEY", "SINK_LISTEN", "SINK_USERNAME", "SINK_PASSWORD",
	"SINK_MAX_MESSAGE_SIZE", "METRICS_PUSH_URL", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envVars {
		t.Setenv(env, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	td.Require(t).CmpNoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSend_DryRun(t *testing.T) {
	clearEnv(t)

	out, err := run(t, "--dry-run",
		"-d", "mail.example.com",
		"-F", "Ann <ann@x.com>",
		"-T", "Bo <bo@y.com>",
		"-B", "audit@z.com",
		"-u", "Monthly Report",
		"-b", "Please find the report attached.",
	)
	td.Require(t).CmpNoError(err)

	td.Cmp(t, out, td.All(
		td.Contains("host:          mail.example.com\n"),
		td.Contains("port:          587\n"),
		td.Contains("envelope from: ann@x.com\n"),
		td.Contains("header from:   Ann <ann@x.com>\n"),
		td.Contains("envelope to:   bo@y.com\n"),
		td.Contains("bcc:           audit@z.com\n"),
		td.Re(`subject:       Monthly Report [0-9A-Za-z]{5}\n`),
		td.Contains("MAIL FROM:<ann@x.com>\n"),
		td.Contains("RCPT TO:<bo@y.com>\n"),
		td.Contains("RCPT TO:<audit@z.com>\n"),
		td.Contains("From: Ann <ann@x.com>\n"),
		td.Contains("To: Bo <bo@y.com>\n"),
		td.Re(`Message-ID: <[0-9a-v]{20}@x\.com>\n`),
	))
	td.Cmp(t, strings.Count(out, "audit@z.com"), 2, "bcc only in the report and the envelope")
}

func TestSend_VerboseAddsBlankLine(t *testing.T) {
	clearEnv(t)

	out, err := run(t, "--dry-run", "-v", "-d", "h", "-f", "a@x.com", "-t", "b@y.com")
	td.Require(t).CmpNoError(err)
	td.Cmp(t, out, td.Re(`(?s)^host: .*subject: +[0-9A-Za-z]{5}\n\n=`))
}

func TestSend_ValidationStopsBeforeTransport(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing recipients", []string{"-d", "h", "-f", "a@x.com"}, email.ErrMissingAddress},
		{"missing sender", []string{"-d", "h", "-t", "b@y.com"}, email.ErrMissingAddress},
		{"missing host", []string{"-f", "a@x.com", "-t", "b@y.com"}, email.ErrMissingHost},
		{"bad port", []string{"-d", "h", "-p", "70000", "-f", "a@x.com", "-t", "b@y.com"}, email.ErrInvalidPort},
		{"missing attachment", []string{"-d", "h", "-f", "a@x.com", "-t", "b@y.com", "-a", "/nonexistent/file.pdf"}, email.ErrAttachmentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"--dry-run"}, tt.args...)...)
			td.Cmp(t, errors.Is(err, tt.want), true, "got %v", err)
			td.Cmp(t, out, "", "nothing is printed or sent")
		})
	}
}

func TestSend_DefaultsAndAliases(t *testing.T) {
	clearEnv(t)

	cfgPath := writeConfig(t, `
defaults:
  host: relay.example.com
  port: 2525
  envelope_from: me
  subject: nightly
aliases:
  me: ops@example.com
  team: dev@example.com
`)

	out, err := run(t, "--config", cfgPath, "--dry-run", "-t", "team, qa@example.com", "-u", "override")
	td.Require(t).CmpNoError(err)

	td.Cmp(t, out, td.All(
		td.Contains("host:          relay.example.com\n"),
		td.Contains("port:          2525\n"),
		td.Contains("envelope from: ops@example.com\n"),
		td.Contains("envelope to:   dev@example.com, qa@example.com\n"),
		td.Re(`subject:       override [0-9A-Za-z]{5}\n`),
	))
}

func TestSend_UnknownTransport(t *testing.T) {
	clearEnv(t)

	_, err := run(t, "--transport", "pigeon", "-d", "h", "-f", "a@x.com", "-t", "b@y.com")
	td.Cmp(t, err, td.Contains(`unknown transport "pigeon"`))
}

func startSink(t *testing.T) (int, <-chan sink.Envelope) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	td.Require(t).CmpNoError(err)

	received := make(chan sink.Envelope, 1)
	srv := sink.New(sink.Config{}, func(env sink.Envelope) { received <- env })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return ln.Addr().(*net.TCPAddr).Port, received
}

func TestSend_SMTPToSink(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_TLS", string(smtp.ModeNone))

	port, received := startSink(t)

	attachment := filepath.Join(t.TempDir(), "report.pdf")
	td.Require(t).CmpNoError(os.WriteFile(attachment, []byte("%PDF-1.4"), 0o600))

	_, err := run(t,
		"-d", "127.0.0.1",
		"-p", strconv.Itoa(port),
		"-F", "Ann <ann@x.com>",
		"-T", "Bo <bo@y.com>",
		"-c", "cy@y.com",
		"-B", "hidden@z.com",
		"-u", "quarterly",
		"-b", "numbers inside",
		"-a", attachment,
	)
	td.Require(t).CmpNoError(err)

	var env sink.Envelope
	select {
	case env = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	td.Cmp(t, env.From, "ann@x.com")
	td.Cmp(t, env.To, []string{"bo@y.com", "cy@y.com", "hidden@z.com"})
	td.Cmp(t, env.Message, td.Struct(&email.Message{
		From: "Ann <ann@x.com>",
		To:   "Bo <bo@y.com>",
		Cc:   "cy@y.com",
	}, td.StructFields{
		"Subject":     td.Re(`^quarterly [0-9A-Za-z]{5}$`),
		"Body":        td.HasPrefix("numbers inside"),
		"MessageID":   td.Re(`@x\.com>$`),
		"Attachments": td.Len(1),
	}))
	td.Cmp(t, env.Message.Attachments[0].ContentType(), "application/pdf")
	td.Cmp(t, string(env.Raw), td.Not(td.Contains("hidden@z.com")))
}

func TestSend_TransportErrorIsSurfaced(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_TLS", string(smtp.ModeNone))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	td.Require(t).CmpNoError(err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = run(t, "-d", "127.0.0.1", "-p", strconv.Itoa(port), "-f", "a@x.com", "-t", "b@y.com")
	td.Cmp(t, errors.Is(err, email.ErrTransport), true)
	td.Cmp(t, email.TransportErrorKindOf(err), email.KindConnection)
}

func TestSinkCommand(t *testing.T) {
	clearEnv(t)

	cmd := newSinkCommand(&options{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- runSink(ctx, cmd, &options{}, &sinkOptions{listen: "127.0.0.1:0"}, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("sink exited early: %v", err)
	}

	host, portStr, err := net.SplitHostPort(addr)
	td.Require(t).CmpNoError(err)
	port, _ := strconv.Atoi(portStr)

	tr := smtp.New(smtp.Config{Host: host, Port: port, TLS: smtp.ModeNone})
	err = tr.Send(context.Background(), &email.Message{
		From:    "Ann <ann@x.com>",
		To:      "bo@y.com",
		Subject: "captured abc12",
		Body:    "hello",
	}, "ann@x.com", []string{"bo@y.com"})
	td.Require(t).CmpNoError(err)

	cancel()
	select {
	case err := <-done:
		td.CmpNoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sink did not shut down")
	}

	td.Cmp(t, out.String(), td.All(
		td.Contains("envelope from: ann@x.com\n"),
		td.Contains("envelope to:   bo@y.com\n"),
		td.Contains("subject:       captured abc12\n"),
	))
}

func TestVersion(t *testing.T) {
	clearEnv(t)

	out, err := run(t, "version")
	td.Require(t).CmpNoError(err)
	td.Cmp(t, out, "email-sender dev\n")
}

func TestMergeDefaults(t *testing.T) {
	t.Parallel()

	got, err := mergeDefaults(
		requestFields("cli-host", 0, "cli subject"),
		requestFields("default-host", 2525, "default subject"),
	)
	td.Require(t).CmpNoError(err)
	td.Cmp(t, got, requestFields("cli-host", 2525, "cli subject"))
}

func requestFields(host string, port int, subject string) request.Fields {
	return request.Fields{Host: host, Port: port, Subject: subject}
}
