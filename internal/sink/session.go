package sink

import (
	"io"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/shineum/email-sender/internal/parser"
)

var (
	messagesReceived   = metrics.NewCounter("email_sink_messages_total")
	recipientsReceived = metrics.NewCounter("email_sink_recipients_total")
	authFailures       = metrics.NewCounter("email_sink_auth_failures_total")
	parseFailures      = metrics.NewCounter("email_sink_parse_failures_total")
)

// backend creates one session per SMTP connection.
type backend struct {
	auth    *Authenticator
	handler Handler
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{
		backend: b,
		remote:  c.Conn().RemoteAddr().String(),
	}, nil
}

// session holds the state of a single mail transaction.
type session struct {
	backend *backend
	remote  string

	user     string
	mailFrom string
	rcptTo   []string
}

var _ smtp.AuthSession = (*session)(nil)

func (s *session) AuthMechanisms() []string {
	if !s.backend.auth.Enabled() {
		return nil
	}
	return s.backend.auth.Mechanisms()
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	srv, err := s.backend.auth.Server(mech, func(username string) {
		s.user = username
		slog.Debug("client authenticated", "remote", s.remote, "user", username)
	})
	if err != nil {
		return nil, err
	}
	return &countingServer{Server: srv}, nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.backend.auth.Enabled() && s.user == "" {
		return smtp.ErrAuthRequired
	}
	s.mailFrom = from
	s.rcptTo = nil
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.rcptTo = append(s.rcptTo, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	// The SMTP layer has already undone dot-stuffing.
	msg, err := parser.Parse(raw)
	if err != nil {
		parseFailures.Inc()
		slog.Error("failed to parse message", "remote", s.remote, "error", err)
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Failed to process message",
		}
	}

	messagesReceived.Inc()
	recipientsReceived.Add(len(s.rcptTo))

	slog.Info("message received",
		"remote", s.remote,
		"from", s.mailFrom,
		"recipients", len(s.rcptTo),
		"size", len(raw),
	)

	s.backend.handler(Envelope{
		From:    s.mailFrom,
		To:      append([]string(nil), s.rcptTo...),
		Raw:     raw,
		Message: msg,
	})

	return nil
}

func (s *session) Reset() {
	s.mailFrom = ""
	s.rcptTo = nil
}

func (s *session) Logout() error {
	return nil
}

// countingServer records failed authentication exchanges.
type countingServer struct {
	sasl.Server
}

func (c *countingServer) Next(response []byte) ([]byte, bool, error) {
	challenge, done, err := c.Server.Next(response)
	if err != nil {
		authFailures.Inc()
	}
	return challenge, done, err
}
