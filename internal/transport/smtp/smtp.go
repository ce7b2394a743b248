// Package smtp implements a Transport that delivers messages to an SMTP
// server in a single session.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/shineum/email-sender/internal/compose"
	"github.com/shineum/email-sender/internal/email"
	tlsconf "github.com/shineum/email-sender/internal/tls"
)

// Mode selects how the connection is secured.
type Mode string

const (
	// ModeNone never negotiates TLS.
	ModeNone Mode = "none"
	// ModeOpportunistic upgrades with STARTTLS when the server offers it.
	ModeOpportunistic Mode = "opportunistic"
	// ModeStartTLS requires a STARTTLS upgrade.
	ModeStartTLS Mode = "starttls"
	// ModeImplicit speaks TLS from the first byte.
	ModeImplicit Mode = "implicit"
)

// DefaultTimeout bounds dialing and each SMTP command.
const DefaultTimeout = 30 * time.Second

// ParseMode parses a TLS mode name. The empty string means opportunistic.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeOpportunistic, nil
	case ModeNone, ModeOpportunistic, ModeStartTLS, ModeImplicit:
		return m, nil
	default:
		return "", fmt.Errorf("unknown TLS mode %q", s)
	}
}

// Config holds the configuration for creating a Transport.
type Config struct {
	Host string
	Port int

	// Username and Password enable AUTH PLAIN when both are set.
	Username string
	Password string

	TLS                Mode
	InsecureSkipVerify bool

	// Helo is the name announced in EHLO. Defaults to "localhost".
	Helo string

	Timeout time.Duration

	// Debug receives the raw protocol exchange when set.
	Debug io.Writer
}

// Transport delivers messages to one SMTP server.
type Transport struct {
	cfg Config
}

// New creates a new Transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.TLS == "" {
		cfg.TLS = ModeOpportunistic
	}
	if cfg.Helo == "" {
		cfg.Helo = "localhost"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Transport{cfg: cfg}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Send delivers msg to every address in to with the envelope sender from.
// Any rejected recipient aborts the transaction.
func (t *Transport) Send(ctx context.Context, msg *email.Message, from string, to []string) error {
	raw, err := compose.Bytes(msg)
	if err != nil {
		return email.NewTransportError(t.Name(), email.KindRejectedMessage, err)
	}

	c, conn, err := t.dial(ctx)
	if err != nil {
		return email.NewTransportError(t.Name(), email.KindConnection, err)
	}
	defer c.Close()

	// Cancellation interrupts whatever command is in flight.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := t.hello(c); err != nil {
		return t.fail(ctx, email.KindConnection, err)
	}

	if t.cfg.Username != "" && t.cfg.Password != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return email.NewTransportError(t.Name(), email.KindAuthentication, errors.New("server does not support AUTH"))
		}
		if err := c.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			return t.fail(ctx, email.KindAuthentication, err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return t.fail(ctx, email.KindRejectedMessage, err)
	}

	for _, rcpt := range to {
		if err := c.Rcpt(rcpt, nil); err != nil {
			terr := t.fail(ctx, email.KindRejectedRecipient, err)
			if terr.Kind == email.KindRejectedRecipient {
				terr.Recipient = rcpt
			}
			return terr
		}
	}

	w, err := c.Data()
	if err != nil {
		return t.fail(ctx, email.KindRejectedMessage, err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return t.fail(ctx, email.KindConnection, err)
	}
	if err := w.Close(); err != nil {
		return t.fail(ctx, email.KindRejectedMessage, err)
	}

	if err := c.Quit(); err != nil {
		// The message was accepted already.
		slog.Debug("SMTP QUIT failed", "error", err)
	}

	slog.Debug("SMTP server accepted message",
		"server", t.addr(),
		"recipients", len(to),
	)
	return nil
}

func (t *Transport) addr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

// dial opens the connection, completing the TLS handshake in implicit mode.
func (t *Transport) dial(ctx context.Context) (*smtp.Client, net.Conn, error) {
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr())
	if err != nil {
		return nil, nil, err
	}

	if t.cfg.TLS == ModeImplicit {
		tlsConn := tls.Client(conn, t.tlsConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		conn = tlsConn
	}

	c := smtp.NewClient(conn)
	c.CommandTimeout = t.cfg.Timeout
	c.SubmissionTimeout = t.cfg.Timeout
	if t.cfg.Debug != nil {
		c.DebugWriter = t.cfg.Debug
	}

	return c, conn, nil
}

// hello greets the server and upgrades the connection as the mode asks.
func (t *Transport) hello(c *smtp.Client) error {
	if err := c.Hello(t.cfg.Helo); err != nil {
		return err
	}

	switch t.cfg.TLS {
	case ModeOpportunistic, ModeStartTLS:
		if ok, _ := c.Extension("STARTTLS"); ok {
			return c.StartTLS(t.tlsConfig())
		}
		if t.cfg.TLS == ModeStartTLS {
			return errors.New("server does not support STARTTLS")
		}
	}
	return nil
}

func (t *Transport) tlsConfig() *tls.Config {
	return tlsconf.ClientConfig(t.cfg.Host, t.cfg.InsecureSkipVerify)
}

// fail wraps err into a TransportError. Failures that are not SMTP replies
// are connection errors; 530 and 535 style replies are authentication errors.
func (t *Transport) fail(ctx context.Context, kind email.TransportErrorKind, err error) *email.TransportError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return email.NewTransportError(t.Name(), email.KindConnection, fmt.Errorf("%w: %v", ctxErr, err))
	}

	var smtpErr *smtp.SMTPError
	switch {
	case !errors.As(err, &smtpErr):
		kind = email.KindConnection
	case smtpErr.Code == 530 || smtpErr.Code == 534 || smtpErr.Code == 535 || smtpErr.Code == 538:
		kind = email.KindAuthentication
	case smtpErr.Code == 421:
		kind = email.KindConnection
	}
	return email.NewTransportError(t.Name(), kind, err)
}
