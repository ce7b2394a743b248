// Package sink implements a capture SMTP server that accepts messages and
// hands them to a callback instead of relaying them.
package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/shineum/email-sender/internal/email"
)

const (
	// shutdownTimeout bounds the wait for in-flight sessions.
	shutdownTimeout = 30 * time.Second

	// idleTimeout closes connections that stop talking.
	idleTimeout = 60 * time.Second

	// DefaultMaxMessageSize is used when Config.MaxMessageSize is zero.
	DefaultMaxMessageSize = 10 * 1024 * 1024
)

// Config holds the configuration for a sink Server.
type Config struct {
	// ListenAddr is the address to listen on (e.g. ":2525").
	ListenAddr string

	// Domain is the server name used in the greeting and EHLO responses.
	Domain string

	// TLSConfig enables STARTTLS when set.
	TLSConfig *tls.Config

	// Username and Password require SMTP AUTH when both are set.
	Username string
	Password string

	MaxMessageSize int64
}

// Envelope is one accepted message.
type Envelope struct {
	From    string
	To      []string
	Raw     []byte
	Message *email.Message
}

// Handler receives accepted messages. It is called from the session
// goroutine, so it must be safe for concurrent use.
type Handler func(Envelope)

// Server is an SMTP server that passes every accepted message to a Handler.
type Server struct {
	config Config
	auth   *Authenticator
	smtp   *smtp.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new sink Server.
func New(cfg Config, handler Handler) *Server {
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	auth := NewAuthenticator(cfg.Username, cfg.Password)

	srv := smtp.NewServer(&backend{auth: auth, handler: handler})
	srv.Addr = cfg.ListenAddr
	srv.Domain = cfg.Domain
	srv.TLSConfig = cfg.TLSConfig
	srv.MaxMessageBytes = cfg.MaxMessageSize
	srv.ReadTimeout = idleTimeout
	srv.WriteTimeout = idleTimeout
	// Local capture: accept credentials without TLS as well.
	srv.AllowInsecureAuth = true

	return &Server{
		config: cfg,
		auth:   auth,
		smtp:   srv,
	}
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then waits up to
// 30 seconds for in-flight sessions to complete.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	slog.Info("sink listening",
		"addr", ln.Addr().String(),
		"domain", s.config.Domain,
		"auth_enabled", s.auth.Enabled(),
		"tls_enabled", s.config.TLSConfig != nil,
	)

	shutdownDone := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(shutdownDone)
		slog.Info("shutting down sink")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.smtp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown timeout reached, forcing close", "error", err)
			s.smtp.Close()
		} else {
			slog.Info("all sessions completed")
		}
		// Serve may not have registered ln yet.
		ln.Close()
	})

	err := s.smtp.Serve(ln)
	if stop() {
		return err
	}

	<-shutdownDone
	if errors.Is(err, smtp.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
