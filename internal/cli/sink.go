package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shineum/email-sender/internal/report"
	"github.com/shineum/email-sender/internal/sink"
	"github.com/shineum/email-sender/internal/tls"
)

type sinkOptions struct {
	listen        string
	metricsListen string
}

func newSinkCommand(root *options) *cobra.Command {
	opts := &sinkOptions{}

	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a capture SMTP server that prints every message it receives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSink(cmd.Context(), cmd, root, opts, nil)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "address to listen on (default :2525)")
	cmd.Flags().StringVar(&opts.metricsListen, "metrics-listen", "", "address serving /metrics (disabled when empty)")

	return cmd
}

// runSink serves until ctx is cancelled. ready, when set, receives the
// bound SMTP address.
func runSink(ctx context.Context, cmd *cobra.Command, root *options, opts *sinkOptions, ready chan<- string) error {
	cfg, err := loadConfig(root.configPath, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}

	listen := cfg.Sink.Listen
	if opts.listen != "" {
		listen = opts.listen
	}
	metricsListen := cfg.Metrics.Listen
	if opts.metricsListen != "" {
		metricsListen = opts.metricsListen
	}

	sc := sink.Config{
		ListenAddr:     listen,
		Domain:         cfg.Sink.Domain,
		Username:       cfg.Sink.Username,
		Password:       cfg.Sink.Password,
		MaxMessageSize: cfg.Sink.MaxMessageSize,
	}
	if cfg.Sink.StartTLS {
		sc.TLSConfig, err = tls.ServerConfig(cfg.Sink.CertFile, cfg.Sink.KeyFile, cfg.Sink.Domain)
		if err != nil {
			return fmt.Errorf("failed to setup TLS: %w", err)
		}
	}

	srv := sink.New(sc, printEnvelope(cmd.OutOrStdout()))

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	if ready != nil {
		ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(gctx, ln); err != nil {
			return fmt.Errorf("sink failed: %w", err)
		}
		return nil
	})

	if metricsListen != "" {
		g.Go(func() error {
			if err := serveMetrics(gctx, metricsListen); err != nil {
				return fmt.Errorf("metrics listener failed: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// printEnvelope reports each captured message followed by a blank line.
func printEnvelope(w io.Writer) sink.Handler {
	var mu sync.Mutex
	return func(env sink.Envelope) {
		mu.Lock()
		defer mu.Unlock()

		if err := report.Message(w, env.From, env.To, env.Message); err != nil {
			slog.Error("failed to print message", "error", err)
			return
		}
		fmt.Fprintln(w)
	}
}

// serveMetrics serves /metrics on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	slog.Info("metrics listening", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
