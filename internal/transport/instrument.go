package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/shineum/email-sender/internal/email"
)

// Instrument wraps t so every send is counted and timed in the default
// VictoriaMetrics set.
func Instrument(t Transport) Transport {
	return &instrumented{next: t}
}

type instrumented struct {
	next Transport
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Send(ctx context.Context, msg *email.Message, from string, to []string) error {
	start := time.Now()
	err := i.next.Send(ctx, msg, from, to)

	name := i.next.Name()
	metrics.GetOrCreateSummary(fmt.Sprintf(`email_sender_send_duration_seconds{transport=%q}`, name)).UpdateDuration(start)

	status := "ok"
	if err != nil {
		status = string(email.TransportErrorKindOf(err))
		if status == "" {
			status = "error"
		}
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`email_sender_sends_total{transport=%q,status=%q}`, name, status)).Inc()
	metrics.GetOrCreateCounter(fmt.Sprintf(`email_sender_recipients_total{transport=%q}`, name)).Add(len(to))

	return err
}
