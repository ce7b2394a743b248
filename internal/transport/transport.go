// Package transport defines the interface for message delivery backends.
package transport

import (
	"context"
	"slices"

	"github.com/shineum/email-sender/internal/address"
	"github.com/shineum/email-sender/internal/email"
)

// Transport delivers an assembled message to the given envelope recipients.
// Failures are reported as *email.TransportError and must be surfaced by the
// caller.
type Transport interface {
	// Send delivers msg with the given envelope sender and recipients.
	Send(ctx context.Context, msg *email.Message, from string, to []string) error

	// Name returns the human-readable name of this transport.
	Name() string
}

// Recipients splits the envelope recipients of an API-based send into the
// header To and Cc addresses and the remaining addresses, which are delivered
// as blind copies. Used by transports that take recipients per header role
// instead of a raw envelope.
func Recipients(msg *email.Message, rcpts []string) (to, cc, bcc []string) {
	to = address.ParseList(msg.To)
	cc = address.ParseList(msg.Cc)

	for _, r := range rcpts {
		if slices.Contains(to, r) || slices.Contains(cc, r) || slices.Contains(bcc, r) {
			continue
		}
		bcc = append(bcc, r)
	}

	// Header recipients that are not envelope recipients were deliberately
	// left out of delivery.
	to = slices.DeleteFunc(to, func(a string) bool { return !slices.Contains(rcpts, a) })
	cc = slices.DeleteFunc(cc, func(a string) bool { return !slices.Contains(rcpts, a) })

	return to, cc, bcc
}
