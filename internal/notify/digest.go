// Package notify delivers alert decisions to recipients.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marcosevegrand/dealpulse/internal/formatter"
	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// Digest is the rendered alert message for one recipient
type Digest struct {
	Recipient string                   `json:"recipient"`
	Subject   string                   `json:"subject"`
	Text      string                   `json:"text"`
	HTML      string                   `json:"html"`
	Decisions []tracking.AlertDecision `json:"decisions"`
	CreatedAt time.Time                `json:"created_at"`
}

// NewDigest renders decisions for recipient
func NewDigest(recipient string, decisions []tracking.AlertDecision, now time.Time) Digest {
	return Digest{
		Recipient: recipient,
		Subject:   formatter.DigestSubject(len(decisions)),
		Text:      formatter.DigestText(decisions),
		HTML:      formatter.DigestHTML(decisions),
		Decisions: decisions,
		CreatedAt: now,
	}
}

// Sink hands a rendered digest to a delivery channel
type Sink interface {
	Send(ctx context.Context, digest Digest) error
}

// DigestNotifier buffers triggered decisions and sends one digest per
// recipient on Flush.
type DigestNotifier struct {
	sink Sink
	now  func() time.Time

	mu      sync.Mutex
	pending map[string][]tracking.AlertDecision
	order   []string
}

// NewDigestNotifier creates a buffering notifier on top of sink
func NewDigestNotifier(sink Sink, now func() time.Time) *DigestNotifier {
	if now == nil {
		now = time.Now
	}
	return &DigestNotifier{
		sink:    sink,
		now:     now,
		pending: make(map[string][]tracking.AlertDecision),
	}
}

func (n *DigestNotifier) Emit(_ context.Context, decision tracking.AlertDecision, recipient string) error {
	if !decision.Triggered {
		return fmt.Errorf("decision for %s is not triggered", decision.ProductID)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.pending[recipient]; !ok {
		n.order = append(n.order, recipient)
	}
	n.pending[recipient] = append(n.pending[recipient], decision)
	return nil
}

// Flush sends every buffered digest. Recipients whose digest fails are
// dropped from the buffer as well; the errors are joined.
func (n *DigestNotifier) Flush(ctx context.Context) error {
	n.mu.Lock()
	pending, order := n.pending, n.order
	n.pending = make(map[string][]tracking.AlertDecision)
	n.order = nil
	n.mu.Unlock()

	var errs []error
	for _, recipient := range order {
		digest := NewDigest(recipient, pending[recipient], n.now())
		if err := n.sink.Send(ctx, digest); err != nil {
			errs = append(errs, fmt.Errorf("send digest to %q: %w", recipient, err))
		}
	}
	return errors.Join(errs...)
}

// Pending returns the number of buffered decisions
func (n *DigestNotifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	for _, d := range n.pending {
		total += len(d)
	}
	return total
}
