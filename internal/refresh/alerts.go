package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// RunAlerts evaluates the most recent observation of every product and emits
// triggered decisions that were not emitted before. Decisions depend only on
// the stored observations, so repeated runs over the same data agree.
func (s *Scheduler) RunAlerts(ctx context.Context) (*BatchSummary, error) {
	summary := newSummary(KindAlerts, s.now())
	log := s.logger.With().Str("run_id", summary.RunID).Str("batch", "alerts").Logger()

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		summary.FinishedAt = s.now()
		return summary, fmt.Errorf("failed to list products: %w", err)
	}
	summary.Selected = len(products)
	log.Info().Int("products", len(products)).Msg("alert evaluation started")

	outcomes := make([]Outcome, 0, len(products))
	for _, p := range products {
		if ctx.Err() != nil {
			outcomes = append(outcomes, cancelledOutcome(p, 0))
			continue
		}
		outcomes = append(outcomes, s.evaluateProduct(ctx, log, p, summary.StartedAt))
	}

	s.flush(ctx, log)

	summary.collect(outcomes)
	summary.FinishedAt = s.now()
	logSummary(log, summary)
	return summary, nil
}

func (s *Scheduler) evaluateProduct(ctx context.Context, batchLog zerolog.Logger, p tracking.TrackedProduct, now time.Time) Outcome {
	log := batchLog.With().Str("product_id", p.ID).Logger()
	out := Outcome{ProductID: p.ID, URL: p.URL}
	window := s.evaluator.Window()

	recent, err := s.store.ListObservations(ctx, p.ID, now.Add(-window))
	if err != nil {
		return hardFailure(log, out, fmt.Errorf("failed to list observations: %w", err))
	}
	if len(recent) == 0 {
		out.Status = StatusSkipped
		out.Reason = "no_recent_observations"
		return out
	}

	// the baseline window is anchored on the observation, not on the clock
	current := recent[len(recent)-1]
	history, err := s.store.ListObservations(ctx, p.ID, current.ObservedAt.Add(-window))
	if err != nil {
		return hardFailure(log, out, fmt.Errorf("failed to list observations: %w", err))
	}

	decision := s.evaluator.Evaluate(p, current, history)
	price := current.Price
	out.Status = StatusSucceeded
	out.Price = &price
	out.Currency = current.Currency
	out.Decision = &decision

	if decision.Triggered {
		out.Emitted = s.emit(ctx, log, decision, p.Recipient)
	}
	return out
}
