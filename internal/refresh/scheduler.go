// Package refresh runs the price refresh and alert batches.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/marcosevegrand/dealpulse/internal/alert"
	"github.com/marcosevegrand/dealpulse/internal/extractor"
	"github.com/marcosevegrand/dealpulse/internal/scraper"
	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// Fetcher retrieves one page. Implementations must not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*scraper.Page, error)
}

// Resolver turns a page into product data
type Resolver interface {
	Resolve(url string, page []byte) (*extractor.ProductInfo, error)
}

// Config holds the batch settings
type Config struct {
	StaleAfter     time.Duration
	Concurrency    int
	FetchTimeout   time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	JitterFraction float64
}

// DefaultConfig returns the default batch settings
func DefaultConfig() Config {
	return Config{
		StaleAfter:     23 * time.Hour,
		Concurrency:    4,
		FetchTimeout:   scraper.DefaultTimeout,
		MaxRetries:     3,
		BackoffBase:    time.Second,
		BackoffMax:     30 * time.Second,
		JitterFraction: 0.2,
	}
}

// Deps are the collaborators a Scheduler is built from. Now, Sleep and Rand
// default to the real clock, a context-aware timer and math/rand.
type Deps struct {
	Store     tracking.Store
	Fetcher   Fetcher
	Resolver  Resolver
	Evaluator *alert.Evaluator
	Notifier  tracking.Notifier
	Marker    tracking.Marker
	Logger    zerolog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// Scheduler runs refresh and alert batches. It keeps no state between runs;
// concurrent runs are safe as far as the store is.
type Scheduler struct {
	cfg       Config
	store     tracking.Store
	fetcher   Fetcher
	resolver  Resolver
	evaluator *alert.Evaluator
	notifier  tracking.Notifier
	marker    tracking.Marker
	logger    zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewScheduler validates deps and fills unset config values with defaults
func NewScheduler(cfg Config, deps Deps) (*Scheduler, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("refresh: store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("refresh: fetcher is required")
	case deps.Resolver == nil:
		return nil, errors.New("refresh: resolver is required")
	case deps.Evaluator == nil:
		return nil, errors.New("refresh: evaluator is required")
	case deps.Notifier == nil:
		return nil, errors.New("refresh: notifier is required")
	case deps.Marker == nil:
		return nil, errors.New("refresh: marker is required")
	}

	def := DefaultConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	if cfg.JitterFraction < 0 || cfg.JitterFraction > 1 {
		cfg.JitterFraction = def.JitterFraction
	}

	s := &Scheduler{
		cfg:       cfg,
		store:     deps.Store,
		fetcher:   deps.Fetcher,
		resolver:  deps.Resolver,
		evaluator: deps.Evaluator,
		notifier:  deps.Notifier,
		marker:    deps.Marker,
		logger:    deps.Logger,
		now:       deps.Now,
		sleep:     deps.Sleep,
		rand:      deps.Rand,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	if s.rand == nil {
		s.rand = rand.Float64
	}
	return s, nil
}

// RunRefresh fetches every stale product with bounded concurrency, records
// new observations and emits triggered alerts. Cancelling ctx stops dispatch
// and retries; attempts already in flight run to completion. The returned
// summary is non-nil even when selection fails.
func (s *Scheduler) RunRefresh(ctx context.Context) (*BatchSummary, error) {
	summary := newSummary(KindRefresh, s.now())
	log := s.logger.With().Str("run_id", summary.RunID).Str("batch", "refresh").Logger()

	cutoff := summary.StartedAt.Add(-s.cfg.StaleAfter)
	products, err := s.store.ListStaleProducts(ctx, cutoff)
	if err != nil {
		summary.FinishedAt = s.now()
		return summary, fmt.Errorf("failed to list stale products: %w", err)
	}
	summary.Selected = len(products)
	log.Info().Int("products", len(products)).Time("cutoff", cutoff).Msg("refresh started")

	outcomes := make([]Outcome, len(products))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	for i, p := range products {
		if ctx.Err() != nil {
			outcomes[i] = cancelledOutcome(p, 0)
			continue
		}
		i, p := i, p
		g.Go(func() error {
			outcomes[i] = s.refreshProduct(ctx, log, p)
			return nil
		})
	}
	_ = g.Wait()

	s.flush(ctx, log)

	summary.collect(outcomes)
	summary.FinishedAt = s.now()
	logSummary(log, summary)
	return summary, nil
}

func (s *Scheduler) refreshProduct(ctx context.Context, batchLog zerolog.Logger, p tracking.TrackedProduct) Outcome {
	log := batchLog.With().Str("product_id", p.ID).Str("url", p.URL).Logger()

	// a product queued behind the pool limit may see cancellation first
	if ctx.Err() != nil {
		return cancelledOutcome(p, 0)
	}

	page, attempts, err := s.fetchWithRetry(ctx, log, p)
	if err != nil {
		if errors.Is(err, errInterrupted) {
			return cancelledOutcome(p, attempts)
		}
		return s.softFailure(ctx, log, p, attempts, fetchReason(err), err)
	}

	info, err := s.resolver.Resolve(p.URL, page.Body)
	if err != nil {
		reason := "extraction"
		var ee *extractor.ExtractionError
		if errors.As(err, &ee) {
			reason = string(ee.Reason)
		}
		return s.softFailure(ctx, log, p, attempts, reason, err)
	}

	// persistence always completes once a page was fetched
	persistCtx := context.WithoutCancel(ctx)
	// stores keep microsecond precision; the dedup key must survive a round trip
	observedAt := s.now().UTC().Truncate(time.Microsecond)

	out := Outcome{
		ProductID: p.ID,
		URL:       p.URL,
		Attempts:  attempts,
		Strategy:  info.StrategyUsed,
		Currency:  info.Currency,
	}
	price := info.Price
	out.Price = &price

	if err := s.store.AppendObservation(persistCtx, p.ID, info.Price, info.Currency, observedAt); err != nil {
		return hardFailure(log, out, fmt.Errorf("failed to append observation: %w", err))
	}
	if err := s.store.UpdateProductCheck(persistCtx, p.ID, &price, observedAt); err != nil {
		return hardFailure(log, out, fmt.Errorf("failed to update product check: %w", err))
	}

	if info.Name != "" && info.Name != p.Name {
		if nu, ok := s.store.(tracking.NameUpdater); ok {
			if err := nu.UpdateProductName(persistCtx, p.ID, info.Name); err != nil {
				log.Warn().Err(err).Msg("failed to update product name")
			} else {
				p.Name = info.Name
			}
		}
	}

	history, err := s.store.ListObservations(persistCtx, p.ID, observedAt.Add(-s.evaluator.Window()))
	if err != nil {
		return hardFailure(log, out, fmt.Errorf("failed to list observations: %w", err))
	}

	current := tracking.PriceObservation{
		ProductID:  p.ID,
		Price:      info.Price,
		Currency:   info.Currency,
		ObservedAt: observedAt,
	}
	decision := s.evaluator.Evaluate(p, current, history)
	out.Decision = &decision
	out.Status = StatusSucceeded

	if decision.Triggered {
		out.Emitted = s.emit(persistCtx, log, decision, p.Recipient)
	}

	log.Info().
		Str("strategy", info.StrategyUsed).
		Str("price", price.StringFixed(2)).
		Str("currency", info.Currency).
		Int("attempts", attempts).
		Bool("triggered", decision.Triggered).
		Msg("product refreshed")
	return out
}

var errInterrupted = errors.New("interrupted by cancellation")

// fetchWithRetry returns the page, the number of attempts made and either
// the last fetch error or errInterrupted.
func (s *Scheduler) fetchWithRetry(ctx context.Context, log zerolog.Logger, p tracking.TrackedProduct) (*scraper.Page, int, error) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil, attempts, errInterrupted
		}

		// the attempt outlives batch cancellation, bounded by FetchTimeout
		page, err := s.fetcher.Fetch(context.WithoutCancel(ctx), p.URL, s.cfg.FetchTimeout)
		attempts++
		if err == nil {
			return page, attempts, nil
		}

		if !isRetryable(err) || attempts > s.cfg.MaxRetries {
			return nil, attempts, err
		}

		delay := s.backoff(attempts - 1)
		log.Debug().Err(err).Int("attempt", attempts).Dur("backoff", delay).Msg("fetch failed, retrying")
		if err := s.sleep(ctx, delay); err != nil {
			return nil, attempts, errInterrupted
		}
	}
}

// softFailure advances LastChecked without recording a price
func (s *Scheduler) softFailure(ctx context.Context, log zerolog.Logger, p tracking.TrackedProduct, attempts int, reason string, cause error) Outcome {
	out := Outcome{
		ProductID: p.ID,
		URL:       p.URL,
		Status:    StatusSoftFailed,
		Attempts:  attempts,
		Reason:    reason,
		Error:     cause.Error(),
	}

	if err := s.store.UpdateProductCheck(context.WithoutCancel(ctx), p.ID, nil, s.now()); err != nil {
		return hardFailure(log, out, fmt.Errorf("failed to update product check: %w", err))
	}

	log.Warn().Err(cause).Str("reason", reason).Int("attempts", attempts).Msg("refresh failed")
	return out
}

func hardFailure(log zerolog.Logger, out Outcome, err error) Outcome {
	out.Status = StatusHardFailed
	out.Reason = "storage"
	out.Error = err.Error()
	out.Decision = nil
	log.Error().Err(err).Msg("storage failure")
	return out
}

func cancelledOutcome(p tracking.TrackedProduct, attempts int) Outcome {
	return Outcome{
		ProductID: p.ID,
		URL:       p.URL,
		Status:    StatusCancelled,
		Attempts:  attempts,
		Reason:    "cancelled",
	}
}

func fetchReason(err error) string {
	var fe *scraper.FetchError
	if errors.As(err, &fe) {
		return string(fe.Reason)
	}
	return "fetch"
}

// emit sends decision once per observation; the marker suppresses repeats
// across runs and processes.
func (s *Scheduler) emit(ctx context.Context, log zerolog.Logger, decision tracking.AlertDecision, recipient string) bool {
	key := decision.DedupKey()
	first, err := s.marker.Mark(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to mark alert, not emitting")
		return false
	}
	if !first {
		log.Debug().Str("key", key).Msg("alert already emitted")
		return false
	}

	if err := s.notifier.Emit(ctx, decision, recipient); err != nil {
		log.Warn().Err(err).Str("recipient", recipient).Msg("failed to emit alert")
		return false
	}
	return true
}

func (s *Scheduler) flush(ctx context.Context, log zerolog.Logger) {
	f, ok := s.notifier.(tracking.Flusher)
	if !ok {
		return
	}
	if err := f.Flush(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("failed to flush notifications")
	}
}

func logSummary(log zerolog.Logger, summary *BatchSummary) {
	log.Info().
		Int("selected", summary.Selected).
		Int("succeeded", summary.Succeeded).
		Int("soft_failed", summary.SoftFailed).
		Int("hard_failed", summary.HardFailed).
		Int("cancelled", summary.Cancelled).
		Int("skipped", summary.Skipped).
		Int("emitted", summary.Emitted).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("batch finished")
}
