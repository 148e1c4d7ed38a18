package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes digests to the log instead of delivering them
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, digest Digest) error {
	for _, d := range digest.Decisions {
		s.logger.Info().
			Str("recipient", digest.Recipient).
			Str("product_id", d.ProductID).
			Str("name", d.ProductName).
			Str("current", d.CurrentPrice.StringFixed(2)).
			Str("baseline", d.BaselinePrice.StringFixed(2)).
			Str("drop_ratio", d.DropRatio.StringFixed(4)).
			Str("currency", d.Currency).
			Msg("price drop")
	}
	s.logger.Info().
		Str("recipient", digest.Recipient).
		Str("subject", digest.Subject).
		Int("products", len(digest.Decisions)).
		Msg("digest ready")
	return nil
}
