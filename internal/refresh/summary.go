package refresh

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// Batch kinds
const (
	KindRefresh = "refresh"
	KindAlerts  = "alerts"
)

// Status is the result of one product task
type Status string

const (
	StatusSucceeded  Status = "succeeded"
	StatusSoftFailed Status = "soft_failed"
	StatusHardFailed Status = "hard_failed"
	StatusCancelled  Status = "cancelled"
	StatusSkipped    Status = "skipped"
)

// Outcome records what happened to one product in a batch
type Outcome struct {
	ProductID string                  `json:"product_id"`
	URL       string                  `json:"url"`
	Status    Status                  `json:"status"`
	Attempts  int                     `json:"attempts,omitempty"`
	Strategy  string                  `json:"strategy,omitempty"`
	Price     *decimal.Decimal        `json:"price,omitempty"`
	Currency  string                  `json:"currency,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Decision  *tracking.AlertDecision `json:"decision,omitempty"`
	Emitted   bool                    `json:"emitted,omitempty"`
}

// BatchSummary is returned by every batch run
type BatchSummary struct {
	RunID      string                   `json:"run_id"`
	Kind       string                   `json:"kind"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Selected   int                      `json:"selected"`
	Succeeded  int                      `json:"succeeded"`
	SoftFailed int                      `json:"soft_failed"`
	HardFailed int                      `json:"hard_failed"`
	Cancelled  int                      `json:"cancelled"`
	Skipped    int                      `json:"skipped"`
	Emitted    int                      `json:"emitted"`
	Outcomes   []Outcome                `json:"outcomes"`
	Decisions  []tracking.AlertDecision `json:"decisions"`
}

func newSummary(kind string, startedAt time.Time) *BatchSummary {
	return &BatchSummary{
		RunID:     uuid.Must(uuid.NewV4()).String(),
		Kind:      kind,
		StartedAt: startedAt,
		Outcomes:  []Outcome{},
		Decisions: []tracking.AlertDecision{},
	}
}

// collect appends outcomes in product order and tallies them
func (s *BatchSummary) collect(outcomes []Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusSoftFailed:
			s.SoftFailed++
		case StatusHardFailed:
			s.HardFailed++
		case StatusCancelled:
			s.Cancelled++
		case StatusSkipped:
			s.Skipped++
		}
		if o.Decision != nil {
			s.Decisions = append(s.Decisions, *o.Decision)
		}
		if o.Emitted {
			s.Emitted++
		}
		s.Outcomes = append(s.Outcomes, o)
	}
}
