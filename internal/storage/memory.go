// Package storage provides the tracking.Store implementations.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// MemoryStore keeps products and observations in process memory. It is used
// by tests and single-run CLI invocations.
type MemoryStore struct {
	mu           sync.Mutex
	products     map[string]*tracking.TrackedProduct
	order        []string
	observations map[string][]tracking.PriceObservation
	seq          int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:     make(map[string]*tracking.TrackedProduct),
		observations: make(map[string][]tracking.PriceObservation),
	}
}

// Seed inserts or replaces products. Observations of replaced products are
// kept.
func (s *MemoryStore) Seed(_ context.Context, products ...tracking.TrackedProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		if p.ID == "" {
			return fmt.Errorf("product with url %q has no id", p.URL)
		}
		if _, exists := s.products[p.ID]; !exists {
			s.order = append(s.order, p.ID)
		}
		cp := p
		s.products[p.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) ListStaleProducts(_ context.Context, cutoff time.Time) ([]tracking.TrackedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []tracking.TrackedProduct
	for _, id := range s.order {
		p := s.products[id]
		if p.NeverChecked() || p.LastChecked.Before(cutoff) {
			stale = append(stale, copyProduct(p))
		}
	}

	// oldest first, never-checked products lead
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].LastChecked.Before(stale[j].LastChecked)
	})
	return stale, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]tracking.TrackedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]tracking.TrackedProduct, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, copyProduct(s.products[id]))
	}
	return all, nil
}

// GetProduct returns a copy of one product
func (s *MemoryStore) GetProduct(_ context.Context, productID string) (tracking.TrackedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return tracking.TrackedProduct{}, fmt.Errorf("get %s: %w", productID, tracking.ErrNotFound)
	}
	return copyProduct(p), nil
}

func (s *MemoryStore) AppendObservation(_ context.Context, productID string, price decimal.Decimal, currency string, observedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("append observation for %s: %w", productID, tracking.ErrNotFound)
	}

	s.seq++
	s.observations[productID] = append(s.observations[productID], tracking.PriceObservation{
		ProductID:  productID,
		Price:      price,
		Currency:   currency,
		ObservedAt: observedAt,
		Seq:        s.seq,
	})
	if currency != "" {
		p.Currency = currency
	}
	return nil
}

func (s *MemoryStore) UpdateProductCheck(_ context.Context, productID string, newPrice *decimal.Decimal, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("update check for %s: %w", productID, tracking.ErrNotFound)
	}

	p.LastChecked = checkedAt
	if newPrice != nil {
		price := *newPrice
		p.CurrentPrice = &price
	}
	return nil
}

func (s *MemoryStore) UpdateProductName(_ context.Context, productID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("update name for %s: %w", productID, tracking.ErrNotFound)
	}
	p.Name = name
	return nil
}

func (s *MemoryStore) ListObservations(_ context.Context, productID string, since time.Time) ([]tracking.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return nil, fmt.Errorf("list observations for %s: %w", productID, tracking.ErrNotFound)
	}

	var out []tracking.PriceObservation
	for _, obs := range s.observations[productID] {
		if !obs.ObservedAt.Before(since) {
			out = append(out, obs)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out, nil
}

func copyProduct(p *tracking.TrackedProduct) tracking.TrackedProduct {
	cp := *p
	if p.CurrentPrice != nil {
		price := *p.CurrentPrice
		cp.CurrentPrice = &price
	}
	return cp
}
