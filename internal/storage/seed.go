package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/marcosevegrand/dealpulse/internal/retailer"
	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// Seeder is implemented by stores that accept an initial product list
type Seeder interface {
	Seed(ctx context.Context, products ...tracking.TrackedProduct) error
}

// SeedFile is the on-disk list of tracked products
type SeedFile struct {
	Products []tracking.TrackedProduct `yaml:"products"`
}

// LoadSeedFile reads and validates a YAML product list
func LoadSeedFile(path string) ([]tracking.TrackedProduct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(file.Products))
	for i := range file.Products {
		p := &file.Products[i]
		if p.ID == "" {
			return nil, fmt.Errorf("product %d: id is required", i+1)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("product %d: duplicate id %q", i+1, p.ID)
		}
		seen[p.ID] = true

		p.URL = retailer.NormalizeURL(p.URL)
		if !retailer.IsValidURL(p.URL) {
			return nil, fmt.Errorf("product %s: invalid url %q", p.ID, p.URL)
		}
	}

	return file.Products, nil
}
