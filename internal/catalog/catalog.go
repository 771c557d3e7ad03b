// Package catalog holds the commercial plan catalog and the premium feature
// designation. Both are configuration, not logic: they are loaded from a
// YAML file when one is configured, with compiled-in defaults otherwise.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan maps a commercial plan id onto the billing provider's price.
type Plan struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	PriceRef string `yaml:"price_ref"` // provider's price identifier
	Interval string `yaml:"interval"`  // "month" or "year"
}

// Catalog is the full commercial configuration.
type Catalog struct {
	Plans           []Plan   `yaml:"plans"`
	PremiumFeatures []string `yaml:"premium_features"`

	byID map[string]Plan
}

// Config is read from the environment at startup.
type Config struct {
	Path string `env:"CATALOG_PATH"`
}

// Default returns the compiled-in catalog used when no file is configured.
// Price refs must still be supplied through the file in any environment that
// talks to the real billing provider.
func Default() *Catalog {
	c := &Catalog{
		Plans: []Plan{
			{ID: "premium_monthly", Name: "Premium Monthly", Interval: "month"},
			{ID: "premium_yearly", Name: "Premium Yearly", Interval: "year"},
		},
		PremiumFeatures: []string{
			"unlimited_exercises",
			"offline_mode",
			"cloud_sync",
			"advanced_stats",
			"custom_audio",
			"priority_support",
		},
	}
	c.index()
	return c
}

// Load reads a catalog from the configured YAML file, or returns the default
// catalog when no path is set.
func Load(cfg Config) (*Catalog, error) {
	if cfg.Path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", cfg.Path, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", cfg.Path, err)
	}
	if len(c.Plans) == 0 {
		return nil, fmt.Errorf("catalog: %s defines no plans", cfg.Path)
	}
	c.index()
	return &c, nil
}

// PlanByID looks up a plan. The second return is false when the plan is not
// in the catalog.
func (c *Catalog) PlanByID(id string) (Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) index() {
	c.byID = make(map[string]Plan, len(c.Plans))
	for _, p := range c.Plans {
		c.byID[p.ID] = p
	}
}
