// Package catalog loads the static document and payment source catalogs the
// onboarding workflow is configured with.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"investflow/signing"
	"investflow/transfer"
)

//go:embed default.yaml
var defaultYAML []byte

// Catalog is the static configuration of one offering.
type Catalog struct {
	Offering       string
	Documents      []signing.Document
	PaymentSources []transfer.PaymentSource
}

type fileCatalog struct {
	Offering       string       `yaml:"offering"`
	Documents      []fileDoc    `yaml:"documents"`
	PaymentSources []fileSource `yaml:"payment_sources"`
}

type fileDoc struct {
	ID                string `yaml:"id"`
	Title             string `yaml:"title"`
	SummaryShort      string `yaml:"summary_short"`
	SummaryFull       string `yaml:"summary_full"`
	RequiresSignature bool   `yaml:"requires_signature"`
}

type fileSource struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Last4       string `yaml:"last4"`
	AccountType string `yaml:"account_type"`
}

// Parse decodes and validates a YAML catalog. Both lists must be non-empty
// and ids must be unique within each list.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if len(fc.Documents) == 0 {
		return nil, fmt.Errorf("catalog: no documents")
	}
	if len(fc.PaymentSources) == 0 {
		return nil, fmt.Errorf("catalog: no payment sources")
	}

	c := &Catalog{Offering: fc.Offering}
	seen := make(map[string]bool, len(fc.Documents))
	for i, d := range fc.Documents {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: document %d missing id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("catalog: duplicate document %s", id)
		}
		seen[id] = true
		c.Documents = append(c.Documents, signing.Document{
			ID:                id,
			Title:             d.Title,
			SummaryShort:      d.SummaryShort,
			SummaryFull:       d.SummaryFull,
			RequiresSignature: d.RequiresSignature,
		})
	}

	seen = make(map[string]bool, len(fc.PaymentSources))
	for i, s := range fc.PaymentSources {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: payment source %d missing id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("catalog: duplicate payment source %s", id)
		}
		seen[id] = true
		c.PaymentSources = append(c.PaymentSources, transfer.PaymentSource{
			ID:          id,
			DisplayName: s.DisplayName,
			Last4:       s.Last4,
			AccountType: s.AccountType,
		})
	}
	return c, nil
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
}
