// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModelPricing is the USD price per 1K tokens for one model.
type ModelPricing struct {
	InputPer1K  float64 `yaml:"input_per_1k" json:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k" json:"output_per_1k"`
}

// PricingTable maps provider then model to pricing. Lookups for unknown
// provider/model pairs return zero pricing so unknown models never block a
// request; they just cost nothing in the log until the table is updated.
type PricingTable struct {
	mu        sync.RWMutex
	providers map[string]map[string]ModelPricing
}

// DefaultPricing returns the built-in table.
func DefaultPricing() *PricingTable {
	return &PricingTable{
		providers: map[string]map[string]ModelPricing{
			"anthropic": {
				"claude-opus-4-1":            {InputPer1K: 0.015, OutputPer1K: 0.075},
				"claude-sonnet-4-5":          {InputPer1K: 0.003, OutputPer1K: 0.015},
				"claude-sonnet-4-0":          {InputPer1K: 0.003, OutputPer1K: 0.015},
				"claude-3-5-haiku-20241022":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
				"claude-3-5-sonnet-20241022": {InputPer1K: 0.003, OutputPer1K: 0.015},
			},
			"openai": {
				"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
				"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
				"gpt-4-turbo":   {InputPer1K: 0.01, OutputPer1K: 0.03},
				"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
			},
			"gemini": {
				"gemini-2.0-flash": {InputPer1K: 0.0001, OutputPer1K: 0.0004},
				"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.005},
				"gemini-1.5-flash": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
			},
			"bedrock": {
				"anthropic.claude-3-5-sonnet-20241022-v2:0": {InputPer1K: 0.003, OutputPer1K: 0.015},
				"anthropic.claude-3-5-haiku-20241022-v1:0":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
			},
			"local": {
				"local-deterministic-v1": {},
			},
		},
	}
}

// Lookup returns the pricing for a (provider, model) pair, or zero pricing
// when unknown.
func (t *PricingTable) Lookup(provider, model string) ModelPricing {
	t.mu.RLock()
	defer t.mu.RUnlock()

	models, ok := t.providers[provider]
	if !ok {
		return ModelPricing{}
	}
	return models[model]
}

// Merge overlays pricing entries onto the table, adding providers and
// models and replacing existing entries.
func (t *PricingTable) Merge(overrides map[string]map[string]ModelPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for provider, models := range overrides {
		if t.providers[provider] == nil {
			t.providers[provider] = make(map[string]ModelPricing, len(models))
		}
		for model, pricing := range models {
			t.providers[provider][model] = pricing
		}
	}
}

// pricingFile is the YAML shape of a pricing override file.
type pricingFile struct {
	Providers map[string]map[string]ModelPricing `yaml:"providers"`
}

// LoadPricingFile merges a YAML override file into the table. Finance owns
// the file; it tracks vendor price changes without a deploy.
func (t *PricingTable) LoadPricingFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pricing file %s: %w", path, err)
	}

	var file pricingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse pricing file %s: %w", path, err)
	}

	t.Merge(file.Providers)
	return nil
}
