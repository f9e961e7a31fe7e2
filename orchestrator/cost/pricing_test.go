// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPricingTable_LookupUnknownIsZero(t *testing.T) {
	table := DefaultPricing()

	if p := table.Lookup("anthropic", "no-such-model"); p != (ModelPricing{}) {
		t.Errorf("unknown model pricing = %+v, want zero", p)
	}
	if p := table.Lookup("no-such-provider", "gpt-4o"); p != (ModelPricing{}) {
		t.Errorf("unknown provider pricing = %+v, want zero", p)
	}
}

func TestPricingTable_Merge(t *testing.T) {
	table := DefaultPricing()
	table.Merge(map[string]map[string]ModelPricing{
		"anthropic": {
			"claude-sonnet-4-5": {InputPer1K: 0.004, OutputPer1K: 0.02},
		},
		"mistral": {
			"mistral-large": {InputPer1K: 0.002, OutputPer1K: 0.006},
		},
	})

	if p := table.Lookup("anthropic", "claude-sonnet-4-5"); p.InputPer1K != 0.004 {
		t.Errorf("override not applied: %+v", p)
	}
	if p := table.Lookup("mistral", "mistral-large"); p.OutputPer1K != 0.006 {
		t.Errorf("new provider not merged: %+v", p)
	}
	// Untouched entries survive the merge.
	if p := table.Lookup("openai", "gpt-4o"); p.InputPer1K != 0.0025 {
		t.Errorf("existing entry lost: %+v", p)
	}
}

func TestLoadPricingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := `
providers:
  anthropic:
    claude-sonnet-4-5:
      input_per_1k: 0.0035
      output_per_1k: 0.0175
  openai:
    gpt-5:
      input_per_1k: 0.005
      output_per_1k: 0.02
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	table := DefaultPricing()
	if err := table.LoadPricingFile(path); err != nil {
		t.Fatalf("LoadPricingFile: %v", err)
	}

	if p := table.Lookup("anthropic", "claude-sonnet-4-5"); p.InputPer1K != 0.0035 {
		t.Errorf("file override not applied: %+v", p)
	}
	if p := table.Lookup("openai", "gpt-5"); p.OutputPer1K != 0.02 {
		t.Errorf("new model not loaded: %+v", p)
	}
}

func TestLoadPricingFile_Missing(t *testing.T) {
	table := DefaultPricing()
	if err := table.LoadPricingFile("/nonexistent/pricing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
