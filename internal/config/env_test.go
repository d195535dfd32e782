package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.Extract.MinTextLen != 50 {
		t.Errorf("MinTextLen = %d, want 50", cfg.Extract.MinTextLen)
	}
	if cfg.Summary.Budget != 15000 {
		t.Errorf("Summary.Budget = %d, want 15000", cfg.Summary.Budget)
	}
	if cfg.Raster.MaxPages != 10 || cfg.Raster.MaxImageBytes != 4_500_000 || cfg.Raster.MaxDimensionPx != 1500 {
		t.Errorf("raster defaults = %+v", cfg.Raster)
	}
	if cfg.Queue.Stream != "jobs:documents" || cfg.Queue.Group != "workers:extract" {
		t.Errorf("queue defaults = %+v", cfg.Queue)
	}
	if cfg.Worker.OpenAITimeout != cfg.Worker.RequestTimeout {
		t.Errorf("unset provider timeout should inherit RequestTimeout, got %v", cfg.Worker.OpenAITimeout)
	}
	if cfg.Providers.MaxPromptTokens != 180_000 {
		t.Errorf("Providers.MaxPromptTokens = %d, want 180000", cfg.Providers.MaxPromptTokens)
	}
	if cfg.Axiom.Dataset != "dev_docextract" {
		t.Errorf("Axiom.Dataset = %q", cfg.Axiom.Dataset)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("EXTRACT_MIN_TEXT_LEN", "80")
	t.Setenv("SUMMARY_BUDGET_CHARS", "9000")
	t.Setenv("RASTER_MAX_PAGES", "5")
	t.Setenv("OPENAI_TIMEOUT", "90s")
	t.Setenv("S3_BUCKET", "docs-bucket")

	cfg := FromEnv()
	if cfg.Extract.MinTextLen != 80 {
		t.Errorf("MinTextLen = %d, want 80", cfg.Extract.MinTextLen)
	}
	if cfg.Summary.Budget != 9000 {
		t.Errorf("Summary.Budget = %d, want 9000", cfg.Summary.Budget)
	}
	if cfg.Raster.MaxPages != 5 {
		t.Errorf("Raster.MaxPages = %d, want 5", cfg.Raster.MaxPages)
	}
	if cfg.Worker.OpenAITimeout != 90*time.Second {
		t.Errorf("OpenAITimeout = %v, want 90s", cfg.Worker.OpenAITimeout)
	}
	if cfg.Storage.Bucket != "docs-bucket" {
		t.Errorf("Storage.Bucket = %q", cfg.Storage.Bucket)
	}
}

func TestParseHelpers(t *testing.T) {
	if parseInt("not a number", 7) != 7 {
		t.Error("parseInt should fall back on junk input")
	}
	if parseDuration("bogus", time.Second) != time.Second {
		t.Error("parseDuration should fall back on junk input")
	}
	for _, v := range []string{"1", "true", "YES", "on"} {
		if !parseBool(v) {
			t.Errorf("parseBool(%q) = false, want true", v)
		}
	}
	if parseBool("off") || parseBool("") {
		t.Error("parseBool accepted a falsey value")
	}
}
