package summarize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarizeWithinBudgetPassthrough(t *testing.T) {
	s := New(nil, 500)
	in := "A short document about osmosis.\nWater crosses the membrane."
	got := s.Summarize(in)
	if got != in {
		t.Errorf("within-budget text changed: %q", got)
	}
}

func TestSummarizeStripsArtifacts(t *testing.T) {
	s := New(nil, 500)
	in := strings.Join([]string{
		"Contact prof.smith@university.edu for questions.",
		"Slides at https://example.edu/bio101 and www.example.edu/extra",
		"Call +1 (555) 123-4567 anytime.",
		"Page 12 of 80",
		"03/15/2024",
		"Cell respiration releases stored energy.",
	}, "\n")

	got := s.Summarize(in)
	for _, artifact := range []string{"@university.edu", "https://", "www.example", "555", "Page 12", "03/15"} {
		if strings.Contains(got, artifact) {
			t.Errorf("artifact %q survived: %q", artifact, got)
		}
	}
	if !strings.Contains(got, "Cell respiration releases stored energy.") {
		t.Errorf("content sentence lost: %q", got)
	}
}

func TestSummarizeDenyLines(t *testing.T) {
	s := New(nil, 500)
	in := strings.Join([]string{
		"Copyright 2024 Example Press, all rights reserved.",
		"This page intentionally left blank.",
		"CONFIDENTIAL draft, do not distribute.",
		"Enzymes lower activation energy of reactions.",
	}, "\n")

	got := s.Summarize(in)
	if strings.Contains(strings.ToLower(got), "copyright") || strings.Contains(strings.ToLower(got), "confidential") {
		t.Errorf("boilerplate survived: %q", got)
	}
	if !strings.Contains(got, "Enzymes lower activation energy") {
		t.Errorf("content sentence lost: %q", got)
	}
}

func TestSummarizeLineFiltering(t *testing.T) {
	s := New(nil, 500)
	in := strings.Join([]string{
		"--- Slide 3 ---",
		"w.",
		"Section 2",
		"Appendix",
		"Ionic bonds form between metals and nonmetals.",
	}, "\n")

	got := s.Summarize(in)
	for _, keep := range []string{"--- Slide 3 ---", "Section 2", "Ionic bonds"} {
		if !strings.Contains(got, keep) {
			t.Errorf("line %q dropped: %q", keep, got)
		}
	}
	for _, drop := range []string{"w.", "Appendix"} {
		if strings.Contains(got, drop) {
			t.Errorf("short line %q kept: %q", drop, got)
		}
	}
}

func TestSummarizeAllowPrefixOverridesDenylist(t *testing.T) {
	s := New(nil, 500)
	in := strings.Join([]string{
		"Chapter 2 Copyright and fair use in research",
		"Copyright 2024 Example Press, all rights reserved.",
		"Diffusion spreads molecules from high to low concentration.",
	}, "\n")

	got := s.Summarize(in)
	if !strings.Contains(got, "Chapter 2 Copyright") {
		t.Errorf("allow-listed line dropped: %q", got)
	}
	if strings.Contains(got, "Example Press") {
		t.Errorf("deny line survived: %q", got)
	}
}

func TestSummarizeEnforcesBudget(t *testing.T) {
	s := New(nil, 200)
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog near the river bank today. ")
	}
	got := s.Summarize(sb.String())
	if n := utf8.RuneCountInString(got); n > 200 {
		t.Errorf("output is %d runes, budget 200", n)
	}
	if got == "" {
		t.Error("budget small but nonzero, expected some output")
	}
}

func TestSummarizePrefersKeywordSentences(t *testing.T) {
	filler := "The weather outside was gray and unremarkable for most of that afternoon period. "
	keyed := "The definition of entropy is a key concept and an important formula in thermodynamics. "

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString(filler)
	}
	sb.WriteString(keyed)
	for i := 0; i < 40; i++ {
		sb.WriteString(filler)
	}

	s := New(nil, 300)
	got := s.Summarize(sb.String())
	if !strings.Contains(got, "definition of entropy") {
		t.Errorf("high-scoring sentence dropped: %q", got)
	}
}

func TestSummarizeEmitsByScoreDescending(t *testing.T) {
	low := "The weather stayed gray and unremarkable through the whole afternoon session. "
	high := "The definition of entropy is the key formula in this important chapter. "

	var sb strings.Builder
	sb.WriteString(low)
	for i := 0; i < 60; i++ {
		sb.WriteString("Filler sentences pad the middle of this long teaching document considerably. ")
	}
	sb.WriteString(high)

	s := New(nil, 250)
	got := s.Summarize(sb.String())
	i, j := strings.Index(got, "definition of entropy"), strings.Index(got, "gray and unremarkable")
	if i < 0 || j < 0 {
		t.Fatalf("expected both sentences, got %q", got)
	}
	if i > j {
		t.Errorf("higher-scoring sentence should come first: %q", got)
	}
}

func TestSummarizeIdempotent(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 120; i++ {
		sb.WriteString("Kinetic energy depends on both the mass and the velocity of an object. ")
	}
	s := New(nil, 400)
	once := s.Summarize(sb.String())
	twice := s.Summarize(once)
	if once != twice {
		t.Errorf("not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestLoadWeightsEmptyPathUsesDefaults(t *testing.T) {
	w, err := LoadWeights("")
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if len(w.Keywords) == 0 {
		t.Error("default weights carry no keywords")
	}
}

func TestLoadWeightsMissingFile(t *testing.T) {
	if _, err := LoadWeights("/nonexistent/weights.yaml"); err == nil {
		t.Error("want error for missing weights file")
	}
}
