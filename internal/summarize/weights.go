package summarize

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed weights.yaml
var defaultWeightsYAML []byte

// Weights drive sentence scoring and line filtering.
type Weights struct {
	Keywords      map[string]float64 `yaml:"keywords"`
	DenyLines     []string           `yaml:"deny_lines"`
	AllowPrefixes []string           `yaml:"allow_prefixes"`
}

// DefaultWeights returns the embedded weight table.
func DefaultWeights() *Weights {
	w, err := parseWeights(defaultWeightsYAML)
	if err != nil {
		// The embedded file is part of the build; a parse failure here is a
		// packaging bug, not a runtime condition.
		panic(fmt.Sprintf("embedded weights.yaml invalid: %v", err))
	}
	return w
}

// LoadWeights reads a weight table from a YAML file, falling back to the
// embedded defaults when path is empty.
func LoadWeights(path string) (*Weights, error) {
	if path == "" {
		return DefaultWeights(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}
	w, err := parseWeights(raw)
	if err != nil {
		return nil, fmt.Errorf("parse weights file %s: %w", path, err)
	}
	return w, nil
}

func parseWeights(raw []byte) (*Weights, error) {
	var w Weights
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if len(w.Keywords) == 0 {
		return nil, fmt.Errorf("weights define no keywords")
	}
	return &w, nil
}
