package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Loader loads and parses plan configuration payloads.
type Loader struct{}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFromFile loads and parses a plan payload from a JSON file.
// File errors are wrapped with context (use os.IsNotExist to check for missing file).
func (l *Loader) LoadFromFile(path string) (*PlanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}

	cfg, err := l.LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading plan %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromBytes parses a plan payload from raw JSON bytes.
// Empty data (len==0) returns ErrConfigEmpty.
// Parse errors are wrapped (use json.SyntaxError to check for parse failures).
func (l *Loader) LoadFromBytes(data []byte) (*PlanConfig, error) {
	if len(data) == 0 {
		return nil, ErrConfigEmpty
	}

	var plan PlanConfig
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	validator := NewValidator()
	if err := validator.Validate(&plan); err != nil {
		return nil, err
	}

	return &plan, nil
}
