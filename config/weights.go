package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/startuphub/backend/matching"
)

// LoadWeights reads a YAML scoring-weights file. Keys left out of the file
// keep their default value. An empty path returns the defaults.
func LoadWeights(path string) (matching.Weights, error) {
	w := matching.DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read weights file: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("parse weights file: %w", err)
	}

	checks := []struct {
		name  string
		value int
	}{
		{"same_stage", w.SameStage},
		{"same_industry", w.SameIndustry},
		{"skill_per_difference", w.SkillPerDiff},
		{"skill_cap", w.SkillCap},
		{"same_timezone", w.SameTimezone},
		{"cofounder", w.Cofounder},
		{"max", w.Max},
	}
	for _, c := range checks {
		if c.value < 0 {
			return w, fmt.Errorf("weight %s must not be negative, got %d", c.name, c.value)
		}
	}
	return w, nil
}
