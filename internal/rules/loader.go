package rules

import (
	"fmt"
	"os"
	"strings"

	"hostwatch/internal/model"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// LoadRulesFromJSON loads seed rules from a JSON file
func LoadRulesFromJSON(filename string) ([]model.RuleConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules struct {
		Rules []model.RuleConfig `json:"rules"`
	}

	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	return rules.Rules, nil
}

// LoadRulesFromYAML loads seed rules from a YAML file
func LoadRulesFromYAML(filename string) ([]model.RuleConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules struct {
		Rules []model.RuleConfig `yaml:"rules"`
	}

	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules file: %w", err)
	}

	return rules.Rules, nil
}

// LoadRules picks the parser from the file extension, trying YAML then JSON
// when the extension is unknown.
func LoadRules(filename string) ([]model.RuleConfig, error) {
	if filename == "" {
		return nil, fmt.Errorf("rules file path is empty")
	}

	switch {
	case strings.HasSuffix(filename, ".yaml"), strings.HasSuffix(filename, ".yml"):
		return LoadRulesFromYAML(filename)
	case strings.HasSuffix(filename, ".json"):
		return LoadRulesFromJSON(filename)
	}

	if rules, err := LoadRulesFromYAML(filename); err == nil {
		return rules, nil
	}
	return LoadRulesFromJSON(filename)
}
