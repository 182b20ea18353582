package classflow

import (
	"fmt"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	yaml "gopkg.in/yaml.v3"

	"github.com/715d/classflow/pkg/dataflow"
	"github.com/715d/classflow/pkg/suppress"
)

// Config is the analysis configuration file.
type Config struct {
	Rules    RulesConfig      `yaml:"rules"`
	Limits   LimitsConfig     `yaml:"limits"`
	Include  []string         `yaml:"include"`
	Exclude  []string         `yaml:"exclude"`
	Suppress []SuppressConfig `yaml:"suppress"`
}

// RulesConfig selects rules by id.
type RulesConfig struct {
	// Enable is an allow list; empty enables every rule.
	Enable  []string `yaml:"enable"`
	Disable []string `yaml:"disable"`
}

// LimitsConfig bounds the flow analysis of one method. Zero keeps the
// default.
type LimitsConfig struct {
	MaxStackDepth  int `yaml:"max_stack_depth"`
	MaxLocals      int `yaml:"max_locals"`
	MaxBlockVisits int `yaml:"max_block_visits"`
}

// SuppressConfig is one configured suppression.
type SuppressConfig struct {
	Rule   string `yaml:"rule"`
	Class  string `yaml:"class"`
	Method string `yaml:"method"`
	Reason string `yaml:"reason"`
}

// LoadConfig reads a yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks limits and patterns.
func (c *Config) Validate() error {
	for name, v := range map[string]int{
		"max_stack_depth":  c.Limits.MaxStackDepth,
		"max_locals":       c.Limits.MaxLocals,
		"max_block_visits": c.Limits.MaxBlockVisits,
	} {
		if v < 0 {
			return fmt.Errorf("limits.%s must not be negative, got %d", name, v)
		}
	}
	for _, p := range slices.Concat(c.Include, c.Exclude) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid class pattern %q", p)
		}
	}
	return nil
}

// FlowLimits returns the limits with defaults filled in.
func (c *Config) FlowLimits() dataflow.Limits {
	l := dataflow.DefaultLimits()
	if c.Limits.MaxStackDepth > 0 {
		l.MaxStack = c.Limits.MaxStackDepth
	}
	if c.Limits.MaxLocals > 0 {
		l.MaxLocals = c.Limits.MaxLocals
	}
	if c.Limits.MaxBlockVisits > 0 {
		l.MaxVisits = c.Limits.MaxBlockVisits
	}
	return l
}

// Suppressions converts the configured suppressions.
func (c *Config) Suppressions() []suppress.Suppression {
	out := make([]suppress.Suppression, len(c.Suppress))
	for i, s := range c.Suppress {
		out[i] = suppress.Suppression{Rule: s.Rule, Class: s.Class, Method: s.Method, Reason: s.Reason}
	}
	return out
}
