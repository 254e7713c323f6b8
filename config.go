package payflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the recognized pipeline options. It is constructed once at
// startup and passed into the Engine; stages never consult ambient globals.
//
// The two amount policies are deliberately distinct: match success compares
// score >= MatchThreshold (inclusive), while the two-way amount evidence flag
// compares the absolute difference between invoice and PO amounts against an
// absolute tolerance in currency units.
type Config struct {
	// MatchThreshold is the minimum score considered a successful match.
	MatchThreshold float64 `yaml:"match_threshold" json:"match_threshold"`

	// TwoWayTolerancePct derives the amount tolerance as a percentage of the
	// invoice amount when AmountTolerance is unset.
	TwoWayTolerancePct float64 `yaml:"two_way_tolerance_pct" json:"two_way_tolerance_pct"`

	// AmountTolerance is the absolute amount tolerance in currency units.
	// Zero means: derive from TwoWayTolerancePct per invoice.
	AmountTolerance float64 `yaml:"amount_tolerance" json:"amount_tolerance"`

	// AutoApprovalCeiling is the amount at or below which an invoice is
	// auto-approved rather than escalated.
	AutoApprovalCeiling float64 `yaml:"auto_approval_ceiling" json:"auto_approval_ceiling"`

	// DefaultTools overrides the default tool identifier per capability.
	DefaultTools map[Capability]string `yaml:"default_tools" json:"default_tools,omitempty"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		MatchThreshold:      0.90,
		TwoWayTolerancePct:  5.0,
		AutoApprovalCeiling: 10000.0,
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0, 1], got %v", c.MatchThreshold)
	}
	if c.TwoWayTolerancePct < 0 {
		return fmt.Errorf("two_way_tolerance_pct must not be negative, got %v", c.TwoWayTolerancePct)
	}
	if c.AmountTolerance < 0 {
		return fmt.Errorf("amount_tolerance must not be negative, got %v", c.AmountTolerance)
	}
	if c.AutoApprovalCeiling < 0 {
		return fmt.Errorf("auto_approval_ceiling must not be negative, got %v", c.AutoApprovalCeiling)
	}
	return nil
}

// amountToleranceFor returns the absolute tolerance to apply when comparing
// amount against a PO amount.
func (c *Config) amountToleranceFor(amount float64) float64 {
	if c.AmountTolerance > 0 {
		return c.AmountTolerance
	}
	return amount * c.TwoWayTolerancePct / 100.0
}

// LoadConfigFile loads a Config from a YAML file. Options absent from the
// file keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadConfigString(string(data))
}

// LoadConfigString loads a Config from a YAML string.
func LoadConfigString(data string) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(data), config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
