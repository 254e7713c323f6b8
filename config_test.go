package payflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	require.Equal(t, 0.90, config.MatchThreshold)
	require.Equal(t, 5.0, config.TwoWayTolerancePct)
	require.Equal(t, 10000.0, config.AutoApprovalCeiling)
	require.Zero(t, config.AmountTolerance)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.MatchThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.MatchThreshold = 1.5 }},
		{"negative tolerance pct", func(c *Config) { c.TwoWayTolerancePct = -1 }},
		{"negative amount tolerance", func(c *Config) { c.AmountTolerance = -5 }},
		{"negative approval ceiling", func(c *Config) { c.AutoApprovalCeiling = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			require.Error(t, config.Validate())
		})
	}
}

func TestAmountToleranceFor(t *testing.T) {
	t.Run("derived from percentage", func(t *testing.T) {
		config := DefaultConfig()
		require.Equal(t, 250.0, config.amountToleranceFor(5000))
	})

	t.Run("absolute override wins", func(t *testing.T) {
		config := DefaultConfig()
		config.AmountTolerance = 100
		require.Equal(t, 100.0, config.amountToleranceFor(5000))
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("partial yaml keeps defaults", func(t *testing.T) {
		config, err := LoadConfigString("match_threshold: 0.75\n")
		require.NoError(t, err)
		require.Equal(t, 0.75, config.MatchThreshold)
		require.Equal(t, 5.0, config.TwoWayTolerancePct)
	})

	t.Run("tool overrides", func(t *testing.T) {
		config, err := LoadConfigString(`
default_tools:
  email: smtp_relay
`)
		require.NoError(t, err)
		require.Equal(t, "smtp_relay", config.DefaultTools[CapabilityEmail])
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		_, err := LoadConfigString("match_threshold: 2.0\n")
		require.Error(t, err)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("auto_approval_ceiling: 500\n"), 0644))

		config, err := LoadConfigFile(path)
		require.NoError(t, err)
		require.Equal(t, 500.0, config.AutoApprovalCeiling)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
