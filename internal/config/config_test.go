package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Regime.DwellPeriods)
	assert.Equal(t, 0.8, cfg.Regime.ConfidenceThreshold)
	assert.Equal(t, "jsonl", cfg.Store.Driver)
	assert.Contains(t, cfg.Playbook, "BULL")
	assert.Contains(t, cfg.Analyzers, "sentiment")
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
regime:
  dwell_periods: 5
risk:
  max_position_size: 250
store:
  driver: jsonl
  path: /tmp/test-pipeline.jsonl
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Regime.DwellPeriods)
	assert.Equal(t, 250.0, cfg.Risk.MaxPositionSize)
	// untouched sections pick up defaults
	assert.Equal(t, 0.8, cfg.Regime.ConfidenceThreshold)
	assert.Equal(t, 0.95, cfg.Risk.VaRConfidence)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "logging: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	cases := map[string]func(*Root){
		"dwell periods below one": func(c *Root) { c.Regime.DwellPeriods = -1 },
		"confidence above one":    func(c *Root) { c.Regime.ConfidenceThreshold = 1.5 },
		"negative weight":         func(c *Root) { c.Playbook["BULL"].Weights["sentiment"] = -0.1 },
		"zero review threshold": func(c *Root) {
			p := c.Playbook["BULL"]
			p.ReviewThreshold = 0
			c.Playbook["BULL"] = p
		},
		"var confidence out of range": func(c *Root) { c.Risk.VaRConfidence = 1.0 },
		"correlation out of range":    func(c *Root) { c.Risk.AvgCorrelation = 2 },
		"unknown store driver":        func(c *Root) { c.Store.Driver = "sqlite" },
		"postgres without dsn":        func(c *Root) { c.Store.Driver = "postgres"; c.Store.DSN = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
