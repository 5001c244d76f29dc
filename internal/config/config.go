package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type Regime struct {
	DwellPeriods        int     `yaml:"dwell_periods"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	DefaultRegime       string  `yaml:"default_regime"`
}

// PlaybookProfile is the per-regime weight table plus the size threshold above
// which a proposal needs human review.
type PlaybookProfile struct {
	Weights         map[string]float64 `yaml:"weights"`
	ReviewThreshold float64            `yaml:"review_threshold"`
}

type Overseer struct {
	MaxActionsPerCycle int     `yaml:"max_actions_per_cycle"`
	MinScoreThreshold  float64 `yaml:"min_score_threshold"`
	BaseSize           float64 `yaml:"base_size"`
	RequireReview      bool    `yaml:"require_review"` // force human review for every proposal
	ReasonerTimeoutMs  int     `yaml:"reasoner_timeout_ms"`
	ReasonerRetries    int     `yaml:"reasoner_retries"`
	BackoffBaseMs      int     `yaml:"backoff_base_ms"`
}

type Risk struct {
	MaxPositionSize            float64 `yaml:"max_position_size"`
	MaxPortfolioExposure       float64 `yaml:"max_portfolio_exposure"`
	MaxVaRPerAsset             float64 `yaml:"max_var_per_asset"`
	MaxPortfolioVaR            float64 `yaml:"max_portfolio_var"`
	PositionConcentrationLimit float64 `yaml:"position_concentration_limit"`
	VaRConfidence              float64 `yaml:"var_confidence"`
	AvgCorrelation             float64 `yaml:"avg_correlation"`
	KillSwitchOnBreach         bool    `yaml:"kill_switch_on_breach"`
}

type Execution struct {
	Slippage             float64 `yaml:"slippage"`
	CommissionRate       float64 `yaml:"commission_rate"`
	InitialCash          float64 `yaml:"initial_cash"`
	MaxDailyLoss         float64 `yaml:"max_daily_loss"`
	MaxConcentration     float64 `yaml:"max_concentration"`
	MaxOrdersPerMinute   int     `yaml:"max_orders_per_minute"`
	EnableCircuitBreaker bool    `yaml:"enable_circuit_breaker"`
	SubmitTimeoutMs      int     `yaml:"submit_timeout_ms"`
}

type Store struct {
	Driver string `yaml:"driver"` // jsonl | postgres
	Path   string `yaml:"path"`   // jsonl file path
	DSN    string `yaml:"dsn"`    // postgres connection string
}

type Redis struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type API struct {
	Addr string `yaml:"addr"`
}

type Root struct {
	Logging           Logging                    `yaml:"logging"`
	Regime            Regime                     `yaml:"regime"`
	Playbook          map[string]PlaybookProfile `yaml:"playbook"`
	Overseer          Overseer                   `yaml:"overseer"`
	Risk              Risk                       `yaml:"risk"`
	Execution         Execution                  `yaml:"execution"`
	Store             Store                      `yaml:"store"`
	Redis             Redis                      `yaml:"redis"`
	API               API                        `yaml:"api"`
	CycleIntervalSecs int                        `yaml:"cycle_interval_seconds"`
	BusHistorySize    int                        `yaml:"bus_history_size"`
	Analyzers         map[string]map[string]any  `yaml:"analyzers"`
	Returns           map[string][]float64       `yaml:"returns"`
}

// Load reads the YAML config, applies defaults, and validates. Validation
// failures are fatal at startup by design.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Default returns the configuration used when no file is given. It mirrors
// the defaults applied on top of a loaded file.
func Default() Root {
	var c Root
	c.applyDefaults()
	return c
}

func (c *Root) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Regime.DwellPeriods == 0 {
		c.Regime.DwellPeriods = 3
	}
	if c.Regime.ConfidenceThreshold == 0 {
		c.Regime.ConfidenceThreshold = 0.8
	}
	if c.Regime.DefaultRegime == "" {
		c.Regime.DefaultRegime = "BULL"
	}
	if c.Playbook == nil {
		c.Playbook = DefaultPlaybook()
	}
	if c.Overseer.MaxActionsPerCycle == 0 {
		c.Overseer.MaxActionsPerCycle = 5
	}
	if c.Overseer.MinScoreThreshold == 0 {
		c.Overseer.MinScoreThreshold = 0.6
	}
	if c.Overseer.BaseSize == 0 {
		c.Overseer.BaseSize = 100
	}
	if c.Overseer.ReasonerTimeoutMs == 0 {
		c.Overseer.ReasonerTimeoutMs = 5000
	}
	if c.Overseer.ReasonerRetries == 0 {
		c.Overseer.ReasonerRetries = 2
	}
	if c.Overseer.BackoffBaseMs == 0 {
		c.Overseer.BackoffBaseMs = 100
	}
	if c.Risk.MaxPositionSize == 0 {
		c.Risk.MaxPositionSize = 1000
	}
	if c.Risk.MaxPortfolioExposure == 0 {
		c.Risk.MaxPortfolioExposure = 10000
	}
	if c.Risk.MaxVaRPerAsset == 0 {
		c.Risk.MaxVaRPerAsset = 0.05
	}
	if c.Risk.MaxPortfolioVaR == 0 {
		c.Risk.MaxPortfolioVaR = 0.15
	}
	if c.Risk.PositionConcentrationLimit == 0 {
		c.Risk.PositionConcentrationLimit = 0.25
	}
	if c.Risk.VaRConfidence == 0 {
		c.Risk.VaRConfidence = 0.95
	}
	if c.Risk.AvgCorrelation == 0 {
		c.Risk.AvgCorrelation = 0.3
	}
	if c.Execution.Slippage == 0 {
		c.Execution.Slippage = 0.001
	}
	if c.Execution.CommissionRate == 0 {
		c.Execution.CommissionRate = 0.001
	}
	if c.Execution.InitialCash == 0 {
		c.Execution.InitialCash = 100000
	}
	if c.Execution.MaxDailyLoss == 0 {
		c.Execution.MaxDailyLoss = 5000
	}
	if c.Execution.MaxConcentration == 0 {
		c.Execution.MaxConcentration = 0.10
	}
	if c.Execution.MaxOrdersPerMinute == 0 {
		c.Execution.MaxOrdersPerMinute = 60
	}
	if c.Execution.SubmitTimeoutMs == 0 {
		c.Execution.SubmitTimeoutMs = 5000
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "jsonl"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/pipeline.jsonl"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.TTLSeconds == 0 {
		c.Redis.TTLSeconds = 3600
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8085"
	}
	if c.CycleIntervalSecs == 0 {
		c.CycleIntervalSecs = 60
	}
	if c.BusHistorySize == 0 {
		c.BusHistorySize = 1000
	}
	if c.Analyzers == nil {
		c.Analyzers = map[string]map[string]any{
			"sentiment": {
				"scores": map[string]float64{"AAPL": 0.8, "MSFT": 0.4, "TSLA": -0.6},
			},
			"technical": {
				"trends": map[string]float64{"AAPL": 0.7, "MSFT": 0.2, "TSLA": -0.8},
			},
			"fundamental": {
				"mispricing_percent": map[string]float64{"AAPL": 12.0, "MSFT": 5.0, "TSLA": -20.0},
			},
		}
	}
}

// DefaultPlaybook carries the stock weight tables for the three base regimes.
func DefaultPlaybook() map[string]PlaybookProfile {
	return map[string]PlaybookProfile{
		"BULL": {
			Weights: map[string]float64{
				"sentiment":   0.3,
				"technical":   0.3,
				"fundamental": 0.2,
				"altdata":     0.1,
				"seasonality": 0.1,
			},
			ReviewThreshold: 100,
		},
		"BEAR": {
			Weights: map[string]float64{
				"sentiment":   0.2,
				"technical":   0.4,
				"fundamental": 0.2,
				"altdata":     0.1,
				"seasonality": 0.1,
			},
			ReviewThreshold: 100,
		},
		"SIDEWAYS": {
			Weights: map[string]float64{
				"sentiment":   0.2,
				"technical":   0.2,
				"fundamental": 0.3,
				"altdata":     0.15,
				"seasonality": 0.15,
			},
			ReviewThreshold: 100,
		},
	}
}

// Validate fails fast on configuration that would make the pipeline unsafe.
func (c *Root) Validate() error {
	if c.Regime.DwellPeriods < 1 {
		return fmt.Errorf("regime.dwell_periods must be >= 1, got %d", c.Regime.DwellPeriods)
	}
	if c.Regime.ConfidenceThreshold < 0 || c.Regime.ConfidenceThreshold > 1 {
		return fmt.Errorf("regime.confidence_threshold must be in [0,1], got %.2f", c.Regime.ConfidenceThreshold)
	}
	if len(c.Playbook) == 0 {
		return fmt.Errorf("playbook must define at least one regime profile")
	}
	for label, profile := range c.Playbook {
		if len(profile.Weights) == 0 {
			return fmt.Errorf("playbook[%s] has no weights", label)
		}
		for mod, w := range profile.Weights {
			if w < 0 {
				return fmt.Errorf("playbook[%s].weights[%s] is negative: %.2f", label, mod, w)
			}
		}
		if profile.ReviewThreshold <= 0 {
			return fmt.Errorf("playbook[%s].review_threshold must be positive", label)
		}
	}
	if c.Risk.VaRConfidence <= 0 || c.Risk.VaRConfidence >= 1 {
		return fmt.Errorf("risk.var_confidence must be in (0,1), got %.2f", c.Risk.VaRConfidence)
	}
	if c.Risk.AvgCorrelation < -1 || c.Risk.AvgCorrelation > 1 {
		return fmt.Errorf("risk.avg_correlation must be in [-1,1], got %.2f", c.Risk.AvgCorrelation)
	}
	for name, v := range map[string]float64{
		"risk.max_position_size":      c.Risk.MaxPositionSize,
		"risk.max_portfolio_exposure": c.Risk.MaxPortfolioExposure,
		"risk.max_var_per_asset":      c.Risk.MaxVaRPerAsset,
		"risk.max_portfolio_var":      c.Risk.MaxPortfolioVaR,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %.4f", name, v)
		}
	}
	if c.Risk.PositionConcentrationLimit <= 0 || c.Risk.PositionConcentrationLimit > 1 {
		return fmt.Errorf("risk.position_concentration_limit must be in (0,1], got %.2f", c.Risk.PositionConcentrationLimit)
	}
	switch c.Store.Driver {
	case "jsonl", "postgres":
	default:
		return fmt.Errorf("store.driver must be jsonl or postgres, got %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the postgres driver")
	}
	return nil
}
