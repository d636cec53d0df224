package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full simulation configuration. Monetary values are
// plain YAML numbers converted to decimals once at wiring time.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Data struct {
		Mode       string   `yaml:"mode"` // "replay" or "live"
		Dir        string   `yaml:"dir"`  // CSV directory for replay mode
		WSURL      string   `yaml:"ws_url"`
		Securities []string `yaml:"securities"`
	} `yaml:"data"`

	Pairs []struct {
		Name           string `yaml:"name"`
		PesoSecurity   string `yaml:"peso_security"`
		DollarSecurity string `yaml:"dollar_security"`
	} `yaml:"pairs"`

	Commission struct {
		ARSBps float64 `yaml:"ars_bps"`
		USDBps float64 `yaml:"usd_bps"`
	} `yaml:"commission"`

	FX struct {
		EODRate         float64 `yaml:"eod_rate"` // ARS per USD
		URL             string  `yaml:"url"`      // optional live refresh endpoint
		PollIntervalSec int     `yaml:"poll_interval_sec"`
	} `yaml:"fx"`

	Execution struct {
		MaxRetries       int  `yaml:"max_retries"`
		RetryDelayMS     int  `yaml:"retry_delay_ms"`
		UseBackoff       bool `yaml:"use_backoff"`
		GatewayLatencyMS int  `yaml:"gateway_latency_ms"`
	} `yaml:"execution"`

	Risk struct {
		// AllowNegativeBalance opts in to the aggressive overdraft policy:
		// completed sequences may leave a currency balance negative, logged.
		// Default (false) rejects such opportunities before the first leg.
		AllowNegativeBalance  bool    `yaml:"allow_negative_balance"`
		MaxBookDepth          int     `yaml:"max_book_depth"`
		MaxIterationsPerTick  int     `yaml:"max_iterations_per_tick"`
		InitialARSBalance     float64 `yaml:"initial_ars_balance"`
		InitialUSDBalance     float64 `yaml:"initial_usd_balance"`
	} `yaml:"risk"`

	Storage struct {
		Path string `yaml:"path"` // SQLite trade-record file; empty disables
	} `yaml:"storage"`

	Report struct {
		JSONLPath string `yaml:"jsonl_path"` // per-trade JSON lines; empty disables
	} `yaml:"report"`

	Metrics struct {
		Addr string `yaml:"addr"` // promhttp listen address; empty disables
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Data.Mode {
	case "replay":
		if c.Data.Dir == "" {
			return fmt.Errorf("replay mode requires data.dir")
		}
	case "live":
		if !strings.HasPrefix(c.Data.WSURL, "ws://") && !strings.HasPrefix(c.Data.WSURL, "wss://") {
			return fmt.Errorf("invalid feed WS URL: %s", c.Data.WSURL)
		}
	default:
		return fmt.Errorf("data.mode must be \"replay\" or \"live\", got %q", c.Data.Mode)
	}

	if len(c.Pairs) < 2 {
		return fmt.Errorf("at least two bond pairs are required for an FX round trip")
	}
	if c.FX.EODRate <= 0 {
		return fmt.Errorf("fx.eod_rate must be positive")
	}
	if c.Commission.ARSBps < 0 || c.Commission.USDBps < 0 {
		return fmt.Errorf("commission rates must be non-negative")
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries must be non-negative")
	}
	if c.Risk.MaxBookDepth < 1 {
		return fmt.Errorf("risk.max_book_depth must be at least 1")
	}
	if c.Risk.InitialARSBalance < 0 || c.Risk.InitialUSDBalance < 0 {
		return fmt.Errorf("initial balances must be non-negative")
	}

	return nil
}

// overrideWithEnv applies environment overrides when present.
func overrideWithEnv(cfg *Config) {
	if dir := os.Getenv("BONDARB_DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}
	if url := os.Getenv("BONDARB_WS_URL"); url != "" {
		cfg.Data.WSURL = url
	}
	if addr := os.Getenv("BONDARB_METRICS_ADDR"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	if rate := os.Getenv("BONDARB_FX_EOD_RATE"); rate != "" {
		if v, err := strconv.ParseFloat(rate, 64); err == nil && v > 0 {
			cfg.FX.EODRate = v
		}
	}
}
