package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModePaper  Mode = "paper"
	ModeLive   Mode = "live"
)

const (
	VIXSourceScrape = "scrape"
	VIXSourceStatic = "static"
)

type Config struct {
	Mode              Mode          `yaml:"mode"`
	Symbols           []string      `yaml:"symbols"`
	Benchmark         string        `yaml:"benchmark"`
	Feed              string        `yaml:"feed"`
	SMAWindow         int           `yaml:"sma_window"`
	RSIPeriod         int           `yaml:"rsi_period"`
	RSIThreshold      float64       `yaml:"rsi_threshold"`
	VIXThreshold      float64       `yaml:"vix_threshold"`
	VIXSource         string        `yaml:"vix_source"`
	VIXURL            string        `yaml:"vix_url"`
	VIXSelector       string        `yaml:"vix_selector"`
	VIXStatic         float64       `yaml:"vix_static"`
	VIXTimeout        time.Duration `yaml:"vix_timeout"`
	DCAAmount         float64       `yaml:"dca_amount"`
	Sizing            string        `yaml:"sizing"`
	MaxNotional       float64       `yaml:"max_notional"`
	RunsPerDay        int           `yaml:"runs_per_day"`
	SessionLength     time.Duration `yaml:"session_length"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Cooldown          time.Duration `yaml:"cooldown"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	KillSwitch        bool          `yaml:"kill_switch"`
	DecisionsPath     string        `yaml:"decisions_path"`
	CheckpointPath    string        `yaml:"checkpoint_path"`
	PaperBaseURL      string        `yaml:"paper_base_url"`
	LiveBaseURL       string        `yaml:"live_base_url"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	LogLevel          string        `yaml:"log_level"`
	Tracing           bool          `yaml:"tracing"`
	Once              bool          `yaml:"-"`
	APIKey            string        `yaml:"-"`
	APISecret         string        `yaml:"-"`
}

func Default() Config {
	return Config{
		Mode:              ModeDryRun,
		Symbols:           []string{"NVDA", "TSLA", "AMD", "QBTS", "RKLB"},
		Benchmark:         "SPY",
		Feed:              "iex",
		SMAWindow:         20,
		RSIPeriod:         14,
		RSIThreshold:      75,
		VIXThreshold:      25,
		VIXSource:         VIXSourceScrape,
		VIXURL:            "https://www.cboe.com/tradable_products/vix/",
		VIXSelector:       "[data-testid='last-price']",
		VIXTimeout:        10 * time.Second,
		DCAAmount:         100,
		Sizing:            "shares",
		MaxNotional:       250,
		RunsPerDay:        4,
		SessionLength:     6*time.Hour + 30*time.Minute,
		PollInterval:      time.Minute,
		Cooldown:          30 * time.Minute,
		ReconcileInterval: 30 * time.Second,
		DecisionsPath:     "decisions.ndjson",
		CheckpointPath:    "checkpoint.json",
		PaperBaseURL:      "https://paper-api.alpaca.markets",
		LiveBaseURL:       "https://api.alpaca.markets",
		MetricsAddr:       ":9102",
		LogLevel:          "info",
	}
}

func Load() (Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs layers defaults, the YAML file named by --config, the environment
// (including .env) and finally command-line flags.
func LoadArgs(args []string) (Config, error) {
	cfg := Default()

	if err := loadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path := configPath(args); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := parseFlags(args, &cfg); err != nil {
		return cfg, err
	}

	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")
	for i, symbol := range cfg.Symbols {
		cfg.Symbols[i] = strings.ToUpper(strings.TrimSpace(symbol))
	}
	cfg.Benchmark = strings.ToUpper(strings.TrimSpace(cfg.Benchmark))

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) BaseURL() string {
	if c.Mode == ModeLive {
		return c.LiveBaseURL
	}
	return c.PaperBaseURL
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return godotenv.Load(path)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DCA_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("DCA_SYMBOLS"); v != "" {
		cfg.Symbols = splitSymbols(v)
	}
	if v := os.Getenv("DCA_AMOUNT"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DCA_AMOUNT: %w", err)
		}
		cfg.DCAAmount = amount
	}
	if v := os.Getenv("DCA_KILL_SWITCH"); v != "" {
		kill, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DCA_KILL_SWITCH: %w", err)
		}
		cfg.KillSwitch = kill
	}
	if v := os.Getenv("DCA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DCA_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return nil
}

func parseFlags(args []string, cfg *Config) error {
	fs := flag.NewFlagSet("dca", flag.ContinueOnError)
	var (
		configFile string
		mode       = string(cfg.Mode)
		symbols    = strings.Join(cfg.Symbols, ",")
	)

	fs.StringVar(&configFile, "config", "", "path to YAML config file")
	fs.StringVar(&mode, "mode", mode, "run mode: dry_run, paper or live")
	fs.StringVar(&symbols, "symbols", symbols, "comma-separated watchlist")
	fs.StringVar(&cfg.Benchmark, "benchmark", cfg.Benchmark, "index ETF used for the RSI filter")
	fs.StringVar(&cfg.Feed, "feed", cfg.Feed, "market data feed: iex or sip")
	fs.IntVar(&cfg.SMAWindow, "sma-window", cfg.SMAWindow, "SMA window length in days")
	fs.IntVar(&cfg.RSIPeriod, "rsi-period", cfg.RSIPeriod, "benchmark RSI period in days")
	fs.Float64Var(&cfg.RSIThreshold, "rsi-threshold", cfg.RSIThreshold, "pause buying above this benchmark RSI")
	fs.Float64Var(&cfg.VIXThreshold, "vix-threshold", cfg.VIXThreshold, "pause buying above this VIX level")
	fs.StringVar(&cfg.VIXSource, "vix-source", cfg.VIXSource, "vix source: scrape or static")
	fs.StringVar(&cfg.VIXURL, "vix-url", cfg.VIXURL, "quote page scraped for the VIX level")
	fs.StringVar(&cfg.VIXSelector, "vix-selector", cfg.VIXSelector, "CSS selector of the VIX level")
	fs.Float64Var(&cfg.VIXStatic, "vix-static", cfg.VIXStatic, "fixed VIX level for the static source")
	fs.DurationVar(&cfg.VIXTimeout, "vix-timeout", cfg.VIXTimeout, "timeout for the VIX scrape")
	fs.Float64Var(&cfg.DCAAmount, "dca-amount", cfg.DCAAmount, "dollars per qualifying symbol per run")
	fs.StringVar(&cfg.Sizing, "sizing", cfg.Sizing, "order sizing: shares or notional")
	fs.Float64Var(&cfg.MaxNotional, "max-notional", cfg.MaxNotional, "max notional per order, 0 disables")
	fs.IntVar(&cfg.RunsPerDay, "runs-per-day", cfg.RunsPerDay, "DCA runs per trading day (3-5)")
	fs.DurationVar(&cfg.SessionLength, "session-length", cfg.SessionLength, "regular session length")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "scheduler clock poll interval")
	fs.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "minimum time between buys of one symbol")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "broker reconciliation interval")
	fs.BoolVar(&cfg.KillSwitch, "kill-switch", cfg.KillSwitch, "if true, never place orders")
	fs.StringVar(&cfg.DecisionsPath, "decisions-path", cfg.DecisionsPath, "path to decisions log")
	fs.StringVar(&cfg.CheckpointPath, "checkpoint-path", cfg.CheckpointPath, "path to checkpoint file")
	fs.StringVar(&cfg.PaperBaseURL, "paper-base-url", cfg.PaperBaseURL, "paper trading base URL")
	fs.StringVar(&cfg.LiveBaseURL, "live-base-url", cfg.LiveBaseURL, "live trading base URL")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus listen address, empty disables")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.Tracing, "tracing", cfg.Tracing, "write trace spans to stderr")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "run a single cycle now and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Mode = Mode(mode)
	cfg.Symbols = splitSymbols(symbols)
	return nil
}

// configPath finds --config ahead of flag parsing so the file can supply
// defaults that flags then override.
func configPath(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func splitSymbols(value string) []string {
	parts := strings.Split(value, ",")
	symbols := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func validate(cfg Config) error {
	if cfg.Mode != ModeDryRun && cfg.Mode != ModePaper && cfg.Mode != ModeLive {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required")
	}
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("symbols must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		if seen[symbol] {
			return fmt.Errorf("duplicate symbol: %s", symbol)
		}
		seen[symbol] = true
	}
	if cfg.Benchmark == "" {
		return fmt.Errorf("benchmark must not be empty")
	}
	if cfg.SMAWindow <= 1 {
		return fmt.Errorf("sma-window must be > 1")
	}
	if cfg.RSIPeriod <= 1 {
		return fmt.Errorf("rsi-period must be > 1")
	}
	if cfg.RSIThreshold <= 0 || cfg.RSIThreshold > 100 {
		return fmt.Errorf("rsi-threshold must be in (0, 100]")
	}
	if cfg.VIXThreshold <= 0 {
		return fmt.Errorf("vix-threshold must be > 0")
	}
	switch cfg.VIXSource {
	case VIXSourceScrape:
		if cfg.VIXURL == "" || cfg.VIXSelector == "" {
			return fmt.Errorf("vix-url and vix-selector are required for the scrape source")
		}
	case VIXSourceStatic:
		if cfg.VIXStatic < 0 {
			return fmt.Errorf("vix-static must be >= 0")
		}
		if cfg.Mode == ModeLive {
			return fmt.Errorf("static vix source is not allowed in live mode")
		}
	default:
		return fmt.Errorf("invalid vix-source: %s", cfg.VIXSource)
	}
	if cfg.DCAAmount <= 0 {
		return fmt.Errorf("dca-amount must be > 0")
	}
	if cfg.Sizing != "shares" && cfg.Sizing != "notional" {
		return fmt.Errorf("invalid sizing: %s", cfg.Sizing)
	}
	if cfg.MaxNotional < 0 {
		return fmt.Errorf("max-notional must be >= 0")
	}
	if cfg.RunsPerDay < 3 || cfg.RunsPerDay > 5 {
		return fmt.Errorf("runs-per-day must be between 3 and 5")
	}
	if cfg.SessionLength <= 0 {
		return fmt.Errorf("session-length must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if cfg.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile-interval must be > 0")
	}
	if cfg.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0")
	}
	return nil
}
