package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"CoinSentinel/internal/collector"
	"CoinSentinel/internal/execution"
	"CoinSentinel/internal/fund"
	"CoinSentinel/internal/logger"
	"CoinSentinel/internal/model"
	"CoinSentinel/internal/risk"
	"CoinSentinel/internal/strategy"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Trading   TradingConfig   `yaml:"trading"`
	Execution ExecutionConfig `yaml:"execution"`
	Collector CollectorConfig `yaml:"collector"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Proxy     string          `yaml:"proxy"`
}

type StrategyConfig struct {
	VolumeMultiplier float64        `yaml:"volume_multiplier" default:"10.0" validate:"gt=0"`
	LookbackDays     int            `yaml:"lookback_days" default:"7" validate:"gte=1"`
	MinPeriods       int            `yaml:"min_periods" default:"10" validate:"gte=1"`
	Timeframe        string         `yaml:"timeframe" default:"1h" validate:"required"`
	VolumeField      string         `yaml:"volume_field" default:"quote" validate:"oneof=quote base"`
	MaxAlertsPerScan int            `yaml:"max_alerts_per_scan" default:"5" validate:"gte=0"`
	Timezone         string         `yaml:"timezone" default:"Asia/Shanghai" validate:"required"`
	Filters          FiltersConfig  `yaml:"filters"`
	Pullback         PullbackConfig `yaml:"pullback"`
}

type FiltersConfig struct {
	Enabled              bool    `yaml:"enabled"`
	PriceChangeMax       float64 `yaml:"price_change_max" default:"0.20" validate:"gt=0"`
	ConsolidationMinDays int     `yaml:"consolidation_min_days" default:"3" validate:"gte=1"`
	VolatilityThreshold  float64 `yaml:"volatility_threshold" default:"0.05" validate:"gt=0"`
}

// PullbackConfig enables alert-only pullback detection. Periods are bars of
// the strategy timeframe.
type PullbackConfig struct {
	Enabled      bool    `yaml:"enabled"`
	HighLookback int     `yaml:"high_lookback" default:"20" validate:"gte=1"`
	MinRetrace   float64 `yaml:"min_retrace" default:"0.03" validate:"gte=0,lt=1"`
	MaxRetrace   float64 `yaml:"max_retrace" default:"0.08" validate:"gtfield=MinRetrace,lt=1"`
	RecentVolume int     `yaml:"recent_volume" default:"3" validate:"gte=1,ltefield=HighLookback"`
	VolumeRatio  float64 `yaml:"volume_ratio" default:"1.2" validate:"gt=0"`
	RSIPeriod    int     `yaml:"rsi_period" default:"14" validate:"gte=1"`
	RSIMin       float64 `yaml:"rsi_min" default:"35" validate:"gte=0,lte=100"`
	RSIMax       float64 `yaml:"rsi_max" default:"50" validate:"gtefield=RSIMin,lte=100"`
	MinBars      int     `yaml:"min_bars" default:"30" validate:"gte=1"`
}

type RiskConfig struct {
	StopLossPct            float64 `yaml:"stop_loss_pct" default:"-0.08" validate:"lt=0"`
	TakeProfitPct          float64 `yaml:"take_profit_pct" default:"0.15"`
	MaxProfitPct           float64 `yaml:"max_profit_pct" default:"0.80" validate:"gt=0"`
	TrailingStopActivation float64 `yaml:"trailing_stop_activation" default:"0.20" validate:"gt=0"`
	TrailingStopRatio      float64 `yaml:"trailing_stop_ratio" default:"0.15" validate:"gt=0,lt=1"`
	EnableTimeExit         bool    `yaml:"enable_time_exit" default:"true"`
	QuickProfitHours       float64 `yaml:"quick_profit_hours" default:"72" validate:"gte=0"`
	QuickProfitThreshold   float64 `yaml:"quick_profit_threshold" default:"0.10"`
	ProfitTakingHours      float64 `yaml:"profit_taking_hours" default:"168" validate:"gte=0"`
	ProfitTakingThreshold  float64 `yaml:"profit_taking_threshold" default:"0.03"`
	StopLossHours          float64 `yaml:"stop_loss_hours" default:"240" validate:"gte=0"`
	StopLossThreshold      float64 `yaml:"stop_loss_threshold" default:"-0.03"`
	ForcedCloseHours       float64 `yaml:"forced_close_hours" default:"336" validate:"gte=0"`
}

// TradingConfig controls the paper capital book and automatic entries.
type TradingConfig struct {
	AutoTrade           bool    `yaml:"auto_trade"`
	InitialCapital      float64 `yaml:"initial_capital" default:"1000" validate:"gt=0"`
	MaxPositionPct      float64 `yaml:"max_position_pct" default:"0.15" validate:"gt=0,lte=1"`
	MaxTotalExposure    float64 `yaml:"max_total_exposure" default:"0.80" validate:"gt=0,lte=1"`
	MinInvestmentAmount float64 `yaml:"min_investment_amount" default:"10" validate:"gte=0"`
	SignalStrengthBase  float64 `yaml:"signal_strength_base" default:"5.0" validate:"gt=0"`
	StateFile           string  `yaml:"state_file" default:"data/fund_state.json"`
}

type ExecutionConfig struct {
	FeeRate     float64 `yaml:"fee_rate" default:"0.001" validate:"gte=0,lt=1"`
	LotStep     float64 `yaml:"lot_step" default:"0.000001" validate:"gte=0"`
	MinNotional float64 `yaml:"min_notional" default:"5" validate:"gte=0"`
}

type CollectorConfig struct {
	Source         string        `yaml:"source" default:"binance" validate:"oneof=binance yahoo mock"`
	BaseURL        string        `yaml:"base_url" default:"https://api.binance.com"`
	Symbols        []string      `yaml:"symbols"`
	QuoteAsset     string        `yaml:"quote_asset" default:"USDT"`
	SourceInterval string        `yaml:"source_interval" default:"1h" validate:"required"`
	DropOpenBar    bool          `yaml:"drop_open_bar" default:"true"`
	Timeout        time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`
}

type TelegramConfig struct {
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	MaxRetries int    `yaml:"max_retries" default:"3" validate:"gte=0"`
	Polling    bool   `yaml:"polling" default:"true"`
}

type ScheduleConfig struct {
	ScanCron string `yaml:"scan_cron" default:"0 1 * * * *" validate:"required"`
	RiskCron string `yaml:"risk_cron" default:"0 */30 * * * *" validate:"required"`
}

type DatabaseConfig struct {
	SQLitePath string `yaml:"sqlite_path" default:"data/coin_sentinel.db"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Addr    string `yaml:"addr" default:":9090"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stdout"`
}

var validate = validator.New()

// PathFromEnv returns CONFIG_PATH or the default location.
func PathFromEnv() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load applies struct defaults, reads the YAML file over them, then applies
// environment variable overrides and validates the result. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("DATA_SOURCE"); v != "" {
		c.Collector.Source = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Collector.Symbols = splitList(v)
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("AUTO_TRADE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_TRADE: %w", err)
		}
		c.Trading.AutoTrade = b
	}
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INITIAL_CAPITAL: %w", err)
		}
		c.Trading.InitialCapital = f
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks field ranges and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	src, err := model.TimeframeDuration(c.Collector.SourceInterval)
	if err != nil {
		errs = append(errs, fmt.Errorf("collector.source_interval: %w", err))
	}
	tf, err := model.TimeframeDuration(c.Strategy.Timeframe)
	if err != nil {
		errs = append(errs, fmt.Errorf("strategy.timeframe: %w", err))
	}
	if src > 0 && tf > 0 && tf%src != 0 {
		errs = append(errs, fmt.Errorf("strategy.timeframe %s is not a multiple of collector.source_interval %s",
			c.Strategy.Timeframe, c.Collector.SourceInterval))
	}
	if _, err := time.LoadLocation(c.Strategy.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("strategy.timezone: %w", err))
	}
	if err := c.RiskConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		errs = append(errs, errors.New("telegram.chat_id is required when bot_token is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the zone used for alert dedupe and message timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Strategy.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RiskConfig converts the risk section for the risk manager.
func (c *Config) RiskConfig() risk.Config {
	r := c.Risk
	return risk.Config{
		StopLossPct:            r.StopLossPct,
		TakeProfitPct:          r.TakeProfitPct,
		MaxProfitPct:           r.MaxProfitPct,
		TrailingStopActivation: r.TrailingStopActivation,
		TrailingStopRatio:      r.TrailingStopRatio,
		EnableTimeExit:         r.EnableTimeExit,
		QuickProfitHours:       r.QuickProfitHours,
		QuickProfitThreshold:   r.QuickProfitThreshold,
		ProfitTakingHours:      r.ProfitTakingHours,
		ProfitTakingThreshold:  r.ProfitTakingThreshold,
		StopLossHours:          r.StopLossHours,
		StopLossThreshold:      r.StopLossThreshold,
		ForcedCloseHours:       r.ForcedCloseHours,
	}
}

func (c *Config) FundConfig() fund.Config {
	t := c.Trading
	return fund.Config{
		InitialCapital:      t.InitialCapital,
		MaxPositionPct:      t.MaxPositionPct,
		MaxTotalExposure:    t.MaxTotalExposure,
		MinInvestmentAmount: t.MinInvestmentAmount,
		SignalStrengthBase:  t.SignalStrengthBase,
	}
}

func (c *Config) PaperConfig() execution.PaperConfig {
	return execution.PaperConfig{
		FeeRate:     c.Execution.FeeRate,
		LotStep:     c.Execution.LotStep,
		MinNotional: c.Execution.MinNotional,
	}
}

// FilterConfig converts consolidation days into bars of the strategy timeframe.
func (c *Config) FilterConfig() (strategy.FilterConfig, error) {
	f := c.Strategy.Filters
	perDay, err := model.PeriodsPerDay(c.Strategy.Timeframe)
	if err != nil {
		return strategy.FilterConfig{}, err
	}
	return strategy.FilterConfig{
		Enabled:              f.Enabled,
		PriceChangeMax:       f.PriceChangeMax,
		ConsolidationPeriods: f.ConsolidationMinDays * perDay,
		VolatilityThreshold:  f.VolatilityThreshold,
	}, nil
}

func (c *Config) PullbackConfig() strategy.PullbackConfig {
	p := c.Strategy.Pullback
	return strategy.PullbackConfig{
		Enabled:      p.Enabled,
		HighLookback: p.HighLookback,
		MinRetrace:   p.MinRetrace,
		MaxRetrace:   p.MaxRetrace,
		RecentVolume: p.RecentVolume,
		VolumeRatio:  p.VolumeRatio,
		RSIPeriod:    p.RSIPeriod,
		RSIMin:       p.RSIMin,
		RSIMax:       p.RSIMax,
		MinBars:      p.MinBars,
	}
}

// CollectorConfig fetches enough history to fill the baseline window plus the
// bar under evaluation, or the pullback window when that is longer.
func (c *Config) CollectorConfig() (collector.Config, error) {
	perDay, err := model.PeriodsPerDay(c.Strategy.Timeframe)
	if err != nil {
		return collector.Config{}, err
	}
	history := c.Strategy.LookbackDays*perDay + 1
	if p := c.Strategy.Pullback; p.Enabled {
		history = max(history, p.MinBars, p.HighLookback, p.RSIPeriod+1)
	}
	return collector.Config{
		Symbols:        c.Collector.Symbols,
		QuoteAsset:     c.Collector.QuoteAsset,
		SourceInterval: c.Collector.SourceInterval,
		Timeframe:      c.Strategy.Timeframe,
		HistoryBars:    history,
		DropOpenBar:    c.Collector.DropOpenBar,
	}, nil
}

func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format, Output: c.Log.Output}
}
