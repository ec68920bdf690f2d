package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
	"paper_trader/pkg/tracing"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
	defaultConfigFile = "values_local.yaml"
	envPrefix         = "PAPER"

	tokenTelegramENV = "TELEGRAM_TOKEN"
	databaseDSN      = "DATABASE_DSN"
	finnhubKeyENV    = "FINNHUB_KEY"
	oracleKeyENV     = "ORACLE_API_KEY"
)

// Config ...
type Config struct {
	Service struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"service"`

	Logger  logger.Config  `mapstructure:"logger"`
	Tracing tracing.Config `mapstructure:"tracing"`

	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Bot       BotSection      `mapstructure:"bot"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Health    HealthConfig    `mapstructure:"health"`
}

type PortfolioConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	TrailFactor    float64 `mapstructure:"trail_factor"`
	// Rates: единиц валюты за 1 USD, поверх встроенной таблицы
	Rates map[string]float64 `mapstructure:"rates"`
}

// BotSection: настройки бота плюс то, что в BotConfig не входит.
type BotSection struct {
	models.BotConfig `mapstructure:",squash"`

	OuterTick time.Duration `mapstructure:"outer_tick"`
	// Seed != 0 делает выбор кандидатов воспроизводимым
	Seed int64 `mapstructure:"seed"`
}

type FeedConfig struct {
	Watchlist  []string      `mapstructure:"watchlist"`
	Tick       time.Duration `mapstructure:"tick"`
	Timeout    time.Duration `mapstructure:"timeout"`
	FinnhubKey string        `mapstructure:"finnhub_key"`
	FinnhubURL string        `mapstructure:"finnhub_url"`
	FinnhubWS  string        `mapstructure:"finnhub_ws"`
	Stream     bool          `mapstructure:"stream"`

	BinanceKey    string `mapstructure:"binance_key"`
	BinanceSecret string `mapstructure:"binance_secret"`
}

type OracleConfig struct {
	// Provider: llm | rules
	Provider string        `mapstructure:"provider"`
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type JournalConfig struct {
	// Driver: sqlite | postgres | none
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
	Buffer int    `mapstructure:"buffer"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

var defaults = map[string]any{
	"service.name": "paper_trader",

	"logger.level":       "info",
	"logger.development": false,

	"tracing.host": "",
	"tracing.port": 0,

	"portfolio.initial_balance": 100000.0,
	"portfolio.trail_factor":    0.02,

	"bot.enabled":             false,
	"bot.risk_per_trade":      1.0,
	"bot.interval_seconds":    30,
	"bot.max_open_positions":  3,
	"bot.strategy":            string(models.StrategyConservative),
	"bot.use_trailing_stop":   true,
	"bot.allowed_symbols":     []string{},
	"bot.daily_profit_target": 5000.0,
	"bot.outer_tick":          "5s",
	"bot.seed":                0,

	"feed.watchlist": []string{
		"AAPL", "TSLA", "NVDA", "BINANCE:BTCUSDT", "BINANCE:ETHUSDT",
		"RELIANCE.NS", "TCS.NS", "HDFCBANK.NS", "NIFTYBEES.NS", "TATAMOTORS.NS",
	},
	"feed.tick":           "5s",
	"feed.timeout":        "4s",
	"feed.finnhub_key":    "",
	"feed.finnhub_url":    "https://finnhub.io/api/v1",
	"feed.finnhub_ws":     "wss://ws.finnhub.io",
	"feed.stream":         false,
	"feed.binance_key":    "",
	"feed.binance_secret": "",

	"oracle.provider": "rules",
	"oracle.url":      "https://api.mistral.ai",
	"oracle.api_key":  "",
	"oracle.model":    "mistral-small-latest",
	"oracle.timeout":  "20s",

	"journal.driver": "sqlite",
	"journal.path":   "data/journal.db",
	"journal.dsn":    "",
	"journal.buffer": 256,

	"telegram.token":   "",
	"telegram.chat_id": 0,

	"health.addr": ":8080",
}

// NewConfig: .env, потом configs/$CONFIG_FILE, потом переменные окружения.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("[CONFIG] .env: %v", err)
	}

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = defaultConfigFile
	}

	cfg, v, err := Load(filepath.Join(configDir, configFileName))
	if err != nil {
		return nil, err
	}

	if dump, err := Dump(v); err == nil {
		logger.Debug("[CONFIG] effective config:\n%s", dump)
	}
	return cfg, nil
}

// Load читает один yaml-файл. Отсутствующий файл не ошибка: остаются дефолты и env.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// старые имена переменных
	_ = v.BindEnv("telegram.token", envPrefix+"_TELEGRAM_TOKEN", tokenTelegramENV)
	_ = v.BindEnv("journal.dsn", envPrefix+"_JOURNAL_DSN", databaseDSN)
	_ = v.BindEnv("feed.finnhub_key", envPrefix+"_FEED_FINNHUB_KEY", finnhubKeyENV)
	_ = v.BindEnv("oracle.api_key", envPrefix+"_ORACLE_API_KEY", oracleKeyENV)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, nil, pkgerrors.Wrapf(err, "read config %s", path)
		}
		logger.Warn("[CONFIG] %s not found, using defaults", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, pkgerrors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Bot.BotConfig.Validate(); err != nil {
		return nil, nil, pkgerrors.Wrap(err, "bot section")
	}

	return &cfg, v, nil
}

var secretKeys = []string{
	"telegram.token",
	"journal.dsn",
	"feed.finnhub_key",
	"feed.binance_secret",
	"oracle.api_key",
}

// Dump: итоговый конфиг в yaml, секреты замазаны.
func Dump(v *viper.Viper) (string, error) {
	out := viper.New()
	for _, k := range v.AllKeys() {
		out.Set(k, v.Get(k))
	}
	for _, k := range secretKeys {
		if v.GetString(k) != "" {
			out.Set(k, "***")
		}
	}

	bs, err := yaml.Marshal(out.AllSettings())
	if err != nil {
		return "", pkgerrors.Wrap(err, "marshal config to yaml")
	}
	return string(bs), nil
}
