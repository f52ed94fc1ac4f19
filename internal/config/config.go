package config

import (
	"fmt"
	"runtime"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/mtfbacktest/internal/optimization"
	btengine "github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Backtest     BacktestConfig     `mapstructure:"backtest"`
	Data         DataConfig         `mapstructure:"data"`
	Optimization OptimizationConfig `mapstructure:"optimization"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	Report       ReportConfig       `mapstructure:"report"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// BacktestConfig contains the engine and runner settings
type BacktestConfig struct {
	InitialCash     float64 `mapstructure:"initial_cash"`
	Commission      float64 `mapstructure:"commission"` // 0.001 = 0.1%
	ExclusiveOrders bool    `mapstructure:"exclusive_orders"`
	PositionSizing  string  `mapstructure:"position_sizing"` // fixed, percent, kelly
	PositionSize    float64 `mapstructure:"position_size"`
	KellyFraction   float64 `mapstructure:"kelly_fraction"`
	Concurrent      bool    `mapstructure:"concurrent"`
	Workers         int     `mapstructure:"workers"`
}

// DataConfig describes where bars come from
type DataConfig struct {
	Source                  string   `mapstructure:"source"` // csv, parquet, postgres
	Dir                     string   `mapstructure:"dir"`
	Assets                  []string `mapstructure:"assets"`
	Timeframes              []string `mapstructure:"timeframes"`
	BaseTimeframe           string   `mapstructure:"base_timeframe"`
	DeriveTimeframes        bool     `mapstructure:"derive_timeframes"`
	ResampleLabel           string   `mapstructure:"resample_label"` // start, end
	SupportResistanceWindow int      `mapstructure:"support_resistance_window"`
}

// OptimizationConfig holds search defaults. Search files override them.
type OptimizationConfig struct {
	Workers                 int     `mapstructure:"workers"`
	Seed                    int64   `mapstructure:"seed"`
	RandomMaxAttemptsFactor int     `mapstructure:"random_max_attempts_factor"`
	MonteCarloSimulations   int     `mapstructure:"monte_carlo_simulations"`
	MonteCarloNoiseStd      float64 `mapstructure:"monte_carlo_noise_std"`
	TopN                    int     `mapstructure:"top_n"`
	RefinementStep          float64 `mapstructure:"refinement_step"`
	Step                    float64 `mapstructure:"step"`
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database"`
	SSLMode     string `mapstructure:"ssl_mode"`
	PoolSize    int    `mapstructure:"pool_size"`
	PersistJobs bool   `mapstructure:"persist_jobs"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	EnableMetrics bool `mapstructure:"enable_metrics"`
	Port          int  `mapstructure:"port"`
}

// ReportConfig sets where exports are written
type ReportConfig struct {
	Dir  string `mapstructure:"dir"`
	HTML bool   `mapstructure:"html"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// MTFBACKTEST_BACKTEST_INITIAL_CASH overrides backtest.initial_cash
	v.SetEnvPrefix("MTFBACKTEST")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mtfbacktest")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("backtest.initial_cash", 100000.0)
	v.SetDefault("backtest.commission", 0.001)
	v.SetDefault("backtest.exclusive_orders", true)
	v.SetDefault("backtest.position_sizing", btengine.SizingPercent)
	v.SetDefault("backtest.position_size", 1.0)
	v.SetDefault("backtest.kelly_fraction", 0.5)
	v.SetDefault("backtest.concurrent", false)
	v.SetDefault("backtest.workers", runtime.NumCPU())

	v.SetDefault("data.source", market.FormatCSV)
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.assets", []string{"BTCUSDT"})
	v.SetDefault("data.timeframes", []string{"5m", "1h"})
	v.SetDefault("data.base_timeframe", "1m")
	v.SetDefault("data.derive_timeframes", false)
	v.SetDefault("data.resample_label", string(market.LabelStart))
	v.SetDefault("data.support_resistance_window", 20)

	v.SetDefault("optimization.workers", runtime.NumCPU())
	v.SetDefault("optimization.seed", 42)
	v.SetDefault("optimization.random_max_attempts_factor", 100)
	v.SetDefault("optimization.monte_carlo_simulations", 100)
	v.SetDefault("optimization.monte_carlo_noise_std", 0.01)
	v.SetDefault("optimization.top_n", 5)
	v.SetDefault("optimization.refinement_step", 1.0)
	v.SetDefault("optimization.step", 1.0)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "mtfbacktest")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.persist_jobs", false)

	v.SetDefault("monitoring.enable_metrics", false)
	v.SetDefault("monitoring.port", 9100)

	v.SetDefault("report.dir", "REPORT")
	v.SetDefault("report.html", true)
}

// GetDSN returns the PostgreSQL connection string. An explicit dsn wins.
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetMetricsAddr returns the metrics server address
func (c *MonitoringConfig) GetMetricsAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// UsesDatabase reports whether bars are read from Postgres.
func (c *DataConfig) UsesDatabase() bool {
	return c.Source == SourcePostgres
}

// LoadOptions converts the file settings for market.LoadDataset.
func (c *DataConfig) LoadOptions() market.LoadOptions {
	return market.LoadOptions{
		Format:                  c.Source,
		BaseTimeframe:           c.BaseTimeframe,
		DeriveTimeframes:        c.DeriveTimeframes,
		ResampleLabel:           market.ResampleLabel(c.ResampleLabel),
		SupportResistanceWindow: c.SupportResistanceWindow,
	}
}

// EngineConfig converts the backtest section into engine settings.
func (c *BacktestConfig) EngineConfig() btengine.Config {
	return btengine.Config{
		InitialCapital:  c.InitialCash,
		CommissionRate:  c.Commission,
		ExclusiveOrders: c.ExclusiveOrders,
		PositionSizing:  c.PositionSizing,
		PositionSize:    c.PositionSize,
		KellyFraction:   c.KellyFraction,
	}
}

// Options returns the optimizer settings.
func (c *OptimizationConfig) Options() optimization.Options {
	return optimization.Options{
		Workers:           c.Workers,
		Seed:              c.Seed,
		MaxAttemptsFactor: c.RandomMaxAttemptsFactor,
	}
}

// SequentialDefaults returns the plan used when a search file omits fields.
func (c *OptimizationConfig) SequentialDefaults() optimization.SequentialPlan {
	return optimization.SequentialPlan{
		TopN:           c.TopN,
		RefinementStep: c.RefinementStep,
		Step:           c.Step,
	}
}

// MonteCarloDefaults returns the plan used when a search file omits fields.
func (c *OptimizationConfig) MonteCarloDefaults() optimization.MonteCarloPlan {
	return optimization.MonteCarloPlan{
		Simulations: c.MonteCarloSimulations,
		NoiseStd:    c.MonteCarloNoiseStd,
	}
}
