package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	btengine "github.com/ajitpratap0/mtfbacktest/pkg/backtest"
	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// SourcePostgres reads bars from the candlesticks table.
const SourcePostgres = "postgres"

var envReplacer = strings.NewReplacer(".", "_")

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateBacktest()...)
	errors = append(errors, c.validateData()...)
	errors = append(errors, c.validateOptimization()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateMonitoring()...)

	if c.Report.Dir == "" {
		errors = append(errors, ValidationError{Field: "report.dir", Message: "Report directory is required"})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	if !slices.Contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil || c.Logging.Level == "" {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("Invalid log level '%s' (debug, info, warn, error)", c.Logging.Level),
		})
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be json or console", c.Logging.Format),
		})
	}

	return errors
}

func (c *Config) validateBacktest() ValidationErrors {
	var errors ValidationErrors
	b := c.Backtest

	if b.InitialCash <= 0 {
		errors = append(errors, ValidationError{
			Field:   "backtest.initial_cash",
			Message: fmt.Sprintf("Initial cash must be positive, got %v", b.InitialCash),
		})
	}
	if b.Commission < 0 || b.Commission >= 1 {
		errors = append(errors, ValidationError{
			Field:   "backtest.commission",
			Message: fmt.Sprintf("Commission must be in [0, 1), got %v", b.Commission),
		})
	}

	switch b.PositionSizing {
	case btengine.SizingFixed, btengine.SizingPercent:
		if b.PositionSize <= 0 {
			errors = append(errors, ValidationError{
				Field:   "backtest.position_size",
				Message: fmt.Sprintf("Position size must be positive for %s sizing", b.PositionSizing),
			})
		}
	case btengine.SizingKelly:
		if b.KellyFraction <= 0 || b.KellyFraction > 1 {
			errors = append(errors, ValidationError{
				Field:   "backtest.kelly_fraction",
				Message: fmt.Sprintf("Kelly fraction must be in (0, 1], got %v", b.KellyFraction),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "backtest.position_sizing",
			Message: fmt.Sprintf("Invalid position sizing '%s'. Must be fixed, percent or kelly", b.PositionSizing),
		})
	}

	if b.Workers < 0 {
		errors = append(errors, ValidationError{
			Field:   "backtest.workers",
			Message: "Workers cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateData() ValidationErrors {
	var errors ValidationErrors
	d := c.Data

	switch d.Source {
	case market.FormatCSV, market.FormatParquet:
		if d.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "data.dir",
				Message: fmt.Sprintf("Data directory is required for %s source", d.Source),
			})
		}
	case SourcePostgres:
	default:
		errors = append(errors, ValidationError{
			Field:   "data.source",
			Message: fmt.Sprintf("Invalid data source '%s'. Must be csv, parquet or postgres", d.Source),
		})
	}

	if len(d.Assets) == 0 {
		errors = append(errors, ValidationError{
			Field:   "data.assets",
			Message: "At least one asset is required",
		})
	}
	if len(d.Timeframes) == 0 {
		errors = append(errors, ValidationError{
			Field:   "data.timeframes",
			Message: "At least one timeframe is required",
		})
	}
	for _, tf := range d.Timeframes {
		if _, err := market.ParseTimeframe(tf); err != nil {
			errors = append(errors, ValidationError{
				Field:   "data.timeframes",
				Message: err.Error(),
			})
		}
	}
	if d.DeriveTimeframes {
		if _, err := market.ParseTimeframe(d.BaseTimeframe); err != nil {
			errors = append(errors, ValidationError{
				Field:   "data.base_timeframe",
				Message: fmt.Sprintf("A valid base timeframe is required to derive timeframes: %v", err),
			})
		}
	}
	if _, err := market.ParseResampleLabel(d.ResampleLabel); err != nil {
		errors = append(errors, ValidationError{
			Field:   "data.resample_label",
			Message: err.Error(),
		})
	}
	if d.SupportResistanceWindow < 0 {
		errors = append(errors, ValidationError{
			Field:   "data.support_resistance_window",
			Message: "Support/resistance window cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateOptimization() ValidationErrors {
	var errors ValidationErrors
	o := c.Optimization

	if o.Workers < 0 {
		errors = append(errors, ValidationError{Field: "optimization.workers", Message: "Workers cannot be negative"})
	}
	if o.RandomMaxAttemptsFactor <= 0 {
		errors = append(errors, ValidationError{
			Field:   "optimization.random_max_attempts_factor",
			Message: "Max attempts factor must be positive",
		})
	}
	if o.MonteCarloSimulations <= 0 {
		errors = append(errors, ValidationError{
			Field:   "optimization.monte_carlo_simulations",
			Message: "Simulation count must be positive",
		})
	}
	if o.MonteCarloNoiseStd < 0 {
		errors = append(errors, ValidationError{
			Field:   "optimization.monte_carlo_noise_std",
			Message: "Noise standard deviation cannot be negative",
		})
	}
	if o.TopN <= 0 {
		errors = append(errors, ValidationError{Field: "optimization.top_n", Message: "Top N must be positive"})
	}
	if o.RefinementStep < 0 {
		errors = append(errors, ValidationError{
			Field:   "optimization.refinement_step",
			Message: "Refinement step cannot be negative",
		})
	}
	if o.Step <= 0 {
		errors = append(errors, ValidationError{Field: "optimization.step", Message: "Step must be positive"})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	// only checked when something talks to Postgres
	if !c.Data.UsesDatabase() && !c.Database.PersistJobs {
		return errors
	}
	if c.Database.DSN == "" {
		if c.Database.Host == "" {
			errors = append(errors, ValidationError{Field: "database.host", Message: "Database host is required"})
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errors = append(errors, ValidationError{
				Field:   "database.port",
				Message: fmt.Sprintf("Invalid database port %d", c.Database.Port),
			})
		}
		if c.Database.Database == "" {
			errors = append(errors, ValidationError{Field: "database.database", Message: "Database name is required"})
		}
	}
	if c.Database.PoolSize <= 0 {
		errors = append(errors, ValidationError{Field: "database.pool_size", Message: "Pool size must be positive"})
	}

	return errors
}

func (c *Config) validateMonitoring() ValidationErrors {
	var errors ValidationErrors

	if c.Monitoring.EnableMetrics && (c.Monitoring.Port <= 0 || c.Monitoring.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "monitoring.port",
			Message: fmt.Sprintf("Invalid metrics port %d", c.Monitoring.Port),
		})
	}

	return errors
}
