package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Data       DataConfig       `mapstructure:"data"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// OptimizerConfig contains genetic search settings
type OptimizerConfig struct {
	PopulationSize    int     `mapstructure:"population_size"`    // 50
	Generations       int     `mapstructure:"generations"`        // 100
	ElitistSize       int     `mapstructure:"elitist_size"`       // 8
	EliteCap          int     `mapstructure:"elite_cap"`          // 20
	SwapProbability   float64 `mapstructure:"swap_probability"`   // 0.5
	MutateProbability float64 `mapstructure:"mutate_probability"` // 0.1
	TournamentSize    int     `mapstructure:"tournament_size"`    // 3
	Seed              int64   `mapstructure:"seed"`               // 0 = wall clock
}

// EvaluationConfig contains fitness evaluation settings
type EvaluationConfig struct {
	Workers          int      `mapstructure:"workers"` // 0 = CPU count
	Parallel         bool     `mapstructure:"parallel"`
	SplitGenerations int      `mapstructure:"split_generations"` // 3
	Objectives       []string `mapstructure:"objectives"`        // ["profit", "loss", ...]
}

// TrackerConfig contains parameter-evolution tracker settings
type TrackerConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	HistoryLimit        int     `mapstructure:"history_limit"`        // 10000
	ConvergenceWindow   int     `mapstructure:"convergence_window"`   // 5
	ConvergenceFraction float64 `mapstructure:"convergence_fraction"` // 0.05
	JumpFraction        float64 `mapstructure:"jump_fraction"`        // 0.15
}

// DataConfig contains market data input settings
type DataConfig struct {
	Strategy string   `mapstructure:"strategy"` // strategy genome file (yaml or json)
	Splits   []string `mapstructure:"splits"`   // candle CSV files, one per split
	Output   string   `mapstructure:"output"`   // best strategy export path
	CSVLog   string   `mapstructure:"csv_log"`  // optional per-generation CSV log
}

// ProgressConfig contains dashboard streaming settings
type ProgressConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("BERLIN")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
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
	// App defaults
	v.SetDefault("app.name", "berlin-optimizer")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Optimizer defaults
	v.SetDefault("optimizer.population_size", 50)
	v.SetDefault("optimizer.generations", 100)
	v.SetDefault("optimizer.elitist_size", 8)
	v.SetDefault("optimizer.elite_cap", 20)
	v.SetDefault("optimizer.swap_probability", 0.5)
	v.SetDefault("optimizer.mutate_probability", 0.1)
	v.SetDefault("optimizer.tournament_size", 3)
	v.SetDefault("optimizer.seed", 0)

	// Evaluation defaults
	v.SetDefault("evaluation.workers", 0)
	v.SetDefault("evaluation.parallel", true)
	v.SetDefault("evaluation.split_generations", 3)
	v.SetDefault("evaluation.objectives", []string{"profit", "loss", "win_rate"})

	// Tracker defaults
	v.SetDefault("tracker.enabled", true)
	v.SetDefault("tracker.history_limit", 10000)
	v.SetDefault("tracker.convergence_window", 5)
	v.SetDefault("tracker.convergence_fraction", 0.05)
	v.SetDefault("tracker.jump_fraction", 0.15)

	// Data defaults
	v.SetDefault("data.strategy", "strategy.yaml")
	v.SetDefault("data.splits", []string{})
	v.SetDefault("data.output", "best_strategy.yaml")
	v.SetDefault("data.csv_log", "")

	// Progress defaults
	v.SetDefault("progress.enabled", false)
	v.SetDefault("progress.host", "0.0.0.0")
	v.SetDefault("progress.port", 8090)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetProgressAddr returns the progress server address
func (c *ProgressConfig) GetProgressAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
