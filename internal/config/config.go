package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Score  ScoreConfig  `yaml:"score" mapstructure:"score"`
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the raw source files.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// OutputConfig configures the exported artifacts.
type OutputConfig struct {
	Path         string `yaml:"path" mapstructure:"path"`
	SeriesPath   string `yaml:"series_path" mapstructure:"series_path"`
	CriticalOnly bool   `yaml:"critical_only" mapstructure:"critical_only"`
}

// ScoreConfig tunes the outlier detector.
type ScoreConfig struct {
	Contamination float64 `yaml:"contamination" mapstructure:"contamination"`
	Estimators    int     `yaml:"estimators" mapstructure:"estimators"`
	Subsample     int     `yaml:"subsample" mapstructure:"subsample"`
	Seed          int64   `yaml:"seed" mapstructure:"seed"`
}

// ModelConfig identifies the persisted model.
type ModelConfig struct {
	ID string `yaml:"id" mapstructure:"id"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DRISHTI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("output.path", "data/final_scored_data.csv")
	v.SetDefault("output.series_path", "data/daily_timeseries.csv")
	v.SetDefault("output.critical_only", false)
	v.SetDefault("score.contamination", 0.01)
	v.SetDefault("score.estimators", 100)
	v.SetDefault("score.subsample", 256)
	v.SetDefault("score.seed", 42)
	v.SetDefault("model.id", "isolation-forest-v1")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/drishti.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
