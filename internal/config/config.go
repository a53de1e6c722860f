package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"goalcast/domain/match"
	"goalcast/domain/model"
	"goalcast/internal/errors"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Pipeline Pipeline     `yaml:"pipeline"`
	Paths    PathConfig   `yaml:"paths"`
	Index    IndexConfig  `yaml:"index"`
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
}

// Pipeline holds every knob of the training pipeline. It is passed by
// value into components, so no component can mutate another's view.
type Pipeline struct {
	NumFeatures           int               `yaml:"num_features"`
	ClusteringThreshold   float64           `yaml:"clustering_threshold"`
	MissingValueThreshold int               `yaml:"missing_value_threshold"`
	ScoringMetric         model.Metric      `yaml:"scoring_metric"`
	CVFolds               int               `yaml:"cv_fold_count"`
	Voting                model.Voting      `yaml:"voting_strategy"`
	Seed                  int64             `yaml:"seed"`
	GoalThreshold         float64           `yaml:"goal_threshold"`
	RollingWindow         int               `yaml:"rolling_window"`
	SeasonCutoffMonth     time.Month        `yaml:"season_cutoff_month"`
	PointInTimeAverages   bool              `yaml:"point_in_time_averages"`
	HalvingFactor         int               `yaml:"halving_factor"`
	SearchWorkers         int               `yaml:"search_workers"`
	SearchTimeout         time.Duration     `yaml:"search_timeout"`
	Parallelism           int               `yaml:"parallelism"`
	LeakageColumns        []string          `yaml:"leakage_columns"`
	Families              []model.FamilyTag `yaml:"families"`
}

// PathConfig holds file system paths
type PathConfig struct {
	RawDir       string `yaml:"raw_dir"`
	ProcessedDir string `yaml:"processed_dir"`
	ModelsDir    string `yaml:"models_dir"`
}

// IndexConfig holds the artifact index database settings. A DSN starting
// with postgres:// selects lib/pq, anything else is a sqlite file path.
type IndexConfig struct {
	DSN string `yaml:"dsn"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPipeline returns the pipeline defaults
func DefaultPipeline() Pipeline {
	return Pipeline{
		NumFeatures:           20,
		ClusteringThreshold:   0.5,
		MissingValueThreshold: 10,
		ScoringMetric:         model.MetricAccuracy,
		CVFolds:               10,
		Voting:                model.VotingSoft,
		Seed:                  42,
		GoalThreshold:         2.5,
		RollingWindow:         5,
		SeasonCutoffMonth:     match.DefaultSeasonCutoff,
		HalvingFactor:         3,
		SearchWorkers:         runtime.GOMAXPROCS(0),
		SearchTimeout:         10 * time.Minute,
		Parallelism:           1,
		LeakageColumns:        []string{"FTHG", "FTAG", "HTHG", "HTAG", "HG", "AG"},
		Families:              append([]model.FamilyTag(nil), model.AllFamilies...),
	}
}

// Default returns a complete default configuration
func Default() *Config {
	return &Config{
		Pipeline: DefaultPipeline(),
		Paths: PathConfig{
			RawDir:       "data/raw",
			ProcessedDir: "data/processed",
			ModelsDir:    "models",
		},
		Index:  IndexConfig{DSN: "models/index.db"},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from .env, environment variables and an
// optional YAML file (GOALCAST_CONFIG), then validates it.
func Load() (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	config := Default()

	if path := os.Getenv("GOALCAST_CONFIG"); path != "" {
		if err := loadYAML(path, config); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	if err := loadEnv(config); err != nil {
		return nil, errors.Wrap(err, "failed to load environment configuration")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadYAML(path string, config *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Decoding into the populated defaults keeps keys the file omits.
	if err := yaml.Unmarshal(raw, config); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

func loadEnv(config *Config) error {
	p := &config.Pipeline
	p.NumFeatures = getEnvIntOrDefault("GOALCAST_NUM_FEATURES", p.NumFeatures)
	p.ClusteringThreshold = getEnvFloatOrDefault("GOALCAST_CLUSTERING_THRESHOLD", p.ClusteringThreshold)
	p.MissingValueThreshold = getEnvIntOrDefault("GOALCAST_MISSING_VALUE_THRESHOLD", p.MissingValueThreshold)
	p.CVFolds = getEnvIntOrDefault("GOALCAST_CV_FOLDS", p.CVFolds)
	p.Seed = int64(getEnvIntOrDefault("GOALCAST_SEED", int(p.Seed)))
	p.GoalThreshold = getEnvFloatOrDefault("GOALCAST_GOAL_THRESHOLD", p.GoalThreshold)
	p.RollingWindow = getEnvIntOrDefault("GOALCAST_ROLLING_WINDOW", p.RollingWindow)
	p.SeasonCutoffMonth = time.Month(getEnvIntOrDefault("GOALCAST_SEASON_CUTOFF_MONTH", int(p.SeasonCutoffMonth)))
	p.PointInTimeAverages = getEnvBoolOrDefault("GOALCAST_POINT_IN_TIME_AVERAGES", p.PointInTimeAverages)
	p.HalvingFactor = getEnvIntOrDefault("GOALCAST_HALVING_FACTOR", p.HalvingFactor)
	p.SearchWorkers = getEnvIntOrDefault("GOALCAST_SEARCH_WORKERS", p.SearchWorkers)
	p.SearchTimeout = getEnvDurationOrDefault("GOALCAST_SEARCH_TIMEOUT", p.SearchTimeout)
	p.Parallelism = getEnvIntOrDefault("GOALCAST_PARALLELISM", p.Parallelism)

	if v := os.Getenv("GOALCAST_SCORING_METRIC"); v != "" {
		metric, err := model.ParseMetric(v)
		if err != nil {
			return errors.ConfigInvalid(err.Error())
		}
		p.ScoringMetric = metric
	}
	if v := os.Getenv("GOALCAST_VOTING"); v != "" {
		voting, err := model.ParseVoting(v)
		if err != nil {
			return errors.ConfigInvalid(err.Error())
		}
		p.Voting = voting
	}
	if v := os.Getenv("GOALCAST_LEAKAGE_COLUMNS"); v != "" {
		p.LeakageColumns = splitList(v)
	}
	if v := os.Getenv("GOALCAST_FAMILIES"); v != "" {
		p.Families = nil
		for _, name := range splitList(v) {
			p.Families = append(p.Families, model.FamilyTag(name))
		}
	}

	config.Paths.RawDir = getEnvOrDefault("GOALCAST_RAW_DIR", config.Paths.RawDir)
	config.Paths.ProcessedDir = getEnvOrDefault("GOALCAST_PROCESSED_DIR", config.Paths.ProcessedDir)
	config.Paths.ModelsDir = getEnvOrDefault("GOALCAST_MODELS_DIR", config.Paths.ModelsDir)
	config.Index.DSN = getEnvOrDefault("GOALCAST_INDEX_DSN", config.Index.DSN)
	config.Server.Addr = getEnvOrDefault("GOALCAST_ADDR", config.Server.Addr)
	config.Log.Level = getEnvOrDefault("LOG_LEVEL", config.Log.Level)
	config.Log.Format = getEnvOrDefault("LOG_FORMAT", config.Log.Format)
	return nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.Paths.ModelsDir == "" {
		return errors.ConfigInvalid("models directory is required")
	}
	return nil
}

// MaxNumFeatures caps the mRMR preselection size
const MaxNumFeatures = 64

// Validate checks the pipeline knobs
func (p Pipeline) Validate() error {
	if p.NumFeatures < 1 || p.NumFeatures > MaxNumFeatures {
		return errors.ConfigInvalid(fmt.Sprintf("num_features must be within 1..%d", MaxNumFeatures))
	}
	if p.ClusteringThreshold < 0 {
		return errors.ConfigInvalid("clustering_threshold must be non-negative")
	}
	if p.MissingValueThreshold < 0 {
		return errors.ConfigInvalid("missing_value_threshold must be non-negative")
	}
	if _, err := model.ParseMetric(string(p.ScoringMetric)); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if _, err := model.ParseVoting(string(p.Voting)); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if p.CVFolds < 2 {
		return errors.ConfigInvalid("cv_fold_count must be at least 2")
	}
	if p.RollingWindow < 1 {
		return errors.ConfigInvalid("rolling_window must be at least 1")
	}
	if p.SeasonCutoffMonth < time.January || p.SeasonCutoffMonth > time.December {
		return errors.ConfigInvalid("season_cutoff_month must be within 1..12")
	}
	if p.HalvingFactor < 2 {
		return errors.ConfigInvalid("halving_factor must be at least 2")
	}
	if p.SearchWorkers < 1 || p.Parallelism < 1 {
		return errors.ConfigInvalid("search_workers and parallelism must be at least 1")
	}
	if p.SearchTimeout <= 0 {
		return errors.ConfigInvalid("search_timeout must be positive")
	}
	if len(p.Families) == 0 {
		return errors.ConfigInvalid("at least one model family is required")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
