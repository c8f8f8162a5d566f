// Package config loads engine, cache and logging settings from a TOML file,
// LOOP_* environment variables and an optional .env file
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/mrcode/loop-engine/internal/models"
)

const (
	appName    = "loop-engine"
	configName = "config"
	configType = "toml"
	envPrefix  = "LOOP"
	fileMode   = 0o600
	dirMode    = 0o750
)

// Cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// ErrExists is returned when writing a default file over an existing one
var ErrExists = errors.New("config file already exists")

// Config is the process configuration
type Config struct {
	Log        LogConfig        `toml:"log" mapstructure:"log"`
	Cache      CacheConfig      `toml:"cache" mapstructure:"cache"`
	Redis      RedisConfig      `toml:"redis" mapstructure:"redis"`
	Validation ValidationConfig `toml:"validation" mapstructure:"validation"`
	Engine     EngineConfig     `toml:"engine" mapstructure:"engine"`
}

// LogConfig selects logger level and encoding
type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"` // json or console
}

// CacheConfig selects the effect cache
type CacheConfig struct {
	Backend string  `toml:"backend" mapstructure:"backend"` // none, memory or redis
	TTL     float64 `toml:"ttl" mapstructure:"ttl"`         // Minutes, 0 = no expiry
	Prefix  string  `toml:"prefix" mapstructure:"prefix"`
}

// RedisConfig holds the Redis connection parameters
type RedisConfig struct {
	Addr     string `toml:"addr" mapstructure:"addr"`
	Password string `toml:"password" mapstructure:"password"`
	DB       int    `toml:"db" mapstructure:"db"`
}

// ValidationConfig toggles the plausibility admission check
type ValidationConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

// EngineConfig is the file form of models.Settings. Durations are minutes.
type EngineConfig struct {
	MomentumWindow                float64   `toml:"momentum_window" mapstructure:"momentum_window"`
	MomentumDuration              float64   `toml:"momentum_duration" mapstructure:"momentum_duration"`
	SuspendThreshold              float64   `toml:"suspend_threshold" mapstructure:"suspend_threshold"` // mg/dL, 0 = correction range minimum
	MaxBasalRate                  float64   `toml:"max_basal_rate" mapstructure:"max_basal_rate"`
	MaxBolus                      float64   `toml:"max_bolus" mapstructure:"max_bolus"`
	RecencyInterval               float64   `toml:"recency_interval" mapstructure:"recency_interval"`
	RetrospectiveGroupingInterval float64   `toml:"retrospective_grouping_interval" mapstructure:"retrospective_grouping_interval"`
	RetrospectiveEffectDuration   float64   `toml:"retrospective_effect_duration" mapstructure:"retrospective_effect_duration"`
	DefaultAbsorptionTimes        []float64 `toml:"default_absorption_times" mapstructure:"default_absorption_times"`
	AbsorptionTimeOverrun         float64   `toml:"absorption_time_overrun" mapstructure:"absorption_time_overrun"`
	CarbDelay                     float64   `toml:"carb_delay" mapstructure:"carb_delay"`
	InsulinDelay                  float64   `toml:"insulin_delay" mapstructure:"insulin_delay"`
	RateIncrement                 float64   `toml:"rate_increment" mapstructure:"rate_increment"`
	BolusIncrement                float64   `toml:"bolus_increment" mapstructure:"bolus_increment"`
	TempBasalDuration             float64   `toml:"temp_basal_duration" mapstructure:"temp_basal_duration"`
	ContinuationInterval          float64   `toml:"continuation_interval" mapstructure:"continuation_interval"`
	Delta                         float64   `toml:"delta" mapstructure:"delta"`
	DynamicCarbAbsorption         bool      `toml:"dynamic_carb_absorption" mapstructure:"dynamic_carb_absorption"`
	RetrospectiveCorrection       bool      `toml:"retrospective_correction" mapstructure:"retrospective_correction"`
	ParallelEffects               bool      `toml:"parallel_effects" mapstructure:"parallel_effects"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Log:        LogConfig{Level: "info", Format: "json"},
		Cache:      CacheConfig{Backend: CacheNone, TTL: 15, Prefix: "loop:effects:"},
		Redis:      RedisConfig{Addr: "localhost:6379"},
		Validation: ValidationConfig{Enabled: true},
		Engine:     FromSettings(models.DefaultSettings()),
	}
}

// FromSettings converts engine settings to their file form
func FromSettings(s models.Settings) EngineConfig {
	var threshold float64
	if s.SuspendThreshold != nil {
		threshold = *s.SuspendThreshold
	}
	absorption := make([]float64, len(s.DefaultAbsorptionTimes))
	for i, d := range s.DefaultAbsorptionTimes {
		absorption[i] = d.Minutes()
	}
	return EngineConfig{
		MomentumWindow:                s.MomentumWindow.Minutes(),
		MomentumDuration:              s.MomentumDuration.Minutes(),
		SuspendThreshold:              threshold,
		MaxBasalRate:                  s.MaxBasalRate,
		MaxBolus:                      s.MaxBolus,
		RecencyInterval:               s.RecencyInterval.Minutes(),
		RetrospectiveGroupingInterval: s.RetrospectiveGroupingInterval.Minutes(),
		RetrospectiveEffectDuration:   s.RetrospectiveEffectDuration.Minutes(),
		DefaultAbsorptionTimes:        absorption,
		AbsorptionTimeOverrun:         s.AbsorptionTimeOverrun,
		CarbDelay:                     s.CarbDelay.Minutes(),
		InsulinDelay:                  s.InsulinDelay.Minutes(),
		RateIncrement:                 s.RateIncrement,
		BolusIncrement:                s.BolusIncrement,
		TempBasalDuration:             s.TempBasalDuration.Minutes(),
		ContinuationInterval:          s.ContinuationInterval.Minutes(),
		Delta:                         s.Delta.Minutes(),
		DynamicCarbAbsorption:         s.DynamicCarbAbsorption,
		RetrospectiveCorrection:       s.RetrospectiveCorrection,
		ParallelEffects:               s.ParallelEffects,
	}
}

// Settings converts the file form back to engine settings. Absorption
// presets missing from the file keep their defaults.
func (e EngineConfig) Settings() models.Settings {
	s := models.DefaultSettings()
	s.MomentumWindow = models.Minutes(e.MomentumWindow)
	s.MomentumDuration = models.Minutes(e.MomentumDuration)
	if e.SuspendThreshold > 0 {
		v := e.SuspendThreshold
		s.SuspendThreshold = &v
	}
	s.MaxBasalRate = e.MaxBasalRate
	s.MaxBolus = e.MaxBolus
	s.RecencyInterval = models.Minutes(e.RecencyInterval)
	s.RetrospectiveGroupingInterval = models.Minutes(e.RetrospectiveGroupingInterval)
	s.RetrospectiveEffectDuration = models.Minutes(e.RetrospectiveEffectDuration)
	for i, m := range e.DefaultAbsorptionTimes {
		if i >= len(s.DefaultAbsorptionTimes) {
			break
		}
		s.DefaultAbsorptionTimes[i] = models.Minutes(m)
	}
	s.AbsorptionTimeOverrun = e.AbsorptionTimeOverrun
	s.CarbDelay = models.Minutes(e.CarbDelay)
	s.InsulinDelay = models.Minutes(e.InsulinDelay)
	s.RateIncrement = e.RateIncrement
	s.BolusIncrement = e.BolusIncrement
	s.TempBasalDuration = models.Minutes(e.TempBasalDuration)
	s.ContinuationInterval = models.Minutes(e.ContinuationInterval)
	s.Delta = models.Minutes(e.Delta)
	s.DynamicCarbAbsorption = e.DynamicCarbAbsorption
	s.RetrospectiveCorrection = e.RetrospectiveCorrection
	s.ParallelEffects = e.ParallelEffects
	return s
}

// Validate checks values the engine cannot run with
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("cache: redis backend needs redis.addr")
		}
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache: ttl must not be negative")
	}
	if c.Engine.Delta <= 0 {
		return errors.New("engine: delta must be positive")
	}
	if c.Engine.TempBasalDuration <= 0 {
		return errors.New("engine: temp_basal_duration must be positive")
	}
	if c.Engine.MaxBasalRate < 0 || c.Engine.MaxBolus < 0 {
		return errors.New("engine: maximum rates must not be negative")
	}
	return nil
}

// Dir returns the per-user configuration directory
func Dir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, appName), nil
}

// DefaultPath returns the path of the configuration file in Dir
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+"."+configType), nil
}

// LoadEnv reads a .env file into the process environment. A missing file
// is not an error.
func LoadEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads the configuration. An explicit path must exist; without one
// the file in Dir is used if present. LOOP_* variables override the file,
// e.g. LOOP_ENGINE_MAX_BOLUS or LOOP_LOG_LEVEL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.prefix", d.Cache.Prefix)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("validation.enabled", d.Validation.Enabled)

	e := d.Engine
	v.SetDefault("engine.momentum_window", e.MomentumWindow)
	v.SetDefault("engine.momentum_duration", e.MomentumDuration)
	v.SetDefault("engine.suspend_threshold", e.SuspendThreshold)
	v.SetDefault("engine.max_basal_rate", e.MaxBasalRate)
	v.SetDefault("engine.max_bolus", e.MaxBolus)
	v.SetDefault("engine.recency_interval", e.RecencyInterval)
	v.SetDefault("engine.retrospective_grouping_interval", e.RetrospectiveGroupingInterval)
	v.SetDefault("engine.retrospective_effect_duration", e.RetrospectiveEffectDuration)
	v.SetDefault("engine.default_absorption_times", e.DefaultAbsorptionTimes)
	v.SetDefault("engine.absorption_time_overrun", e.AbsorptionTimeOverrun)
	v.SetDefault("engine.carb_delay", e.CarbDelay)
	v.SetDefault("engine.insulin_delay", e.InsulinDelay)
	v.SetDefault("engine.rate_increment", e.RateIncrement)
	v.SetDefault("engine.bolus_increment", e.BolusIncrement)
	v.SetDefault("engine.temp_basal_duration", e.TempBasalDuration)
	v.SetDefault("engine.continuation_interval", e.ContinuationInterval)
	v.SetDefault("engine.delta", e.Delta)
	v.SetDefault("engine.dynamic_carb_absorption", e.DynamicCarbAbsorption)
	v.SetDefault("engine.retrospective_correction", e.RetrospectiveCorrection)
	v.SetDefault("engine.parallel_effects", e.ParallelEffects)
}

// Encode writes cfg as TOML
func Encode(w io.Writer, cfg *Config) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(cfg)
}

// WriteDefault writes the default configuration to path, creating its
// directory. An existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}

	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, fileMode)
}
