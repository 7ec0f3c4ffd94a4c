// Package config loads the replay run configuration from a YAML file,
// SETTLELOAD_* environment variables and command-line flags, in rising
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"settleload/internal/collector"
	"settleload/internal/registry"
	"settleload/internal/transport"
)

// EnvPrefix prefixes every environment override, e.g. SETTLELOAD_TARGET.
const EnvPrefix = "SETTLELOAD"

const (
	DefaultTopic         = "SettlementsBcCommands"
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultBatchLookback = 20 * time.Minute
)

// Config is the root configuration structure.
type Config struct {
	ScenarioFile     string                `mapstructure:"scenario_file"`
	Target           string                `mapstructure:"target"`
	RestAPI          string                `mapstructure:"rest_api"`
	Topic            string                `mapstructure:"topic"`
	Actors           int                   `mapstructure:"actors"`
	Duration         time.Duration         `mapstructure:"duration"`
	MaxIterations    int                   `mapstructure:"max_iterations"`
	WarmupIterations int                   `mapstructure:"warmup_iterations"`
	HTTPTimeout      time.Duration         `mapstructure:"http_timeout"`
	BatchLookback    time.Duration         `mapstructure:"batch_lookback"`
	QueueCap         int                   `mapstructure:"queue_cap"`
	LogLevel         string                `mapstructure:"log_level"`
	LogFormat        string                `mapstructure:"log_format"`
	MetricsAddr      string                `mapstructure:"metrics_addr"`
	Verbose          bool                  `mapstructure:"verbose"`
	LoadProfile      *LoadProfile          `mapstructure:"load_profile"`
	Thresholds       *collector.Thresholds `mapstructure:"thresholds"`
}

// LoadProfile defines the load pattern for a run.
type LoadProfile struct {
	Phases []Phase `mapstructure:"phases"`
}

// TotalDuration returns the sum of all phase durations.
func (lp *LoadProfile) TotalDuration() time.Duration {
	var total time.Duration
	for _, p := range lp.Phases {
		total += p.Duration
	}
	return total
}

// Phase represents a single phase in the load profile. Actors holds a level
// count; StartActors and EndActors describe a linear ramp.
type Phase struct {
	Name        string        `mapstructure:"name"`
	Duration    time.Duration `mapstructure:"duration"`
	Actors      int           `mapstructure:"actors"`
	StartActors int           `mapstructure:"start_actors"`
	EndActors   int           `mapstructure:"end_actors"`
	RPS         int           `mapstructure:"rps"`
}

// Mode reports which transport the primary target selects.
func (c *Config) Mode() transport.Mode {
	return transport.ModeFor(c.Target)
}

// SyncEndpoint returns the REST base URL used for every non-transfer action.
func (c *Config) SyncEndpoint() string {
	if c.RestAPI != "" {
		return c.RestAPI
	}
	if c.Mode() == transport.ModeSync {
		return c.Target
	}
	return ""
}

// Validate checks the configuration, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.ScenarioFile == "" {
		errs = append(errs, errors.New("scenario_file is required"))
	}
	if strings.TrimSpace(c.Target) == "" {
		errs = append(errs, errors.New("target is required"))
	} else if c.SyncEndpoint() == "" {
		errs = append(errs, errors.New("rest_api is required when target is a broker address"))
	}
	if c.LoadProfile == nil && c.Actors < 1 {
		errs = append(errs, fmt.Errorf("actors must be at least 1, got %d", c.Actors))
	}
	if c.MaxIterations < 0 || c.WarmupIterations < 0 {
		errs = append(errs, errors.New("max_iterations and warmup_iterations must not be negative"))
	}
	if c.Duration < 0 {
		errs = append(errs, errors.New("duration must not be negative"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http_timeout must be positive"))
	}
	if c.BatchLookback <= 0 {
		errs = append(errs, errors.New("batch_lookback must be positive"))
	}
	if c.QueueCap < 1 {
		errs = append(errs, fmt.Errorf("queue_cap must be at least 1, got %d", c.QueueCap))
	}
	if c.LoadProfile != nil {
		if len(c.LoadProfile.Phases) == 0 {
			errs = append(errs, errors.New("load_profile needs at least one phase"))
		}
		for i, p := range c.LoadProfile.Phases {
			if p.Duration <= 0 {
				errs = append(errs, fmt.Errorf("load_profile.phases[%d] (%s): duration must be positive", i, p.Name))
			}
		}
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scenario_file", "")
	v.SetDefault("target", "")
	v.SetDefault("rest_api", "")
	v.SetDefault("topic", DefaultTopic)
	v.SetDefault("actors", 1)
	v.SetDefault("duration", time.Duration(0))
	v.SetDefault("max_iterations", 0)
	v.SetDefault("warmup_iterations", 0)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("batch_lookback", DefaultBatchLookback)
	v.SetDefault("queue_cap", registry.DefaultCapacity)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("verbose", false)
}

// Load reads path (optional), applies environment overrides and then every
// flag in flags that was set explicitly. Flag names map to keys with dashes
// turned into underscores, so --max-iterations sets max_iterations.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.Visit(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !knownKeys[key] {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("binding flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

var knownKeys = map[string]bool{
	"scenario_file": true, "target": true, "rest_api": true, "topic": true,
	"actors": true, "duration": true, "max_iterations": true, "warmup_iterations": true,
	"http_timeout": true, "batch_lookback": true, "queue_cap": true,
	"log_level": true, "log_format": true, "metrics_addr": true, "verbose": true,
}
