package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settleload/internal/registry"
	"settleload/internal/transport"
)

const fullConfig = `
scenario_file: scenario.json
target: localhost:9092
rest_api: http://settlements:3600
actors: 8
duration: 2m
max_iterations: 1000
warmup_iterations: 10
http_timeout: 5s
queue_cap: 500
log_level: debug
metrics_addr: ":9100"
load_profile:
  phases:
    - name: ramp
      duration: 30s
      start_actors: 1
      end_actors: 10
    - name: steady
      duration: 1m
      actors: 10
      rps: 200
thresholds:
  sample_duration:
    p95: 500ms
  sample_failed:
    rate: 1%
    ignore: [dependency_unavailable]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, "scenario.json", cfg.ScenarioFile)
	assert.Equal(t, "localhost:9092", cfg.Target)
	assert.Equal(t, transport.ModeAsync, cfg.Mode())
	assert.Equal(t, "http://settlements:3600", cfg.SyncEndpoint())
	assert.Equal(t, 8, cfg.Actors)
	assert.Equal(t, 2*time.Minute, cfg.Duration)
	assert.Equal(t, 1000, cfg.MaxIterations)
	assert.Equal(t, 10, cfg.WarmupIterations)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 500, cfg.QueueCap)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsAddr)

	require.NotNil(t, cfg.LoadProfile)
	require.Len(t, cfg.LoadProfile.Phases, 2)
	assert.Equal(t, Phase{Name: "ramp", Duration: 30 * time.Second, StartActors: 1, EndActors: 10}, cfg.LoadProfile.Phases[0])
	assert.Equal(t, 200, cfg.LoadProfile.Phases[1].RPS)
	assert.Equal(t, 90*time.Second, cfg.LoadProfile.TotalDuration())

	require.NotNil(t, cfg.Thresholds)
	require.NotNil(t, cfg.Thresholds.SampleDuration)
	assert.Equal(t, 500*time.Millisecond, cfg.Thresholds.SampleDuration.P95)
	assert.Equal(t, "1%", cfg.Thresholds.SampleFailed.Rate)
	assert.Equal(t, []string{"dependency_unavailable"}, cfg.Thresholds.SampleFailed.Ignore)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "target: http://localhost:3600\nscenario_file: s.json\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultTopic, cfg.Topic)
	assert.Equal(t, 1, cfg.Actors)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, DefaultBatchLookback, cfg.BatchLookback)
	assert.Equal(t, registry.DefaultCapacity, cfg.QueueCap)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Nil(t, cfg.LoadProfile)
	assert.Nil(t, cfg.Thresholds)

	assert.Equal(t, transport.ModeSync, cfg.Mode())
	assert.Equal(t, "http://localhost:3600", cfg.SyncEndpoint())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SETTLELOAD_ACTORS", "32")
	t.Setenv("SETTLELOAD_TARGET", "http://override:8080")
	t.Setenv("SETTLELOAD_BATCH_LOOKBACK", "5m")

	cfg, err := Load(writeConfig(t, fullConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Actors)
	assert.Equal(t, "http://override:8080", cfg.Target)
	assert.Equal(t, 5*time.Minute, cfg.BatchLookback)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SETTLELOAD_ACTORS", "32")

	flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flags.Int("actors", 1, "")
	flags.Int("max-iterations", 0, "")
	flags.String("target", "", "")
	require.NoError(t, flags.Parse([]string{"--actors", "4", "--max-iterations", "7"}))

	cfg, err := Load(writeConfig(t, fullConfig), flags)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Actors)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, "localhost:9092", cfg.Target, "unset flags must not override the file")
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("SETTLELOAD_SCENARIO_FILE", "from-env.json")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env.json", cfg.ScenarioFile)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "actors: [1, 2\n"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ScenarioFile:  "s.json",
			Target:        "http://localhost:3600",
			Actors:        1,
			HTTPTimeout:   time.Second,
			BatchLookback: time.Minute,
			QueueCap:      10,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing scenario", func(c *Config) { c.ScenarioFile = "" }, "scenario_file"},
		{"missing target", func(c *Config) { c.Target = " " }, "target is required"},
		{"broker without rest api", func(c *Config) { c.Target = "kafka:9092" }, "rest_api"},
		{"no actors", func(c *Config) { c.Actors = 0 }, "actors"},
		{"negative iterations", func(c *Config) { c.MaxIterations = -1 }, "max_iterations"},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, "http_timeout"},
		{"zero lookback", func(c *Config) { c.BatchLookback = 0 }, "batch_lookback"},
		{"zero queue cap", func(c *Config) { c.QueueCap = 0 }, "queue_cap"},
		{"empty profile", func(c *Config) { c.LoadProfile = &LoadProfile{} }, "at least one phase"},
		{"zero phase duration", func(c *Config) {
			c.LoadProfile = &LoadProfile{Phases: []Phase{{Name: "p", Actors: 1}}}
		}, "duration must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	cfg.Actors = 0
	cfg.LoadProfile = &LoadProfile{Phases: []Phase{{Name: "p", Duration: time.Second, Actors: 2}}}
	assert.NoError(t, cfg.Validate(), "a load profile drives actor counts")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := (&Config{}).Validate()
	require.Error(t, err)
	for _, want := range []string{"scenario_file", "target", "actors", "http_timeout", "batch_lookback", "queue_cap"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadProfile_TotalDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), (&LoadProfile{}).TotalDuration())
	lp := &LoadProfile{Phases: []Phase{{Duration: time.Second}, {Duration: 2 * time.Second}}}
	assert.Equal(t, 3*time.Second, lp.TotalDuration())
}
