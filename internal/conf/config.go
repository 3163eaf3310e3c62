// Package conf loads and validates audiod settings.
package conf

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Version can be set at build time via ldflags.
var Version = "dev"

// Settings is the root configuration structure.
type Settings struct {
	Main  MainSettings  `mapstructure:"main"`
	Audio AudioSettings `mapstructure:"audio"`
	Debug DebugSettings `mapstructure:"debug"`
}

// MainSettings covers process-level concerns.
type MainSettings struct {
	Name string      `mapstructure:"name"`
	Log  LogSettings `mapstructure:"log"`
	// Listen addresses; empty disables the endpoint.
	APIListen     string `mapstructure:"apilisten"`
	MetricsListen string `mapstructure:"metricslisten"`
}

// LogSettings controls structured log output.
type LogSettings struct {
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	JSON       bool   `mapstructure:"json"`
	MaxSizeMB  int    `mapstructure:"maxsize"`
	MaxBackups int    `mapstructure:"maxbackups"`
	MaxAgeDays int    `mapstructure:"maxage"`
}

// AudioSettings bounds stream construction and patch bookkeeping.
type AudioSettings struct {
	// MinBufferFrames is the smallest accepted stream buffer.
	MinBufferFrames int `mapstructure:"minbufferframes"`
	// MaxBufferBytes caps bufferSizeFrames*frameSize for any stream.
	MaxBufferBytes int `mapstructure:"maxbufferbytes"`
	// LatencyMs is the flat per-sink latency estimate reported for patches
	// and transfers.
	LatencyMs int `mapstructure:"latencyms"`
}

// DebugSettings is explicit injected debug state, never ambient globals.
type DebugSettings struct {
	// SimulateDeviceConnections accepts external device connections without
	// querying hardware.
	SimulateDeviceConnections bool `mapstructure:"simulatedeviceconnections"`
	// TransientStateDelayMs is the dwell time before a transient stream
	// state completes.
	TransientStateDelayMs int `mapstructure:"transientstatedelayms"`
	// ForceTransientBurst truncates a full write by one frame to exercise
	// the TRANSFERRING path.
	ForceTransientBurst bool `mapstructure:"forcetransientburst"`
	// ForceSynchronousDrain completes drains immediately instead of
	// entering DRAINING.
	ForceSynchronousDrain bool `mapstructure:"forcesynchronousdrain"`
}

var (
	settingsInstance *Settings
	once             sync.Once
)

func setDefaults() {
	viper.SetDefault("main.name", "audiod")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.path", "")
	viper.SetDefault("main.log.json", true)
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)
	viper.SetDefault("main.apilisten", "localhost:8770")
	viper.SetDefault("main.metricslisten", "localhost:8771")

	viper.SetDefault("audio.minbufferframes", 256)
	viper.SetDefault("audio.maxbufferbytes", 128*1024*1024)
	viper.SetDefault("audio.latencyms", 10)

	viper.SetDefault("debug.simulatedeviceconnections", false)
	viper.SetDefault("debug.transientstatedelayms", 0)
	viper.SetDefault("debug.forcetransientburst", false)
	viper.SetDefault("debug.forcesynchronousdrain", false)
}

// Load reads the configuration from file and environment and returns the
// validated settings.
func Load() (*Settings, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/audiod")
	viper.SetEnvPrefix("audiod")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Defaults only.
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Setting returns the singleton settings, loading them on first use.
func Setting() *Settings {
	once.Do(func() {
		s, err := Load()
		if err != nil {
			slog.Error("failed to load settings, using defaults", "error", err)
			s = Default()
		}
		settingsInstance = s
	})
	return settingsInstance
}

// Default returns settings populated with the built-in defaults, without
// touching the filesystem. Used by tests.
func Default() *Settings {
	return &Settings{
		Main: MainSettings{
			Name: "audiod",
			Log: LogSettings{
				Level:      "info",
				JSON:       true,
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			APIListen:     "localhost:8770",
			MetricsListen: "localhost:8771",
		},
		Audio: AudioSettings{
			MinBufferFrames: 256,
			MaxBufferBytes:  128 * 1024 * 1024,
			LatencyMs:       10,
		},
	}
}

// Validate checks invariants that viper cannot express.
func (s *Settings) Validate() error {
	if s.Audio.MinBufferFrames <= 0 {
		return fmt.Errorf("audio.minbufferframes must be positive, got %d", s.Audio.MinBufferFrames)
	}
	if s.Audio.MaxBufferBytes <= 0 {
		return fmt.Errorf("audio.maxbufferbytes must be positive, got %d", s.Audio.MaxBufferBytes)
	}
	if s.Audio.LatencyMs < 0 {
		return fmt.Errorf("audio.latencyms must not be negative, got %d", s.Audio.LatencyMs)
	}
	if s.Debug.TransientStateDelayMs < 0 {
		return fmt.Errorf("debug.transientstatedelayms must not be negative, got %d", s.Debug.TransientStateDelayMs)
	}
	switch strings.ToLower(s.Main.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("main.log.level %q is not a known level", s.Main.Log.Level)
	}
	return nil
}

// LogLevel maps the configured level name to a slog level.
func (s *Settings) LogLevel() slog.Level {
	switch strings.ToLower(s.Main.Log.Level) {
	case "trace":
		return slog.Level(-8)
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
