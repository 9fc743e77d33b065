package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Loopback TCP port the daemon listens on
	Port int

	// Playback volume, 1.0 is unity gain
	Volume float64

	// Replay the last song when the queue runs out instead of exiting
	LoopLast bool

	// How long a client waits for a freshly spawned daemon to accept connections
	ConnectTimeout time.Duration

	// Directory for history, logs, status and pid files
	DataDir string

	// Output settings for the now command
	OutputFormat     string
	OutputWidth      int
	MarqueeEnabled   bool
	MarqueeSpeed     int
	MarqueeSeparator string

	Discord DiscordConfig
	LastFM  LastFMConfig
}

// DiscordConfig holds Rich Presence settings
type DiscordConfig struct {
	Enabled bool
	AppID   string
}

// LastFMConfig holds Last.fm specific configuration
type LastFMConfig struct {
	APIKey     string
	APISecret  string
	SessionKey string

	// Username and Password authenticate with auth.getMobileSession when no
	// session key is stored.
	Username string
	Password string

	// Minimum listening time before a song is scrobbled
	Threshold time.Duration
}

// HasCredentials reports whether enough is configured to create a scrobbling session.
func (c LastFMConfig) HasCredentials() bool {
	if c.APIKey == "" || c.APISecret == "" {
		return false
	}
	return c.SessionKey != "" || (c.Username != "" && c.Password != "")
}

const (
	appName    = "pmu"
	configName = "config"
	configType = "yaml"
	envPrefix  = "PMU"
)

// dirOverride is set by the --config-dir flag.
var dirOverride string

// SetDir overrides the configuration directory.
func SetDir(dir string) {
	dirOverride = dir
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 9999)
	v.SetDefault("volume", 0.2)
	v.SetDefault("loop_last", false)
	v.SetDefault("connect_timeout", "5s")
	v.SetDefault("data_dir", "")
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", 2)
	v.SetDefault("marquee_separator", " • ")
	v.SetDefault("discord.enabled", true)
	v.SetDefault("discord.app_id", "927041178103332965")
	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.api_secret", "")
	v.SetDefault("lastfm.session_key", "")
	v.SetDefault("lastfm.username", "")
	v.SetDefault("lastfm.password", "")
	v.SetDefault("lastfm.threshold_seconds", 110)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(Dir())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// Load reads configuration from file and environment. A missing file is
// created with default values. A malformed file is reported alongside a
// usable default configuration.
func Load() (*Config, error) {
	cfg, _, err := load()
	return cfg, err
}

func load() (*Config, *viper.Viper, error) {
	v := newViper()

	var readErr error
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Best effort: an unwritable config dir still leaves defaults usable.
			_ = os.MkdirAll(Dir(), 0755)
			_ = v.SafeWriteConfig()
		} else {
			readErr = fmt.Errorf("failed to read config: %w", err)
			v = newViper()
		}
	}

	return fromViper(v), v, readErr
}

func fromViper(v *viper.Viper) *Config {
	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		dataDir = Dir()
	}

	return &Config{
		Port:             v.GetInt("port"),
		Volume:           v.GetFloat64("volume"),
		LoopLast:         v.GetBool("loop_last"),
		ConnectTimeout:   v.GetDuration("connect_timeout"),
		DataDir:          dataDir,
		OutputFormat:     v.GetString("output_format"),
		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
		Discord: DiscordConfig{
			Enabled: v.GetBool("discord.enabled"),
			AppID:   v.GetString("discord.app_id"),
		},
		LastFM: LastFMConfig{
			APIKey:     v.GetString("lastfm.api_key"),
			APISecret:  v.GetString("lastfm.api_secret"),
			SessionKey: v.GetString("lastfm.session_key"),
			Username:   v.GetString("lastfm.username"),
			Password:   v.GetString("lastfm.password"),
			Threshold:  time.Duration(v.GetInt("lastfm.threshold_seconds")) * time.Second,
		},
	}
}

// Watch loads the configuration and calls onChange with the reloaded
// configuration every time the file changes on disk.
func Watch(onChange func(*Config)) (*Config, error) {
	cfg, v, err := load()
	if err != nil {
		return cfg, err
	}

	v.OnConfigChange(func(fsnotify.Event) {
		onChange(fromViper(v))
	})
	v.WatchConfig()

	return cfg, nil
}

// Dir returns the configuration directory path
func Dir() string {
	if dirOverride != "" {
		return dirOverride
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, appName)
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	v.Set("port", c.Port)
	v.Set("volume", c.Volume)
	v.Set("loop_last", c.LoopLast)
	v.Set("connect_timeout", c.ConnectTimeout.String())
	if c.DataDir != Dir() {
		v.Set("data_dir", c.DataDir)
	}
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)
	v.Set("discord.enabled", c.Discord.Enabled)
	v.Set("discord.app_id", c.Discord.AppID)
	v.Set("lastfm.api_key", c.LastFM.APIKey)
	v.Set("lastfm.api_secret", c.LastFM.APISecret)
	v.Set("lastfm.session_key", c.LastFM.SessionKey)
	v.Set("lastfm.username", c.LastFM.Username)
	v.Set("lastfm.password", c.LastFM.Password)
	v.Set("lastfm.threshold_seconds", int(c.LastFM.Threshold/time.Second))

	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return v.WriteConfigAs(filepath.Join(Dir(), configName+"."+configType))
}
