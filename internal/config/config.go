package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Library LibraryConfig `mapstructure:"library"`
	Viewer  ViewerConfig  `mapstructure:"viewer"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Player  PlayerConfig  `mapstructure:"player"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LibraryConfig holds media library configuration
type LibraryConfig struct {
	Root      string `mapstructure:"root"`      // Directory scanned for albums
	PageSize  int    `mapstructure:"page_size"` // Assets per page
	Exiftool  bool   `mapstructure:"exiftool"`  // Read capture dates with exiftool
	Lookahead int    `mapstructure:"lookahead"` // Load the next page this close to the end

	Watch    bool          `mapstructure:"watch"`    // Refresh on filesystem changes
	Debounce time.Duration `mapstructure:"debounce"` // Coalesce change bursts
}

// ViewerConfig holds full-screen viewer configuration
type ViewerConfig struct {
	SwipeThreshold float64 `mapstructure:"swipe_threshold"`  // Device-independent units
	MaxDisplayEdge int     `mapstructure:"max_display_edge"` // Decoded images are bounded to this edge
	Width          float64 `mapstructure:"width"`            // Logical viewport width
	Height         float64 `mapstructure:"height"`           // Logical viewport height
}

// BrokerConfig holds media request configuration
type BrokerConfig struct {
	Workers int `mapstructure:"workers"` // Concurrent provider requests
}

// CacheConfig holds settings/thumbnail cache configuration
type CacheConfig struct {
	Dir string `mapstructure:"dir"` // Empty means memory-only
}

// PlayerConfig holds external player configuration
type PlayerConfig struct {
	Command string   `mapstructure:"command"` // Empty auto-detects mpv, vlc, ...
	Args    []string `mapstructure:"args"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Root:      defaultLibraryPath(),
			PageSize:  100,
			Exiftool:  true,
			Lookahead: 10,
			Watch:     true,
			Debounce:  250 * time.Millisecond,
		},
		Viewer: ViewerConfig{
			SwipeThreshold: 100,
			MaxDisplayEdge: 2048,
			Width:          390,
			Height:         844,
		},
		Broker: BrokerConfig{
			Workers: 4,
		},
		Cache: CacheConfig{
			Dir: defaultCachePath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLibraryPath returns the user's pictures directory
func defaultLibraryPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Pictures")
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "glimpse", "glimpse.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "glimpse", "glimpse.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "glimpse")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "glimpse")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "glimpse", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "glimpse", "cache")
	}
}

// LoadConfig loads configuration from file and environment.
// An explicit path overrides the default search locations.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides (GLIMPSE_LIBRARY_ROOT, ...)
	v.SetEnvPrefix("GLIMPSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.Library.Root = expandHome(cfg.Library.Root)
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindDefaults registers every key so AutomaticEnv can override keys that
// are absent from the config file.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("library.root", cfg.Library.Root)
	v.SetDefault("library.page_size", cfg.Library.PageSize)
	v.SetDefault("library.exiftool", cfg.Library.Exiftool)
	v.SetDefault("library.lookahead", cfg.Library.Lookahead)
	v.SetDefault("library.watch", cfg.Library.Watch)
	v.SetDefault("library.debounce", cfg.Library.Debounce)
	v.SetDefault("viewer.swipe_threshold", cfg.Viewer.SwipeThreshold)
	v.SetDefault("viewer.max_display_edge", cfg.Viewer.MaxDisplayEdge)
	v.SetDefault("viewer.width", cfg.Viewer.Width)
	v.SetDefault("viewer.height", cfg.Viewer.Height)
	v.SetDefault("broker.workers", cfg.Broker.Workers)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("player.command", cfg.Player.Command)
	v.SetDefault("player.args", cfg.Player.Args)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// Validate rejects values the core cannot operate with
func (c *Config) Validate() error {
	if c.Library.PageSize <= 0 {
		return fmt.Errorf("library.page_size must be positive, got %d", c.Library.PageSize)
	}
	if c.Viewer.SwipeThreshold <= 0 {
		return fmt.Errorf("viewer.swipe_threshold must be positive, got %v", c.Viewer.SwipeThreshold)
	}
	if c.Broker.Workers <= 0 {
		return fmt.Errorf("broker.workers must be positive, got %d", c.Broker.Workers)
	}
	if c.Library.Lookahead < 0 {
		c.Library.Lookahead = 0
	}
	return nil
}

// IsConfigured returns true if the library root exists
func (c *Config) IsConfigured() bool {
	if c.Library.Root == "" {
		return false
	}
	st, err := os.Stat(c.Library.Root)
	return err == nil && st.IsDir()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// ClearCache removes all cached data
func ClearCache(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
