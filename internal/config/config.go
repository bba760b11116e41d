// Package config provides configuration management for the search engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the engine and its CLI.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Index      IndexConfig      `mapstructure:"index"`
	Fuzzy      FuzzyConfig      `mapstructure:"fuzzy"`
	Regex      RegexConfig      `mapstructure:"regex"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Versioning VersioningConfig `mapstructure:"versioning"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig holds application-identity settings.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Debug   bool   `mapstructure:"debug"`
}

// IndexConfig holds indexing/tokenization settings.
type IndexConfig struct {
	MaxWordLength int      `mapstructure:"max_word_length"`
	CaseSensitive bool     `mapstructure:"case_sensitive"`
	Fields        []string `mapstructure:"fields"`
}

// FuzzyConfig holds fuzzy-search defaults.
type FuzzyConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	MaxDistance int     `mapstructure:"max_distance"`
	Threshold   float64 `mapstructure:"threshold"`
}

// RegexConfig holds default budgets for regex traversal.
type RegexConfig struct {
	MaxDepth      int  `mapstructure:"max_depth"`
	TimeoutMs     int  `mapstructure:"timeout_ms"`
	CaseSensitive bool `mapstructure:"case_sensitive"`
	WholeWord     bool `mapstructure:"whole_word"`
}

// CacheConfig holds result-cache settings.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	MaxSize  int    `mapstructure:"max_size"`
	TTLMs    int    `mapstructure:"ttl_ms"`
	Strategy string `mapstructure:"strategy"` // "lru" | "mru"
}

// VersioningConfig holds document-versioning settings.
type VersioningConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxVersions int  `mapstructure:"max_versions"`
}

// StorageConfig selects and configures the Storage collaborator.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "memory" | "bbolt"
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load loads the configuration from file and environment variables,
// creating a default file if none exists.
func Load(path string) (*Config, error) {
	if path == "" {
		path = getDefaultConfigPath()
	}
	configPath = path

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	setDefaults()

	viper.SetEnvPrefix("LEXITRIE")
	viper.AutomaticEnv()

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			if err := createDefaultConfig(path); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read created config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(&cfg)

	mu.Lock()
	globalConfig = &cfg
	mu.Unlock()
	return &cfg, nil
}

// Get returns the global configuration instance, loading defaults if needed.
func Get() *Config {
	mu.RLock()
	cfg := globalConfig
	mu.RUnlock()
	if cfg == nil {
		loaded, err := Load("")
		if err != nil {
			return &Config{}
		}
		return loaded
	}
	return cfg
}

// Set replaces the global configuration instance.
func Set(cfg *Config) {
	mu.Lock()
	globalConfig = cfg
	mu.Unlock()
}

// Save writes the current configuration back to its file.
func Save() error {
	mu.RLock()
	cfg := globalConfig
	mu.RUnlock()
	if cfg == nil {
		return fmt.Errorf("no configuration to save")
	}

	viper.Set("app", cfg.App)
	viper.Set("index", cfg.Index)
	viper.Set("fuzzy", cfg.Fuzzy)
	viper.Set("regex", cfg.Regex)
	viper.Set("cache", cfg.Cache)
	viper.Set("versioning", cfg.Versioning)
	viper.Set("storage", cfg.Storage)
	viper.Set("logging", cfg.Logging)

	if err := viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// WatchAndReload watches the config file for changes and, on each write,
// reloads the whole file into the global config and hands the result to
// onReload. It applies nothing to a running Engine itself; Index and
// Storage settings are reloaded along with the rest.
func WatchAndReload(onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}

	path := GetConfigPath()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for event := range watcher.Events {
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		}
	}()

	return nil
}

func setDefaults() {
	viper.SetDefault("app.name", "lexitrie")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("index.max_word_length", 50)
	viper.SetDefault("index.case_sensitive", false)
	viper.SetDefault("index.fields", []string{"title", "content", "author", "tags"})

	viper.SetDefault("fuzzy.enabled", false)
	viper.SetDefault("fuzzy.max_distance", 2)
	viper.SetDefault("fuzzy.threshold", 0.5)

	viper.SetDefault("regex.max_depth", 50)
	viper.SetDefault("regex.timeout_ms", 5000)
	viper.SetDefault("regex.case_sensitive", false)
	viper.SetDefault("regex.whole_word", false)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("cache.ttl_ms", 300000)
	viper.SetDefault("cache.strategy", "lru")

	viper.SetDefault("versioning.enabled", false)
	viper.SetDefault("versioning.max_versions", 10)

	viper.SetDefault("storage.backend", "memory")
	viper.SetDefault("storage.path", "~/.lexitrie/data")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size", 10)
	viper.SetDefault("logging.max_backups", 5)
	viper.SetDefault("logging.max_age", 30)
}

func createDefaultConfig(path string) error {
	defaultConfig := `# lexitrie - embeddable full-text search engine
# Default Configuration File

app:
  name: "lexitrie"
  version: "1.0.0"
  debug: false

index:
  max_word_length: 50
  case_sensitive: false
  fields:
    - title
    - content
    - author
    - tags

fuzzy:
  enabled: false
  max_distance: 2
  threshold: 0.5

regex:
  max_depth: 50
  timeout_ms: 5000
  case_sensitive: false
  whole_word: false

cache:
  enabled: true
  max_size: 1000
  ttl_ms: 300000
  strategy: "lru"

versioning:
  enabled: false
  max_versions: 10

storage:
  backend: "memory"
  path: "~/.lexitrie/data"

logging:
  level: "info"
  file: ""
  max_size: 10
  max_backups: 5
  max_age: 30
`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}

func expandPaths(cfg *Config) {
	homeDir, _ := os.UserHomeDir()

	if cfg.Storage.Path != "" {
		cfg.Storage.Path = expandPath(cfg.Storage.Path, homeDir)
	}
	if cfg.Logging.File != "" {
		cfg.Logging.File = expandPath(cfg.Logging.File, homeDir)
	}
}

func expandPath(path, homeDir string) string {
	if len(path) > 0 && path[0] == '~' {
		path = filepath.Join(homeDir, path[1:])
	}
	return os.ExpandEnv(path)
}

func getDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".lexitrie.yaml"
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lexitrie", "config.yaml")
	}

	return filepath.Join(homeDir, ".config", "lexitrie", "config.yaml")
}

// GetDataDir returns the data directory that holds the exported index, the
// logs, and the default bbolt database file.
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".lexitrie"
	}
	return filepath.Join(homeDir, ".lexitrie")
}

// EnsureDirs creates the directories the engine needs on disk.
func EnsureDirs() error {
	dataDir := GetDataDir()
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "data"),
		filepath.Join(dataDir, "logs"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// GetConfigPath returns the path of the currently loaded configuration file.
func GetConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return getDefaultConfigPath()
}

// IsInitialized reports whether a configuration file already exists.
func IsInitialized() bool {
	_, err := os.Stat(GetConfigPath())
	return err == nil
}
