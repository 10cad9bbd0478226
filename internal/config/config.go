package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the grind configuration
type Config struct {
	DBPath string       `yaml:"db_path" mapstructure:"db_path"`
	OpenAI OpenAIConfig `yaml:"openai" mapstructure:"openai"`
	API    APIConfig    `yaml:"api" mapstructure:"api"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// OpenAIConfig configures the suggestion client
type OpenAIConfig struct {
	// APIKey is used when no key is saved in the app settings.
	APIKey  string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
}

// APIConfig configures `grind serve`
type APIConfig struct {
	Addr          string  `yaml:"addr" mapstructure:"addr"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`

	// AllowedOrigins lists the browser origins that may call the API.
	// Requests from any other origin are refused.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" mapstructure:"allowed_origins"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DBPath: filepath.Join(Dir(), "grind.db"),
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o-mini",
			BaseURL: "https://api.openai.com/v1",
			Timeout: "60s",
		},
		API: APIConfig{
			Addr:          "127.0.0.1:8484",
			RatePerSecond: 1,
			Burst:         3,
		},
	}
}

// TimeoutDuration parses Timeout, falling back to 60s.
func (c OpenAIConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// Dir returns the grind data directory (~/.grind)
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grind"
	}
	return filepath.Join(home, ".grind")
}

// Path returns the default config file path
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads .env files, then the config file at path (or the default
// path when empty) over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(Dir(), ".env"))

	cfg := DefaultConfig()
	if path == "" {
		path = Path()
	}
	if err := loadFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}

	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("GRIND_DB"); v != "" {
		cfg.DBPath = v
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	return v.Unmarshal(cfg)
}

// WriteDefault writes the default configuration to path unless a file
// already exists there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	content := append([]byte("# grind configuration\n"), data...)
	return os.WriteFile(path, content, 0o600)
}
