package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	WSBaseURL  string `yaml:"ws_base_url"`
	DataDir    string `yaml:"data_dir"`

	// Timing knobs are tuned through SECURECHAT_* env vars only.
	HTTPTimeout  time.Duration `yaml:"-"`
	DialTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`

	TypingDebounce time.Duration `yaml:"-"`
	TypingExpiry   time.Duration `yaml:"-"`
}

// Load builds a config from defaults, an optional YAML file, and
// SECURECHAT_* environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := &Config{
		APIBaseURL:     "http://127.0.0.1:8000/api",
		WSBaseURL:      "ws://127.0.0.1:8000/ws",
		DataDir:        defaultDataDir(),
		HTTPTimeout:    15 * time.Second,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		TypingDebounce: 1000 * time.Millisecond,
		TypingExpiry:   10 * time.Second,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if v := os.Getenv("SECURECHAT_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}

	if v := os.Getenv("SECURECHAT_WS_URL"); v != "" {
		cfg.WSBaseURL = v
	}

	if v := os.Getenv("SECURECHAT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("SECURECHAT_HTTP_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.HTTPTimeout = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("SECURECHAT_DIAL_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.DialTimeout = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("SECURECHAT_WRITE_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.WriteTimeout = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("SECURECHAT_TYPING_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.TypingDebounce = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("SECURECHAT_TYPING_EXPIRY"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.TypingExpiry = time.Duration(secs) * time.Second
		}
	}

	return cfg, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(configRoot(), "config.yml")
}

func defaultDataDir() string {
	return configRoot()
}

func configRoot() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "securechat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".securechat")
}
