package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen       string        `yaml:"listen"`
	DatabasePath string        `yaml:"database_path"`
	Session      SessionConfig `yaml:"session"`
	TLS          TLSConfig     `yaml:"tls"`
	CSRFEnabled  bool          `yaml:"csrf_enabled"`
}

type SessionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Secret  string        `yaml:"secret"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

var C Config

func Load() error {
	// Defaults
	C = Config{
		Listen:       ":8080",
		DatabasePath: "app.db",
		Session: SessionConfig{
			Timeout: 24 * time.Hour,
		},
	}

	// Load from YAML if exists
	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &C); err != nil {
			return err
		}
	}

	// Environment overrides
	if v := os.Getenv("LISTEN"); v != "" {
		C.Listen = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		C.DatabasePath = v
	}
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Session.Timeout = d
		}
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		C.Session.Secret = v
	}
	if v := os.Getenv("TLS_ENABLED"); v == "true" {
		C.TLS.Enabled = true
	}
	if v := os.Getenv("TLS_CERT"); v != "" {
		C.TLS.Cert = v
	}
	if v := os.Getenv("TLS_KEY"); v != "" {
		C.TLS.Key = v
	}
	if v := os.Getenv("CSRF_ENABLED"); v == "true" {
		C.CSRFEnabled = true
	}

	return nil
}
