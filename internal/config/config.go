// Package config loads the application configuration into an explicit
// object that is handed to constructors. API keys come from the
// environment (optionally seeded from a .env file); everything else has
// a default that a config.yaml or environment variable can override.
// Nothing in here is a process-wide singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries everything the CLI and daemon need to construct their
// collaborators.
type Config struct {
	Port   int
	DBPath string

	OpenAIKey   string
	OpenAIModel string

	OllamaKey     string
	OllamaBaseURL string
	OllamaModel   string

	EVAPIKey string

	Timezone        string
	DefaultMinHours float64

	// Location is resolved from Timezone at load time.
	Location *time.Location
}

// Load reads the .env file (non-fatal if absent), then the optional yaml
// config file, then environment overrides, and resolves derived fields.
func Load(cfgFile string) (*Config, error) {
	// Keys live in .env during development, real env in deployment.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("ollama_base_url", "https://ollama.com/v1")
	v.SetDefault("ollama_model", "gpt-oss:20b-cloud")
	v.SetDefault("timezone", "Europe/London")
	v.SetDefault("default_min_hours", 4.0)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".greencharge"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			_ = v.ReadInConfig()
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		Port:            v.GetInt("port"),
		DBPath:          v.GetString("db_path"),
		OpenAIKey:       v.GetString("openai_api_key"),
		OpenAIModel:     v.GetString("openai_model"),
		OllamaKey:       v.GetString("ollama_api_key"),
		OllamaBaseURL:   v.GetString("ollama_base_url"),
		OllamaModel:     v.GetString("ollama_model"),
		EVAPIKey:        v.GetString("ev_api_key"),
		Timezone:        v.GetString("timezone"),
		DefaultMinHours: v.GetFloat64("default_min_hours"),
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "greencharge.db"
	}
	return filepath.Join(home, ".greencharge", "greencharge.db")
}
