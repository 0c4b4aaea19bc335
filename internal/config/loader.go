package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read outside the HALFPACE_ prefix.
const (
	EnvConfigFile   = "HALFPACE_CONFIG"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"

	envPrefix = "HALFPACE_"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  0. .env in the working directory (only fills unset variables)
//  1. defaults (New())
//  2. file (YAML) if HALFPACE_CONFIG is set
//  3. env (prefix HALFPACE_)
//  4. OPENAI_API_KEY / GEMINI_API_KEY for keys still empty
func Load(_ context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %w", ErrLoadConfig, err)
	}

	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// HALFPACE_MODEL_PATH -> model_path (flat keys, underscores kept).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(envPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv(EnvGeminiAPIKey)
	}
	cfg.ExtractorProvider = strings.ToLower(strings.TrimSpace(cfg.ExtractorProvider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
