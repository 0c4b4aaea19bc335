// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Validation and load failures wrap this package's sentinel errors.
package config

import (
	"net/url"
	"time"
)

// Supported extractor providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RequestTimeoutMS bounds one prediction request; 0 disables the deadline.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// ExtractorProvider selects the language model backend: openai or gemini.
	ExtractorProvider string `koanf:"extractor_provider"`

	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIBaseURL string `koanf:"openai_base_url"`
	OpenAIModel   string `koanf:"openai_model"`

	GeminiAPIKey string `koanf:"gemini_api_key"`
	GeminiModel  string `koanf:"gemini_model"`

	// ModelPath points at the LightGBM text model; a sibling
	// <name>.schema.json describes its features.
	ModelPath string `koanf:"model_path"`

	// ModelLazyLoad defers loading the model until the first prediction.
	ModelLazyLoad bool `koanf:"model_lazy_load"`

	// RejectUnknownSex fails predictions whose sex is neither M nor K.
	RejectUnknownSex bool `koanf:"reject_unknown_sex"`

	// SessionMaxSize bounds the number of browser sessions holding an API key.
	SessionMaxSize int `koanf:"session_max_size"`

	TracingEnabled bool   `koanf:"tracing_enabled"`
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
	OTLPInsecure   bool   `koanf:"otlp_insecure"`
	ServiceName    string `koanf:"service_name"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		RequestTimeoutMS:  60_000,
		ExtractorProvider: ProviderOpenAI,
		OpenAIModel:       "gpt-4o",
		GeminiModel:       "gemini-2.5-flash",
		ModelPath:         "polmaraton_model.txt",
		SessionMaxSize:    10_000,
		ServiceName:       "halfpace",
	}
}

// RequestTimeout returns the per-request deadline, zero when disabled.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// APIKey returns the configured key of the selected provider.
func (c *Config) APIKey() string {
	if c.ExtractorProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

// Model returns the model name of the selected provider.
func (c *Config) Model() string {
	if c.ExtractorProvider == ProviderGemini {
		return c.GeminiModel
	}
	return c.OpenAIModel
}

// Validate reports the first invalid field as a *FieldError.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr", "must not be empty")
	case c.RequestTimeoutMS < 0:
		return invalid("request_timeout_ms", "must not be negative")
	case c.ExtractorProvider != ProviderOpenAI && c.ExtractorProvider != ProviderGemini:
		return invalid("extractor_provider", "must be %q or %q, got %q",
			ProviderOpenAI, ProviderGemini, c.ExtractorProvider)
	case c.Model() == "":
		return invalid(c.ExtractorProvider+"_model", "must not be empty")
	case c.ModelPath == "":
		return invalid("model_path", "must not be empty")
	case c.TracingEnabled && c.ServiceName == "":
		return invalid("service_name", "must not be empty when tracing is enabled")
	}
	if c.OpenAIBaseURL != "" {
		if u, err := url.Parse(c.OpenAIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("openai_base_url", "%q is not an absolute URL", c.OpenAIBaseURL)
		}
	}
	return nil
}
