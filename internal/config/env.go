package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Secrets are the API keys read from the process environment. They are never
// written to disk or logged.
type Secrets struct {
	OpenAIKey string `env:"OPENAI_API_KEY"`
	GeminiKey string `env:"GEMINI_API_KEY"`
}

// Telemetry configures optional trace export
type Telemetry struct {
	Endpoint string `env:"RECEIPT_SCANNER_OTEL_ENDPOINT"`
	Enabled  bool   `env:"RECEIPT_SCANNER_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadSecrets reads the API keys from the environment
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := ParseEnv(&s); err != nil {
		return Secrets{}, err
	}
	return s, nil
}

// LoadTelemetry reads the trace export settings from the environment
func LoadTelemetry() (Telemetry, error) {
	var t Telemetry
	if err := ParseEnv(&t); err != nil {
		return Telemetry{}, err
	}
	return t, nil
}
