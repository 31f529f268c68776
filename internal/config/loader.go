package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/callsift/callsift/internal/match"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults. The matching defaults
// reproduce the historical behaviour of the service.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = EnvDevelopment
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = match.DefaultThreshold
	}
	if cfg.Matching.AgentSpeaker == "" {
		cfg.Matching.AgentSpeaker = "Speaker_1"
	}
	if cfg.Matching.CustomerSpeaker == "" {
		cfg.Matching.CustomerSpeaker = "Speaker_0"
	}
	if cfg.Matching.Parallelism == 0 {
		cfg.Matching.Parallelism = 1
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.Environment.IsValid() {
		errs = append(errs, fmt.Errorf("server.environment %q is invalid; valid values: development, testing, production", cfg.Server.Environment))
	}
	if cfg.Database.URL == "" {
		errs = append(errs, errors.New("database.url must be set"))
	}
	if cfg.Matching.Threshold < 0 || cfg.Matching.Threshold > 100 {
		errs = append(errs, fmt.Errorf("matching.threshold %d is out of range 0–100", cfg.Matching.Threshold))
	}
	if cfg.Matching.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("matching.parallelism %d must not be negative", cfg.Matching.Parallelism))
	}
	if cfg.Matching.AgentSpeaker == cfg.Matching.CustomerSpeaker {
		errs = append(errs, fmt.Errorf("matching.agent_speaker and matching.customer_speaker are both %q; the labels must differ", cfg.Matching.AgentSpeaker))
	}
	if cfg.Server.Environment == EnvProduction && cfg.Auth.AuthRequired() && cfg.Auth.MasterKey != "" {
		// The master key is ignored in production; flagging it avoids a
		// false sense of a working credential.
		errs = append(errs, errors.New("auth.master_key is set but ignored in production; remove it"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
