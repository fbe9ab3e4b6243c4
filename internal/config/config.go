package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ProjectConfig struct {
	Version   int                       `yaml:"version"`
	Database  DatabaseConfig            `yaml:"database"`
	Episodic  EpisodicConfig            `yaml:"episodic"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Routing   RoutingConfig             `yaml:"routing"`
	Context   ContextConfig             `yaml:"context"`
	Critic    CriticConfig              `yaml:"critic"`
	Pipeline  PipelineConfig            `yaml:"pipeline"`
	Synthesis SynthesisConfig           `yaml:"synthesis"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type EpisodicConfig struct {
	DSN string `yaml:"dsn"`
}

type ProviderConfig struct {
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RoutingConfig maps each pipeline capability to a named provider.
// Resolved once at startup; dispatch never re-reads configuration.
type RoutingConfig struct {
	Plan       string `yaml:"plan"`
	Execute    string `yaml:"execute"`
	Critique   string `yaml:"critique"`
	Synthesize string `yaml:"synthesize"`
}

type ContextConfig struct {
	Tier1Budget  int `yaml:"tier1_budget"`
	Tier2Budget  int `yaml:"tier2_budget"`
	Tier3Budget  int `yaml:"tier3_budget"`
	RecentScenes int `yaml:"recent_scenes"`
	EpisodicTopK int `yaml:"episodic_top_k"`
}

type CriticConfig struct {
	TraitThreshold float64 `yaml:"trait_threshold"`
}

type PipelineConfig struct {
	// MaxRetries is a pointer so an explicit 0 (no retries) is
	// distinguishable from an unset field.
	MaxRetries             *int `yaml:"max_retries"`
	DispatchTimeoutSeconds int  `yaml:"dispatch_timeout_seconds"`
}

type SynthesisConfig struct {
	EveryScenes int `yaml:"every_scenes"`
}

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateProjectConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *ProjectConfig) {
	if cfg.Context.Tier1Budget == 0 {
		cfg.Context.Tier1Budget = 1000
	}
	if cfg.Context.Tier2Budget == 0 {
		cfg.Context.Tier2Budget = 2000
	}
	if cfg.Context.Tier3Budget == 0 {
		cfg.Context.Tier3Budget = 2000
	}
	if cfg.Context.RecentScenes == 0 {
		cfg.Context.RecentScenes = 3
	}
	if cfg.Context.EpisodicTopK == 0 {
		cfg.Context.EpisodicTopK = 3
	}
	if cfg.Critic.TraitThreshold == 0 {
		cfg.Critic.TraitThreshold = 0.7
	}
	if cfg.Pipeline.DispatchTimeoutSeconds == 0 {
		cfg.Pipeline.DispatchTimeoutSeconds = 120
	}
	if cfg.Synthesis.EveryScenes == 0 {
		cfg.Synthesis.EveryScenes = 5
	}
	if cfg.Episodic.DSN == "" {
		cfg.Episodic.DSN = "sqlite://loreweaver_episodic.db"
	}
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}

	for name, provider := range cfg.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("provider name is required")
		}
		if strings.TrimSpace(provider.Model) == "" {
			return fmt.Errorf("provider %s model is required", name)
		}
	}

	routes := map[string]string{
		"plan":       cfg.Routing.Plan,
		"execute":    cfg.Routing.Execute,
		"critique":   cfg.Routing.Critique,
		"synthesize": cfg.Routing.Synthesize,
	}
	for capability, provider := range routes {
		if strings.TrimSpace(provider) == "" {
			return fmt.Errorf("routing for %s is required", capability)
		}
		if _, ok := cfg.Providers[provider]; !ok {
			return fmt.Errorf("routing for %s references unknown provider: %s", capability, provider)
		}
	}

	if cfg.Critic.TraitThreshold < 0 || cfg.Critic.TraitThreshold > 1 {
		return fmt.Errorf("trait threshold must be within [0,1]: %g", cfg.Critic.TraitThreshold)
	}
	if cfg.Pipeline.MaxRetries != nil && *cfg.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative: %d", *cfg.Pipeline.MaxRetries)
	}

	return nil
}

func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Retries returns the bounded retry count, defaulting to 1 when unset.
func (p PipelineConfig) Retries() int {
	if p.MaxRetries == nil {
		return 1
	}
	return *p.MaxRetries
}

func (p PipelineConfig) DispatchTimeout() time.Duration {
	if p.DispatchTimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.DispatchTimeoutSeconds) * time.Second
}
