package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// RoutingConfig holds the routing engine configuration.
type RoutingConfig struct {
	Thresholds      Thresholds      `yaml:"thresholds,omitempty"`
	FactorWeights   FactorWeights   `yaml:"factor_weights,omitempty"`
	LoadBalancer    LoadBalancer    `yaml:"load_balancer,omitempty"`
	Pricing         PricingConfig   `yaml:"pricing,omitempty"`
	Synthesis       SynthesisConfig `yaml:"synthesis,omitempty"`
	CleanupSchedule string          `yaml:"cleanup_schedule,omitempty"`
	JobMaxAgeHours  int             `yaml:"job_max_age_hours,omitempty"`
}

// Thresholds holds the complexity and token-count cut points used by the
// decision engine and router.
type Thresholds struct {
	ComplexitySimple  float64 `yaml:"complexity_simple,omitempty"`
	ComplexityMedium  float64 `yaml:"complexity_medium,omitempty"`
	ComplexityComplex float64 `yaml:"complexity_complex,omitempty"`
	TokensSmall       int     `yaml:"tokens_small,omitempty"`
	TokensMedium      int     `yaml:"tokens_medium,omitempty"`
	TokensLarge       int     `yaml:"tokens_large,omitempty"`
}

// FactorWeights holds the weight of each scoring factor. Keeping these as
// data rather than inline arithmetic keeps the scoring tunable and testable.
type FactorWeights struct {
	Cost             float64 `yaml:"cost,omitempty"`
	Complexity       float64 `yaml:"complexity,omitempty"`
	TokenUsage       float64 `yaml:"token_usage,omitempty"`
	Priority         float64 `yaml:"priority,omitempty"`
	PreviousAttempts float64 `yaml:"previous_attempts,omitempty"`
	ContextWindow    float64 `yaml:"context_window,omitempty"`
}

// LoadBalancer holds the per-model load tracking knobs.
type LoadBalancer struct {
	DiffThreshold int `yaml:"diff_threshold,omitempty"`
	TaskDecaySec  int `yaml:"task_decay_sec,omitempty"`
	GroupDecaySec int `yaml:"group_decay_sec,omitempty"`
	BatchDecaySec int `yaml:"batch_decay_sec,omitempty"`
	MaxCandidates int `yaml:"max_candidates,omitempty"`
}

// SynthesisConfig names the paid fallback model used to merge subtask results.
type SynthesisConfig struct {
	FallbackProvider string `yaml:"fallback_provider,omitempty"`
	FallbackModel    string `yaml:"fallback_model,omitempty"`
}

// PricingConfig maps provider -> model -> pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// LoadRoutingConfig reads routing configuration from a YAML file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RoutingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyRoutingDefaults(&cfg)
	return &cfg, nil
}

// DefaultRoutingConfig returns the default routing configuration.
func DefaultRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{
		Pricing: PricingConfig{
			"openai": {
				"gpt-5.2-instant": {PromptPer1K: 0.0015, CompletionPer1K: 0.006},
				"gpt-5.2-codex":   {PromptPer1K: 0.005, CompletionPer1K: 0.015},
				"default":         {PromptPer1K: 0.003, CompletionPer1K: 0.012},
			},
			"anthropic": {
				"claude-sonnet-4-20250514": {PromptPer1K: 0.003, CompletionPer1K: 0.015},
				"claude-opus-4-20250514":   {PromptPer1K: 0.015, CompletionPer1K: 0.075},
				"default":                  {PromptPer1K: 0.003, CompletionPer1K: 0.015},
			},
			"google": {
				"default": {PromptPer1K: 0.00125, CompletionPer1K: 0.005},
			},
		},
	}

	applyRoutingDefaults(cfg)
	return cfg
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	t := &cfg.Thresholds
	if t.ComplexitySimple == 0 {
		t.ComplexitySimple = 0.3
	}
	if t.ComplexityMedium == 0 {
		t.ComplexityMedium = 0.6
	}
	if t.ComplexityComplex == 0 {
		t.ComplexityComplex = 0.8
	}
	if t.TokensSmall == 0 {
		t.TokensSmall = 500
	}
	if t.TokensMedium == 0 {
		t.TokensMedium = 2000
	}
	if t.TokensLarge == 0 {
		t.TokensLarge = 8000
	}

	w := &cfg.FactorWeights
	if w.Cost == 0 {
		w.Cost = 0.3
	}
	if w.Complexity == 0 {
		w.Complexity = 0.25
	}
	if w.TokenUsage == 0 {
		w.TokenUsage = 0.2
	}
	if w.Priority == 0 {
		w.Priority = 0.25
	}
	if w.PreviousAttempts == 0 {
		w.PreviousAttempts = 0.15
	}
	if w.ContextWindow == 0 {
		w.ContextWindow = 1.0
	}

	lb := &cfg.LoadBalancer
	if lb.DiffThreshold == 0 {
		lb.DiffThreshold = 2
	}
	if lb.TaskDecaySec == 0 {
		lb.TaskDecaySec = 60
	}
	if lb.GroupDecaySec == 0 {
		lb.GroupDecaySec = 90
	}
	if lb.BatchDecaySec == 0 {
		lb.BatchDecaySec = 120
	}
	if lb.MaxCandidates == 0 {
		lb.MaxCandidates = 5
	}

	if cfg.Synthesis.FallbackProvider == "" {
		cfg.Synthesis.FallbackProvider = "openai"
	}
	if cfg.Synthesis.FallbackModel == "" {
		cfg.Synthesis.FallbackModel = "gpt-5.2-instant"
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = "@hourly"
	}
	if cfg.JobMaxAgeHours == 0 {
		cfg.JobMaxAgeHours = 24
	}
}
