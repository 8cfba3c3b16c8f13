// Package credentials resolves upstream provider API keys and classifies
// each provider's operational status.
//
// Every provider has three key slots checked in order: the platform-injected
// ("vercel") key, the primary key and the fallback key. The first slot whose
// value matches the provider's key format wins. Validate is a pure function
// of its Sources input.
package credentials

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

// Sources holds the raw key slots, normally parsed from the environment.
type Sources struct {
	OpenAIVercel   string `env:"OPENAI_API_KEY_VERCEL"`
	OpenAIPrimary  string `env:"OPENAI_API_KEY"`
	OpenAIFallback string `env:"OPENAI_API_KEY_FALLBACK"`

	GroqVercel   string `env:"GROQ_API_KEY_VERCEL"`
	GroqPrimary  string `env:"GROQ_API_KEY"`
	GroqFallback string `env:"GROQ_API_KEY_FALLBACK"`

	XAIEnabled  string `env:"XAI_ENABLED"`
	XAIVercel   string `env:"XAI_API_KEY_VERCEL"`
	XAIPrimary  string `env:"XAI_API_KEY"`
	XAIFallback string `env:"XAI_API_KEY_FALLBACK"`
	GrokKey     string `env:"GROK_API_KEY"`

	OpenRouterVercel   string `env:"OPENROUTER_API_KEY_VERCEL"`
	OpenRouterPrimary  string `env:"OPENROUTER_API_KEY"`
	OpenRouterFallback string `env:"OPENROUTER_API_KEY_FALLBACK"`
}

var keyPatterns = map[string]*regexp.Regexp{
	models.ProviderOpenAI:     regexp.MustCompile(`^sk-(proj-)?[a-zA-Z0-9_-]{20,}$`),
	models.ProviderGroq:       regexp.MustCompile(`^gsk_[a-zA-Z0-9_-]{20,}$`),
	models.ProviderXAI:        regexp.MustCompile(`^(grok_|sk-)[a-zA-Z0-9_-]{20,}$`),
	models.ProviderOpenRouter: regexp.MustCompile(`^sk-or-v1-[a-zA-Z0-9_-]{20,}$`),
}

// ProviderModels lists the models offered per provider. The first entry is
// the default.
var ProviderModels = map[string][]string{
	models.ProviderOpenAI:     {"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"},
	models.ProviderGroq:       {"llama-3.3-70b-versatile", "openai/gpt-oss-120b", "mixtral-8x7b-32768"},
	models.ProviderXAI:        {"grok-beta", "grok-2", "grok-2-mini"},
	models.ProviderOpenRouter: {"meta-llama/llama-3.3-70b-instruct", "deepseek/deepseek-r1", "reka/reka-flash-3", "openai/gpt-oss-120b"},
}

// DefaultModel returns the provider's default model id.
func DefaultModel(provider string) string {
	if m := ProviderModels[provider]; len(m) > 0 {
		return m[0]
	}
	return ""
}

// ValidKey reports whether key matches the provider's key format.
func ValidKey(provider, key string) bool {
	re, ok := keyPatterns[provider]
	if !ok || key == "" {
		return false
	}
	return re.MatchString(key)
}

// slots returns the vercel, primary and fallback candidates for provider.
func (s Sources) slots(provider string) [3]string {
	switch provider {
	case models.ProviderOpenAI:
		return [3]string{s.OpenAIVercel, s.OpenAIPrimary, s.OpenAIFallback}
	case models.ProviderGroq:
		return [3]string{s.GroqVercel, s.GroqPrimary, s.GroqFallback}
	case models.ProviderXAI:
		return [3]string{s.XAIVercel, firstNonEmpty(s.XAIPrimary, s.GrokKey), firstNonEmpty(s.XAIFallback, s.GrokKey)}
	case models.ProviderOpenRouter:
		return [3]string{s.OpenRouterVercel, s.OpenRouterPrimary, s.OpenRouterFallback}
	}
	return [3]string{}
}

func (s Sources) enabled(provider string) bool {
	if provider == models.ProviderXAI {
		return s.XAIEnabled != "false"
	}
	return true
}

// Key returns the winning key for provider, or "" when none is valid or the
// provider is disabled.
func (s Sources) Key(provider string) string {
	if !s.enabled(provider) {
		return ""
	}
	for _, k := range s.slots(provider) {
		if ValidKey(provider, k) {
			return k
		}
	}
	return ""
}

var slotSources = [3]models.KeySource{models.KeySourceVercel, models.KeySourcePrimary, models.KeySourceFallback}

// Resolve computes one provider's config.
func Resolve(provider string, s Sources) models.ProviderConfig {
	pc := models.ProviderConfig{
		Name:      strings.ToUpper(provider),
		Enabled:   s.enabled(provider),
		KeySource: models.KeySourceNone,
		Status:    models.StatusDisabled,
	}
	if !pc.Enabled {
		return pc
	}

	for i, k := range s.slots(provider) {
		if !ValidKey(provider, k) {
			continue
		}
		pc.HasValidKey = true
		pc.KeySource = slotSources[i]
		pc.Model = DefaultModel(provider)
		pc.Status = models.StatusActive
		if pc.KeySource == models.KeySourceFallback {
			pc.Status = models.StatusFallback
		}
		return pc
	}

	pc.Status = models.StatusError
	return pc
}

// Validate resolves every known provider and summarises the result.
func Validate(s Sources) models.ValidationResult {
	res := models.ValidationResult{
		Providers:           make(map[string]models.ProviderConfig, len(models.ProviderNames)),
		RecommendedProvider: models.ProviderMock,
		Errors:              []string{},
		Warnings:            []string{},
	}

	for _, name := range models.ProviderNames {
		pc := Resolve(name, s)
		res.Providers[name] = pc

		switch {
		case pc.Status == models.StatusFallback:
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s using fallback API key", pc.Name))
		case pc.Status == models.StatusError && pc.Enabled:
			res.Errors = append(res.Errors, fmt.Sprintf("%s has no valid API key", pc.Name))
		}

		if pc.HasValidKey {
			if !res.HasAnyProvider {
				res.RecommendedProvider = name
			}
			res.HasAnyProvider = true
		}
	}

	if !res.HasAnyProvider {
		res.Errors = append(res.Errors, "No valid AI provider API keys found")
	}
	return res
}

// CurrentModel describes the provider the router will most likely use, as
// "<model> via <NAME>". Active providers are preferred over fallback-keyed
// ones. Returns ("none", "No active provider") when nothing is usable.
func CurrentModel(v models.ValidationResult) (provider, description string) {
	for _, want := range []models.ProviderStatus{models.StatusActive, models.StatusFallback} {
		for _, name := range models.ProviderNames {
			pc := v.Provider(name)
			if !pc.HasValidKey || pc.Status != want {
				continue
			}
			desc := fmt.Sprintf("%s via %s", pc.Model, pc.Name)
			if want == models.StatusFallback {
				desc += " (Fallback)"
			}
			return name, desc
		}
	}
	return "none", "No active provider"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
