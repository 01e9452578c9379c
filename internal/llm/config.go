// Package llm provides the text-generation client abstraction used by the
// analysis pipeline. The pipeline depends only on the Client interface; the
// Gemini implementation lives behind it.
package llm

// ModelTier represents the complexity/capability level of a model.
type ModelTier string

const (
	// TierLite is for simple tasks: classification, short extraction.
	TierLite ModelTier = "lite"
	// TierStandard is for moderate structured output: competitor profiles.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for complex reasoning: opportunity synthesis, repair.
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider.
type Provider string

// Provider constants define supported LLM providers.
const (
	ProviderGemini Provider = "gemini"
)

// Config holds the model configuration for the generator client.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the default configuration (currently Gemini).
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration.
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
	}
}

// GetModel returns the model name for a given tier, falling back to standard
// then lite when the tier is not configured.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider: c.Provider,
		Models:   make(map[ModelTier]string),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
