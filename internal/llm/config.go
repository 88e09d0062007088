package llm

import (
	"os"
	"time"
)

// Config selects and configures the generation provider.
type Config struct {
	// Provider is one of "gemini", "openai", "anthropic" or "mock".
	Provider string

	Gemini    GeminiConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Retry     RetryConfig

	// MaxTokens caps one generation. Default 2048.
	MaxTokens int
	// Temperature for question writing. Default 0.7.
	Temperature float64
	// Timeout bounds one generation including retries. Default 60s.
	Timeout time.Duration
}

type GeminiConfig struct {
	APIKey string
	Model  string // Default: "gemini-flash"
}

type OpenAIConfig struct {
	APIKey  string
	Model   string // Default: "gpt-4o-mini"
	BaseURL string
}

type AnthropicConfig struct {
	APIKey string
	Model  string // Default: "claude-haiku"
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func DefaultConfig() Config {
	return Config{
		Provider:  "gemini",
		Gemini:    GeminiConfig{Model: "gemini-flash"},
		OpenAI:    OpenAIConfig{Model: "gpt-4o-mini"},
		Anthropic: AnthropicConfig{Model: "claude-haiku"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		MaxTokens:   2048,
		Temperature: 0.7,
		Timeout:     60 * time.Second,
	}
}

// ApplyEnv fills API keys that were left empty from the standard
// environment variables.
func (c *Config) ApplyEnv() {
	if p := os.Getenv("MOODQUIZ_LLM_PROVIDER"); p != "" {
		c.Provider = p
	}
	c.Gemini.APIKey = firstNonEmpty(c.Gemini.APIKey, os.Getenv("MOODQUIZ_GEMINI_API_KEY"), os.Getenv("GEMINI_API_KEY"))
	c.OpenAI.APIKey = firstNonEmpty(c.OpenAI.APIKey, os.Getenv("MOODQUIZ_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY"))
	c.Anthropic.APIKey = firstNonEmpty(c.Anthropic.APIKey, os.Getenv("MOODQUIZ_ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
