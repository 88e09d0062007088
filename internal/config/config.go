package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"moodquiz-service/internal/llm"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		APIKey      string  `yaml:"api_key"`
		BaseURL     string  `yaml:"base_url"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		Timeout     string  `yaml:"timeout"`
		Retry       struct {
			MaxAttempts int    `yaml:"max_attempts"`
			InitialWait string `yaml:"initial_wait"`
			MaxWait     string `yaml:"max_wait"`
		} `yaml:"retry"`
	} `yaml:"llm"`
	Capture struct {
		Enabled     bool   `yaml:"enabled"`
		Interval    string `yaml:"interval"`
		MaxDuration string `yaml:"max_duration"`
		FrameStale  string `yaml:"frame_stale"`
		LivenessTTL string `yaml:"liveness_ttl"`
	} `yaml:"capture"`
	Storage struct {
		Bucket string `yaml:"bucket"`
		Prefix string `yaml:"prefix"`
	} `yaml:"storage"`
	Progression struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"progression"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets deployments inject endpoints and secrets without editing
// the file.
func (c *Config) applyEnv() {
	setString(&c.Log.Mode, "MOODQUIZ_LOG_MODE")
	setString(&c.Redis.Addr, "MOODQUIZ_REDIS_ADDR")
	setString(&c.Redis.Password, "MOODQUIZ_REDIS_PASSWORD")
	setString(&c.Postgres.URL, "MOODQUIZ_POSTGRES_URL")
	setString(&c.LLM.Provider, "MOODQUIZ_LLM_PROVIDER")
	setString(&c.LLM.APIKey, "MOODQUIZ_LLM_API_KEY")
	setString(&c.Storage.Bucket, "MOODQUIZ_STORAGE_BUCKET")
	if v := os.Getenv("MOODQUIZ_CAPTURE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Capture.Enabled = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// ToLLM merges the llm section over llm.DefaultConfig. A single api_key and
// model apply to whichever provider is selected; provider env keys fill the
// rest.
func (c Config) ToLLM() llm.Config {
	out := llm.DefaultConfig()
	if c.LLM.Provider != "" {
		out.Provider = c.LLM.Provider
	}
	switch out.Provider {
	case "gemini":
		setIfEmpty(&out.Gemini.APIKey, c.LLM.APIKey)
		setNonEmpty(&out.Gemini.Model, c.LLM.Model)
	case "openai":
		setIfEmpty(&out.OpenAI.APIKey, c.LLM.APIKey)
		setNonEmpty(&out.OpenAI.Model, c.LLM.Model)
		out.OpenAI.BaseURL = c.LLM.BaseURL
	case "anthropic":
		setIfEmpty(&out.Anthropic.APIKey, c.LLM.APIKey)
		setNonEmpty(&out.Anthropic.Model, c.LLM.Model)
	}
	if c.LLM.MaxTokens > 0 {
		out.MaxTokens = c.LLM.MaxTokens
	}
	if c.LLM.Temperature > 0 {
		out.Temperature = c.LLM.Temperature
	}
	out.Timeout = TTLDuration(c.LLM.Timeout, out.Timeout)
	if c.LLM.Retry.MaxAttempts > 0 {
		out.Retry.MaxAttempts = c.LLM.Retry.MaxAttempts
	}
	out.Retry.InitialWait = TTLDuration(c.LLM.Retry.InitialWait, out.Retry.InitialWait)
	out.Retry.MaxWait = TTLDuration(c.LLM.Retry.MaxWait, out.Retry.MaxWait)
	out.ApplyEnv()
	return out
}

// Location resolves the progression timezone; empty means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Progression.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Progression.Timezone)
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
