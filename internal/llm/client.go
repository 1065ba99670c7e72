// Package llm provides the completion capability used by the
// annotator: a narrow interface, an OpenAI-compatible implementation
// and the prompt construction for poem annotation.
package llm

import (
	"context"
	"time"
)

// Client is the completion capability the annotator depends on.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a system/user prompt pair and returns the raw
	// model output.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ModelConfig describes one configured model endpoint. Identifier is
// the stable name annotations are recorded under; Model is what the
// provider API expects.
type ModelConfig struct {
	Identifier  string        `mapstructure:"identifier"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`    // empty means the provider default
	APIKeyEnv   string        `mapstructure:"api_key_env"` // environment variable holding the key
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`

	MaxWorkers   int           `mapstructure:"max_workers"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryWait    time.Duration `mapstructure:"retry_wait"`    // initial retry backoff
	RequestDelay time.Duration `mapstructure:"request_delay"` // fixed pause before each request

	RateCapacity  int     `mapstructure:"rate_capacity"`
	RateRefillSec float64 `mapstructure:"rate_refill_per_sec"`

	BreakerFailMax      int           `mapstructure:"breaker_fail_max"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
}
