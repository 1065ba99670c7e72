package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/minghe/poetry-annotator/internal/util"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
// Third-party providers are reached through BaseURL overrides.
type OpenAIClient struct {
	client *openai.Client
	cfg    ModelConfig
}

// NewOpenAIClient builds a client for one model configuration. The API
// key is read from the environment variable named in the config.
func NewOpenAIClient(cfg ModelConfig) (*OpenAIClient, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("model %s: %w: environment variable %s is empty",
			cfg.Identifier, util.ErrInvalidConfig, cfg.APIKeyEnv)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// Complete sends one chat completion request and returns the raw text
// of the first choice
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", c.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{
			Model:     c.cfg.Identifier,
			Transient: true,
			Err:       errors.New("response contained no choices"),
		}
	}

	util.DebugLog("Model %s: completion ok (%d prompt / %d completion tokens)",
		c.cfg.Identifier, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}

// classify maps provider failures onto the transient/permanent split.
// 429 and 5xx are retryable, 4xx are not; anything without an HTTP
// status (timeouts, connection failures) is treated as transient.
func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Model:      c.cfg.Identifier,
			StatusCode: apiErr.HTTPStatusCode,
			Transient:  apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{
			Model:      c.cfg.Identifier,
			StatusCode: reqErr.HTTPStatusCode,
			Transient:  reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500,
			Err:        err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Model: c.cfg.Identifier, Transient: true, Err: err}
	}

	return &ProviderError{
		Model:     c.cfg.Identifier,
		Transient: util.IsRetryableError(err),
		Err:       err,
	}
}
