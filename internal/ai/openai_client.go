package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rmarques/fanvuebot/internal/config"
	"github.com/rmarques/fanvuebot/internal/fanvue"
)

// openAIClient implements Client against any OpenAI-compatible chat
// completion endpoint via a configurable base URL.
type openAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
}

func newOpenAIClient(cfg config.AIConfig, logger *slog.Logger) (*openAIClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("AI API token is required")
	}

	clientCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &openAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger.With("component", "openai_client"),
	}, nil
}

// Generate creates a reply using the chat completion API with the persona
// as system context and the subscriber message, framed by its conversation
// history, as user content.
func (c *openAIClient) Generate(ctx context.Context, persona string, msg fanvue.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction(persona)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(msg)},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices", ErrGeneration)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply content", ErrGeneration)
	}

	c.logger.DebugContext(ctx, "Generated reply",
		"model", c.model, "duration", time.Since(startTime))
	return reply, nil
}
