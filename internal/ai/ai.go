// Package ai provides interfaces and implementations for generating
// subscriber replies through different LLM backends.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rmarques/fanvuebot/internal/config"
	"github.com/rmarques/fanvuebot/internal/fanvue"
)

// ErrGeneration indicates the generation service returned a malformed
// response, timed out, or otherwise failed. Callers treat it as
// recoverable: skip the message and retry on the next poll cycle.
var ErrGeneration = errors.New("reply generation failure")

// Client generates a reply to one subscriber message, using the message's
// conversation history as context. The persona is the account's system
// prompt; when empty, a default persona is substituted so requests stay
// well-formed.
type Client interface {
	Generate(ctx context.Context, persona string, msg fanvue.Message) (string, error)
}

// NewClient creates and returns a Client based on the provided configuration.
// It acts as a factory, selecting either the OpenAI-compatible or Gemini
// implementation. Backend, credentials, and sampling parameters are fixed
// per deployment.
func NewClient(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Initializing AI client", "backend", cfg.Backend, "model", cfg.Model)

	switch cfg.Backend {
	case "openai":
		return newOpenAIClient(cfg, logger)
	case "gemini":
		return newGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown AI backend specified: %s", cfg.Backend)
	}
}
