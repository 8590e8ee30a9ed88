package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/rmarques/fanvuebot/internal/config"
	"github.com/rmarques/fanvuebot/internal/fanvue"
)

// geminiClient implements Client using Google's Gemini API.
type geminiClient struct {
	genaiClient *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	logger      *slog.Logger
}

func newGeminiClient(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*geminiClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Token,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiClient{
		genaiClient: gi,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
		timeout:     cfg.Timeout,
		logger:      logger.With("component", "gemini_client"),
	}, nil
}

// Generate creates a reply using Gemini with the persona as system
// instruction and the subscriber message, framed by its conversation
// history, as user content.
func (c *geminiClient) Generate(ctx context.Context, persona string, msg fanvue.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := c.temperature
	contentCfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: c.maxTokens,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction(persona)}},
		},
	}

	startTime := time.Now()
	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt(msg)), contentCfg)
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate content: %v", ErrGeneration, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrGeneration)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply content", ErrGeneration)
	}

	c.logger.DebugContext(ctx, "Generated reply",
		"model", c.model, "duration", time.Since(startTime))
	return reply, nil
}
