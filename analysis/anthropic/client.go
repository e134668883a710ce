// Package anthropic provides an analysis client backed by Anthropic's
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/danfors/topicd/analysis"
	"github.com/danfors/topicd/conversations"
	"github.com/danfors/topicd/memory"
)

const maxResponseTokens = 2048

// Client implements analysis.Analyzer and analysis.ProfileExtractor for
// Anthropic's API.
type Client struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewClient creates a new Client with the given API key and model.
func NewClient(apiKey, model string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "anthropic-analysis").Logger(),
	}, nil
}

// AssessTopic implements analysis.Analyzer.
func (c *Client) AssessTopic(ctx context.Context, req *analysis.Request) (*analysis.Assessment, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	text, err := c.complete(ctx, analysis.BuildTopicPrompt(req),
		"Assess the topic against the conversation above.")
	if err != nil {
		return nil, err
	}
	return analysis.ParseAssessment(text)
}

// ExtractProfile implements analysis.ProfileExtractor.
func (c *Client) ExtractProfile(ctx context.Context, window []conversations.Message) (memory.ProfileUpdate, error) {
	text, err := c.complete(ctx, analysis.BuildProfilePrompt(window),
		"Extract user profile information from the conversation above.")
	if err != nil {
		return memory.ProfileUpdate{}, err
	}
	return analysis.ParseProfileUpdate(text)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxResponseTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var sb strings.Builder
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(block.Text)
		}
	}

	c.logger.Debug().
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Msg("Analysis call complete")

	return sb.String(), nil
}
