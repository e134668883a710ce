// Package openai provides an analysis client backed by OpenAI's chat
// completion API.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/danfors/topicd/analysis"
	"github.com/danfors/topicd/conversations"
	"github.com/danfors/topicd/memory"
)

// Low temperature keeps extraction output stable across identical windows.
const extractionTemperature = 0.1

// Client implements analysis.Analyzer and analysis.ProfileExtractor for
// OpenAI's API.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new Client.
// If baseURL is empty, it will use the default OpenAI API endpoint.
func NewClient(apiKey, baseURL, model, organization string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
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
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: extractionTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
