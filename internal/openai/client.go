// Package openai provides a unified client for OpenAI API access
// with support for both Azure OpenAI (primary) and OpenAI platform (fallback)
package openai

import (
	"context"
	"fmt"
	"time"

	"chatdigest/internal/config"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// Client wraps OpenAI client with Azure OpenAI support and fallback capability
type Client struct {
	primary       *openai.Client
	fallback      *openai.Client
	useAzure      bool
	gptModel      string
	embedModel    openai.EmbeddingModel
	fallbackGPT   string
	fallbackEmbed openai.EmbeddingModel
	dimensions    int
	providerName  string
	logger        zerolog.Logger
}

// NewClient creates a new OpenAI client with Azure as primary and OpenAI as fallback
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	client := &Client{
		dimensions:    cfg.EmbeddingDimensions,
		fallbackGPT:   cfg.OpenAIChatModel,
		fallbackEmbed: openai.EmbeddingModel(cfg.OpenAIEmbeddingModel),
		logger:        logger.With().Str("component", "openai_client").Logger(),
	}

	// Try Azure OpenAI first (primary)
	if cfg.UseAzureOpenAI() {
		azureConfig := openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
		client.primary = openai.NewClientWithConfig(azureConfig)
		client.useAzure = true
		client.gptModel = cfg.AzureOpenAIGPTDeployment
		client.embedModel = openai.EmbeddingModel(cfg.AzureOpenAIEmbeddingDeployment)
		client.providerName = "Azure OpenAI"

		client.logger.Info().Str("endpoint", cfg.AzureOpenAIEndpoint).Msg("Primary provider: Azure OpenAI")
	}

	// Setup OpenAI as fallback (or primary if Azure not configured)
	if cfg.HasOpenAIFallback() {
		openaiConfig := openai.DefaultConfig(cfg.OpenAIKey)
		if cfg.OpenAIBaseURL != "" {
			openaiConfig.BaseURL = cfg.OpenAIBaseURL
		}
		client.fallback = openai.NewClientWithConfig(openaiConfig)

		if !client.useAzure {
			// Use OpenAI as primary since Azure is not configured
			client.primary = client.fallback
			client.fallback = nil
			client.gptModel = cfg.OpenAIChatModel
			client.embedModel = openai.EmbeddingModel(cfg.OpenAIEmbeddingModel)
			client.providerName = "OpenAI"

			client.logger.Info().Msg("Primary provider: OpenAI (Azure not configured)")
		} else {
			client.logger.Info().Msg("Fallback provider: OpenAI")
		}
	}

	if client.primary == nil {
		return nil, fmt.Errorf("no OpenAI provider configured: set AZURE_OPENAI_ENDPOINT + AZURE_OPENAI_KEY or OPENAI_API_KEY")
	}

	return client, nil
}

// TestConnection verifies the API connection works
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.CreateEmbeddings(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.providerName, err)
	}

	c.logger.Info().Str("provider", c.providerName).Msg("Connection test successful")
	return nil
}

// CreateEmbeddings generates embeddings for the given texts
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      c.embedModel,
		Dimensions: c.dimensions,
	}

	resp, err := c.primary.CreateEmbeddings(ctx, req)
	if err != nil && c.fallback != nil && ctx.Err() == nil {
		// Try fallback provider
		c.logger.Warn().Err(err).Msg("Primary embeddings failed, trying fallback")
		req.Model = c.fallbackEmbed
		resp, err = c.fallback.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("both providers failed: %w", err)
		}
		c.logger.Info().Msg("Fallback embeddings succeeded")
	} else if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}

	return embeddings, nil
}

// CreateChatCompletion generates a chat completion
func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	req.Model = c.gptModel

	resp, err := c.primary.CreateChatCompletion(ctx, req)
	if err != nil && c.fallback != nil && ctx.Err() == nil {
		// Try fallback provider with OpenAI model name
		c.logger.Warn().Err(err).Msg("Primary chat failed, trying fallback")
		req.Model = c.fallbackGPT
		resp, err = c.fallback.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("both providers failed: %w", err)
		}
		c.logger.Info().Msg("Fallback chat succeeded")
	} else if err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetProviderName returns the current primary provider name
func (c *Client) GetProviderName() string {
	return c.providerName
}

// IsUsingAzure returns true if Azure OpenAI is the primary provider
func (c *Client) IsUsingAzure() bool {
	return c.useAzure
}

// GetGPTModel returns the GPT model/deployment name being used
func (c *Client) GetGPTModel() string {
	return c.gptModel
}

// GetEmbeddingModel returns the embedding model/deployment name being used
func (c *Client) GetEmbeddingModel() string {
	return string(c.embedModel)
}
