package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultSystemPrompt = `You help a candidate during a technical interview.
Answer the question in at most 12 short lines. Lead with the key idea.
For coding questions give the approach and complexity before any code.
Question category: %s. Preferred language: %s.`

// OpenAIConfig configures the chat completion generator
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

// OpenAIGenerator renders answers with an OpenAI compatible chat model.
// On API errors it falls back to a TemplateGenerator when one is set.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int64
	fallback  *TemplateGenerator
	logger    pipeline.Logger
}

// NewOpenAIGenerator creates a chat completion generator
func NewOpenAIGenerator(config OpenAIConfig, fallback *TemplateGenerator, logger pipeline.Logger) (*OpenAIGenerator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai generator: missing api key")
	}
	if config.Model == "" {
		config.Model = openai.ChatModelGPT4oMini
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(1),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIGenerator{
		client:    &client,
		model:     config.Model,
		maxTokens: config.MaxTokens,
		fallback:  fallback,
		logger:    logger.With(pipeline.String("component", "openai_generator")),
	}, nil
}

// Generate asks the model for an answer
func (g *OpenAIGenerator) Generate(ctx context.Context, classification pipeline.Classification, text string) (pipeline.Answer, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(defaultSystemPrompt, classification.Category, DetectLanguage(text))),
			openai.UserMessage(text),
		},
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(g.maxTokens)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err == nil && len(resp.Choices) > 0 && strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		return pipeline.Answer{
			Question:    text,
			Category:    classification.Category,
			Body:        strings.TrimSpace(resp.Choices[0].Message.Content),
			Confidence:  classification.Confidence,
			GeneratedAt: time.Now(),
		}, nil
	}

	if err == nil {
		err = fmt.Errorf("openai chat: empty completion")
	} else {
		err = fmt.Errorf("openai chat: %w", err)
	}

	if g.fallback == nil || ctx.Err() != nil {
		return pipeline.Answer{}, err
	}

	g.logger.Warn("Falling back to template answer", pipeline.Error(err))
	return g.fallback.Generate(ctx, classification, text)
}
