package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/source"
)

const defaultModel = "gpt-4o"

// ErrEmptyResponse is returned when the provider answers without any
// usable text.
var ErrEmptyResponse = errors.New("empty AI response")

// Provider generates reply text through the OpenAI chat completions API.
type Provider struct {
	client openai.Client
	model  string
	logger *log.Logger
}

// NewProvider creates a provider from cfg. Extra options are applied
// after the configured ones.
func NewProvider(cfg model.OpenAIConfig, logger *log.Logger, opts ...option.RequestOption) *Provider {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}

	return &Provider{
		client: openai.NewClient(append(base, opts...)...),
		model:  modelName,
		logger: logger,
	}
}

// Complete sends req and returns the text of the first choice.
func (p *Provider) Complete(ctx context.Context, req Request) (string, error) {
	p.logger.Debug("sending AI request", "model", p.model, "segments", len(req.Segments))
	p.logger.Debug(req.String())

	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return "", &source.AuthError{
				Service: source.ServiceOpenAI,
				Message: "API key rejected",
			}
		}
		return "", fmt.Errorf("calling OpenAI: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := completion.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	p.logger.Debug("AI response received", "length", len(text))
	p.logger.Debug(text)

	return text, nil
}

func (p *Provider) params(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Segments))
	for _, s := range req.Segments {
		switch s.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(s.Content))
		default:
			messages = append(messages, openai.UserMessage(s.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(p.model),
		Messages:         messages,
		Temperature:      openai.Float(req.Params.Temperature),
		MaxTokens:        openai.Int(req.Params.MaxTokens),
		TopP:             openai.Float(req.Params.TopP),
		FrequencyPenalty: openai.Float(req.Params.FrequencyPenalty),
		PresencePenalty:  openai.Float(req.Params.PresencePenalty),
	}
}
