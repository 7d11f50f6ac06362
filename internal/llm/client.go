package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse - модель не вернула ни одного варианта ответа.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Completer отправляет промпт модели и возвращает текст ответа.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config - параметры подключения к OpenAI-совместимому API.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIClient реализует Completer поверх go-openai.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient создает клиента с собственным HTTP-таймаутом.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: missing API key")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	slog.Info("[LLMClient] client initialized",
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

// Complete выполняет один запрос без повторов.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	slog.Debug("[LLMClient] completion finished",
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
		slog.Duration("elapsed", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

// Unavailable - Completer, который всегда возвращает ошибку.
// Используется, когда ключ API не настроен.
type Unavailable struct{}

func (Unavailable) Complete(context.Context, string) (string, error) {
	return "", errors.New("llm: not configured")
}
