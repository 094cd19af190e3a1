package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/fachebot/crisp-digest/internal/logger"
	"github.com/sashabaranov/go-openai"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

var ErrEmptyResponse = errors.New("LLM API 返回空结果")

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// anthropicMessagesInterface 定义 Anthropic Messages 接口，便于测试
type anthropicMessagesInterface interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type Client struct {
	config          *config.LLM
	openaiClient    openAIClientInterface
	anthropicClient anthropicMessagesInterface
}

// NewClient 按 Provider 创建模型客户端，httpClient 为空时使用各 SDK 默认客户端
func NewClient(cfg *config.LLM, httpClient *http.Client) *Client {
	client := &Client{config: cfg}

	switch cfg.Provider {
	case ProviderOpenAI:
		openaiConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openaiConfig.BaseURL = cfg.BaseURL
		}
		if httpClient != nil {
			openaiConfig.HTTPClient = httpClient
		}
		client.openaiClient = openai.NewClientWithConfig(openaiConfig)
	default:
		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		if httpClient != nil {
			opts = append(opts, option.WithHTTPClient(httpClient))
		}
		// 不使用 SDK 内置重试，失败由调用方跳过
		opts = append(opts, option.WithMaxRetries(0))
		anthropicClient := anthropic.NewClient(opts...)
		client.anthropicClient = &anthropicClient.Messages
	}

	return client
}

// Complete 发送单条 user 消息，返回模型输出的文本
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var (
		content string
		err     error
	)
	switch {
	case c.anthropicClient != nil:
		content, err = c.completeAnthropic(ctx, prompt, maxTokens)
	case c.openaiClient != nil:
		content, err = c.completeOpenAI(ctx, prompt, maxTokens)
	default:
		return "", fmt.Errorf("未配置 LLM 供应商: %q", c.config.Provider)
	}
	if err != nil {
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (c *Client) completeAnthropic(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.anthropicClient.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("调用 LLM API 失败: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	logger.Debugf("[LLM] 调用完成: model=%s, stop_reason=%s", c.config.Model, resp.StopReason)
	return sb.String(), nil
}

func (c *Client) completeOpenAI(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("调用 LLM API 失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	logger.Debugf("[LLM] 调用完成: model=%s, finish_reason=%s", c.config.Model, resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
