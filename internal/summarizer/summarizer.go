package summarizer

import (
	"context"
	"fmt"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/fachebot/crisp-digest/internal/crisp"
	"github.com/fachebot/crisp-digest/internal/llm"
	"github.com/fachebot/crisp-digest/internal/logger"
)

// messageProvider 获取会话消息（便于测试注入 mock）
type messageProvider interface {
	GetMessages(ctx context.Context, sessionID string) ([]crisp.Message, error)
}

// llmCompleter 调用模型生成文本（便于测试注入 mock）
type llmCompleter interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

type Summarizer struct {
	llmClient       llmCompleter
	messageProvider messageProvider
	config          *config.LLM
}

func NewSummarizer(llmClient *llm.Client, crispClient *crisp.Client, cfg *config.LLM) *Summarizer {
	return &Summarizer{
		llmClient:       llmClient,
		messageProvider: crispClient,
		config:          cfg,
	}
}

// AnalyzeDetailed 对最近的消息生成五段式详细分析
func (s *Summarizer) AnalyzeDetailed(ctx context.Context, messages []crisp.Message) (string, error) {
	return s.analyze(ctx, ModeDetailed, messages)
}

// AnalyzeQuick 对最近的消息生成三段式快速分析
func (s *Summarizer) AnalyzeQuick(ctx context.Context, messages []crisp.Message) (string, error) {
	return s.analyze(ctx, ModeQuick, messages)
}

// AnalyzeSession 拉取会话消息并按模式分析。
// 获取失败与没有消息都返回 ErrNoMessages，调用方据此跳过。
func (s *Summarizer) AnalyzeSession(ctx context.Context, sessionID string, mode Mode) (string, error) {
	messages, err := s.messageProvider.GetMessages(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoMessages, err)
	}
	if len(messages) == 0 {
		return "", ErrNoMessages
	}
	logger.Debugf("[Summarizer] 会话 %s 共 %d 条消息，开始%s分析", sessionID, len(messages), mode)
	return s.analyze(ctx, mode, messages)
}

// analyze 构建转录和提示词并调用模型。
// 任何失败都返回空字符串和错误，不会向上中断整个流程。
func (s *Summarizer) analyze(ctx context.Context, mode Mode, messages []crisp.Message) (string, error) {
	window, maxTokens := s.config.DetailedWindow, s.config.DetailedMaxTokens
	if mode == ModeQuick {
		window, maxTokens = s.config.QuickWindow, s.config.QuickMaxTokens
	}

	transcript := BuildTranscript(messages, window)
	if transcript == "" {
		return "", ErrNoContent
	}

	result, err := s.llmClient.Complete(ctx, buildPrompt(mode, transcript), maxTokens)
	if err != nil {
		logger.Errorf("[Summarizer] %s 分析失败: %v", mode, err)
		return "", fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	if result == "" {
		return "", ErrAnalysisFailed
	}
	return result, nil
}
