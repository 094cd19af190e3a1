package summarizer

import "errors"

// Mode 分析模式
type Mode int

const (
	// ModeDetailed 定时任务使用的五段式详细分析
	ModeDetailed Mode = iota
	// ModeQuick 客服按需触发的三段式快速分析
	ModeQuick
)

func (m Mode) String() string {
	switch m {
	case ModeDetailed:
		return "detailed"
	case ModeQuick:
		return "quick"
	default:
		return "unknown"
	}
}

var (
	// ErrNoMessages 会话没有任何消息（或获取失败）
	ErrNoMessages = errors.New("no messages found")
	// ErrNoContent 会话中没有可用于分析的文本消息
	ErrNoContent = errors.New("no message content to analyze")
	// ErrAnalysisFailed 模型调用失败或返回空结果
	ErrAnalysisFailed = errors.New("analysis failed")
)
