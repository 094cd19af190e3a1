package summarizer

import (
	"fmt"
	"strings"

	"github.com/fachebot/crisp-digest/internal/crisp"
)

// 段落标题是下游渲染和解析依赖的固定格式，修改时需同步调整使用方
const (
	SectionIssue          = "*Issue:*"
	SectionSentiment      = "*Sentiment:*"
	SectionUrgency        = "*Urgency:*"
	SectionStepsTaken     = "*Steps Taken:*"
	SectionStatus         = "*Status:*"
	SectionRecommendation = "*Recommendation:*"
)

const detailedPromptTemplate = `You are a customer support analyst. Analyze the following support chat between a customer and a support agent.

Respond with exactly these five sections, in this order, each on its own line and limited to 1-2 sentences:

*Issue:* what the customer needs or the problem they reported
*Sentiment:* the customer's mood (Positive, Neutral, Frustrated or Angry) and why
*Urgency:* Low, Medium or High, and why
*Steps Taken:* what the agent has done so far
*Status:* Resolved, Pending or Needs Follow-up, with the next action if any

Do not add any other text.

Chat transcript:
%s`

const quickPromptTemplate = `You are assisting a support agent who is about to reply to a customer. Summarize the following support chat.

Respond with exactly these three sections, in this order, each on its own line and limited to 1-2 sentences:

*Issue:* what the customer needs or the problem they reported
*Steps Taken:* what has been done so far
*Recommendation:* the best next step for the agent

Do not add any other text.

Chat transcript:
%s`

// BuildTranscript 取最近 window 条有文本内容的消息，每行标注发送者角色。
// 内部备注不计入转录。
func BuildTranscript(messages []crisp.Message, window int) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.IsNote() {
			continue
		}
		text := m.Text()
		if text == "" {
			continue
		}
		role := "Agent"
		if m.FromCustomer() {
			role = "Customer"
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", role, text))
	}

	if window > 0 && len(lines) > window {
		lines = lines[len(lines)-window:]
	}
	return strings.Join(lines, "\n")
}

// buildPrompt 按模式套用提示词模板
func buildPrompt(mode Mode, transcript string) string {
	if mode == ModeQuick {
		return fmt.Sprintf(quickPromptTemplate, transcript)
	}
	return fmt.Sprintf(detailedPromptTemplate, transcript)
}
