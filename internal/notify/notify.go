package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/fachebot/crisp-digest/internal/logger"
)

const (
	MaxSectionLength = 3000 // Slack section 文本最大长度
)

type textObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type block struct {
	Type     string       `json:"type"`
	Text     *textObject  `json:"text,omitempty"`
	Elements []textObject `json:"elements,omitempty"`
}

type webhookPayload struct {
	Text   string  `json:"text"` // 通知栏预览
	Blocks []block `json:"blocks"`
}

type Notifier struct {
	webhookURL string
	httpClient *http.Client
	location   *time.Location
	now        func() time.Time
}

func NewNotifier(cfg *config.Slack, httpClient *http.Client, loc *time.Location) *Notifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if loc == nil {
		loc = time.Local
	}
	return &Notifier{
		webhookURL: cfg.WebhookURL,
		httpClient: httpClient,
		location:   loc,
		now:        time.Now,
	}
}

// Notify 发送通知到 Slack webhook，失败不重试，由调用方记录
func (n *Notifier) Notify(ctx context.Context, content string) error {
	if content == "" {
		return nil
	}

	data, err := json.Marshal(n.buildPayload(content))
	if err != nil {
		return fmt.Errorf("序列化 Slack 消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("创建 Slack 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Slack 消息失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("发送 Slack 消息失败: 状态码 %d, %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	logger.Infof("[Notify] 已发送 Slack 通知 (%d 字符)", len(content))
	return nil
}

// buildPayload 组装 header、分隔线、正文、分隔线、footer
func (n *Notifier) buildPayload(content string) webhookPayload {
	now := n.now().In(n.location)
	title := fmt.Sprintf("Crisp Summary - %s", now.Format("03:04 PM"))

	blocks := []block{
		{Type: "header", Text: &textObject{Type: "plain_text", Text: title, Emoji: true}},
		{Type: "divider"},
	}
	for _, part := range splitMessage(content) {
		blocks = append(blocks, block{Type: "section", Text: &textObject{Type: "mrkdwn", Text: part}})
	}
	blocks = append(blocks,
		block{Type: "divider"},
		block{Type: "context", Elements: []textObject{
			{Type: "mrkdwn", Text: fmt.Sprintf("Generated by Crisp AI • %s", now.Format("2006-01-02 15:04:05"))},
		}},
	)

	return webhookPayload{Text: title, Blocks: blocks}
}

// splitMessage 将消息按长度拆分为多条
func splitMessage(content string) []string {
	if len(content) <= MaxSectionLength {
		return []string{content}
	}

	// 按段落拆分
	paragraphs := strings.Split(content, "\n\n")
	if len(paragraphs) == 1 {
		// 如果没有段落分隔，按换行拆分
		paragraphs = strings.Split(content, "\n")
	}

	messages := make([]string, 0)
	currentMsg := ""

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		testMsg := currentMsg
		if testMsg != "" {
			testMsg += "\n\n"
		}
		testMsg += para

		if len(testMsg) <= MaxSectionLength {
			currentMsg = testMsg
			continue
		}

		// 当前消息已满，保存并开始新消息
		if currentMsg != "" {
			messages = append(messages, currentMsg)
		}
		currentMsg = ""
		if len(para) <= MaxSectionLength {
			currentMsg = para
			continue
		}
		// 单个段落就超过长度，按字符强制切分
		chunks := chunkRunes(para, MaxSectionLength)
		messages = append(messages, chunks[:len(chunks)-1]...)
		currentMsg = chunks[len(chunks)-1]
	}

	if currentMsg != "" {
		messages = append(messages, currentMsg)
	}

	return messages
}

// chunkRunes 按字节上限切分，不拆开多字节字符
func chunkRunes(s string, limit int) []string {
	var chunks []string
	var sb strings.Builder
	for _, r := range s {
		if sb.Len()+len(string(r)) > limit {
			chunks = append(chunks, sb.String())
			sb.Reset()
		}
		sb.WriteRune(r)
	}
	if sb.Len() > 0 {
		chunks = append(chunks, sb.String())
	}
	return chunks
}
