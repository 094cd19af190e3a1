package crisp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/fachebot/crisp-digest/internal/logger"
)

const maxResponseBytes = 4 << 20

var (
	ErrRequestFailed    = errors.New("crisp request failed")
	ErrMissingSessionID = errors.New("session id is empty")
)

// Client Crisp REST API 客户端。
// 所有读取接口失败时返回空结果和错误，调用方可把错误当作“无内容”处理。
type Client struct {
	config     *config.Crisp
	httpClient *http.Client
}

func NewClient(cfg *config.Crisp, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// ListConversations 获取指定页的会话列表
func (c *Client) ListConversations(ctx context.Context, page int) ([]Conversation, error) {
	if page <= 0 {
		page = 1
	}
	path := fmt.Sprintf("/website/%s/conversations/%d", url.PathEscape(c.config.WebsiteID), page)

	var conversations []Conversation
	if err := c.do(ctx, http.MethodGet, path, nil, &conversations); err != nil {
		logger.Warnf("[Crisp] 获取会话列表失败 (page=%d): %v", page, err)
		return nil, err
	}
	logger.Debugf("[Crisp] 获取到 %d 个会话 (page=%d)", len(conversations), page)
	return conversations, nil
}

// GetMessages 获取会话的消息，按时间从旧到新排列
func (c *Client) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	path := fmt.Sprintf("/website/%s/conversation/%s/messages",
		url.PathEscape(c.config.WebsiteID), url.PathEscape(sessionID))

	var messages []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		logger.Warnf("[Crisp] 获取会话 %s 的消息失败: %v", sessionID, err)
		return nil, err
	}
	return messages, nil
}

// AddNote 以客服身份向会话添加一条内部备注
func (c *Client) AddNote(ctx context.Context, sessionID, content string) error {
	if sessionID == "" {
		return ErrMissingSessionID
	}
	path := fmt.Sprintf("/website/%s/conversation/%s/message",
		url.PathEscape(c.config.WebsiteID), url.PathEscape(sessionID))

	body := noteRequest{
		Type:    MessageTypeNote,
		From:    SenderOperator,
		Origin:  "chat",
		Content: content,
	}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		logger.Warnf("[Crisp] 向会话 %s 添加备注失败: %v", sessionID, err)
		return err
	}
	logger.Infof("[Crisp] 已向会话 %s 添加备注", sessionID)
	return nil
}

// do 发送请求并把响应中的 data 解析到 out
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.SetBasicAuth(c.config.Identifier, c.config.Key)
	req.Header.Set("X-Crisp-Tier", "plugin")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: 读取响应失败: %w", ErrRequestFailed, err)
	}

	var env envelope
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		_ = json.Unmarshal(raw, &env)
		return fmt.Errorf("%w: %s %s 返回 %d %s", ErrRequestFailed, method, path, resp.StatusCode, env.Reason)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %s %s 响应不是有效的 JSON: %w", ErrRequestFailed, method, path, err)
	}
	if env.Error {
		return fmt.Errorf("%w: %s %s 返回错误 %s", ErrRequestFailed, method, path, env.Reason)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: 解析响应数据失败: %w", ErrRequestFailed, err)
	}
	return nil
}
