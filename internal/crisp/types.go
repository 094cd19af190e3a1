package crisp

import (
	"encoding/json"
	"strings"
)

const (
	SenderUser     = "user"     // 客户
	SenderOperator = "operator" // 客服

	MessageTypeText = "text"
	MessageTypeNote = "note"
)

// ConversationMeta 会话元信息
type ConversationMeta struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Subject  string `json:"subject"`
}

// Unread 未读计数
type Unread struct {
	Operator int `json:"operator"`
	Visitor  int `json:"visitor"`
}

// Conversation 会话列表中的单个会话
type Conversation struct {
	SessionID   string           `json:"session_id"`
	WebsiteID   string           `json:"website_id"`
	State       string           `json:"state"` // pending / unresolved / resolved
	LastMessage string           `json:"last_message"`
	Meta        ConversationMeta `json:"meta"`
	Unread      Unread           `json:"unread"`
	CreatedAt   int64            `json:"created_at"` // 毫秒时间戳
	UpdatedAt   int64            `json:"updated_at"`
}

// DisplayName 返回客户展示名称：昵称 > 邮箱 > 会话ID
func (c Conversation) DisplayName() string {
	if name := strings.TrimSpace(c.Meta.Nickname); name != "" {
		return name
	}
	if email := strings.TrimSpace(c.Meta.Email); email != "" {
		return email
	}
	return c.SessionID
}

// MessageUser 消息发送者信息
type MessageUser struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
}

// Message 会话中的单条消息。Content 对文本和备注是字符串，对文件、动图等是对象。
type Message struct {
	SessionID   string          `json:"session_id"`
	Type        string          `json:"type"`
	From        string          `json:"from"`
	Origin      string          `json:"origin"`
	Content     json.RawMessage `json:"content"`
	Fingerprint int64           `json:"fingerprint"`
	Timestamp   int64           `json:"timestamp"` // 毫秒时间戳
	User        MessageUser     `json:"user"`
}

// Text 返回文本内容，非字符串内容返回空字符串
func (m Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(m.Content, &text); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// IsNote 是否为内部备注（客户不可见）
func (m Message) IsNote() bool {
	return m.Type == MessageTypeNote
}

// FromCustomer 是否由客户发送
func (m Message) FromCustomer() bool {
	return m.From == SenderUser
}

// noteRequest 添加备注的请求体
type noteRequest struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Origin  string `json:"origin"`
	Content string `json:"content"`
}

// envelope Crisp API 的统一响应结构
type envelope struct {
	Error  bool            `json:"error"`
	Reason string          `json:"reason"`
	Data   json.RawMessage `json:"data"`
}
