package crisp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient 创建指向 httptest 服务的客户端
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.Crisp{
		BaseURL:    srv.URL,
		Identifier: "ident",
		Key:        "secret",
		WebsiteID:  "site-1",
	}, srv.Client())
}

func TestListConversations_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/website/site-1/conversations/1", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ident", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "plugin", r.Header.Get("X-Crisp-Tier"))

		_, _ = io.WriteString(w, `{"error":false,"reason":"listed","data":[
			{"session_id":"session_a","state":"pending","meta":{"nickname":"Alice"}},
			{"session_id":"session_b","meta":{"email":"bob@example.com"}}
		]}`)
	})

	conversations, err := client.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, "session_a", conversations[0].SessionID)
	assert.Equal(t, "Alice", conversations[0].DisplayName())
	assert.Equal(t, "bob@example.com", conversations[1].DisplayName())
}

func TestListConversations_FailsOpen(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "非 2xx 状态码",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":true,"reason":"invalid_session"}`)
			},
		},
		{
			name: "error 字段为 true",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"error":true,"reason":"not_found"}`)
			},
		},
		{
			name: "200 但响应不是 JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = io.WriteString(w, `<html>captive portal</html>`)
			},
		},
		{
			name: "200 但响应为空",
			handler: func(w http.ResponseWriter, r *http.Request) {},
		},
		{
			name: "data 结构不符",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"error":false,"data":{"unexpected":true}}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			conversations, err := client.ListConversations(context.Background(), 1)
			assert.Empty(t, conversations)
			assert.ErrorIs(t, err, ErrRequestFailed)
		})
	}
}

func TestListConversations_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(&config.Crisp{BaseURL: srv.URL, WebsiteID: "site-1"}, nil)
	conversations, err := client.ListConversations(context.Background(), 1)
	assert.Empty(t, conversations)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestGetMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/website/site-1/conversation/session_a/messages", r.URL.Path)
		_, _ = io.WriteString(w, `{"error":false,"reason":"resolved","data":[
			{"type":"text","from":"user","origin":"chat","content":"Hi, my order is late","timestamp":1},
			{"type":"file","from":"user","origin":"chat","content":{"name":"a.png","url":"https://x","type":"image/png"},"timestamp":2},
			{"type":"note","from":"operator","origin":"chat","content":"internal","timestamp":3},
			{"type":"text","from":"operator","origin":"chat","content":"  Let me check  ","timestamp":4}
		]}`)
	})

	messages, err := client.GetMessages(context.Background(), "session_a")
	require.NoError(t, err)
	require.Len(t, messages, 4)

	assert.True(t, messages[0].FromCustomer())
	assert.Equal(t, "Hi, my order is late", messages[0].Text())
	assert.Empty(t, messages[1].Text(), "对象内容应视为空文本")
	assert.True(t, messages[2].IsNote())
	assert.False(t, messages[3].FromCustomer())
	assert.Equal(t, "Let me check", messages[3].Text())
}

func TestGetMessages_EmptySessionID(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	messages, err := client.GetMessages(context.Background(), "")
	assert.Empty(t, messages)
	assert.ErrorIs(t, err, ErrMissingSessionID)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestAddNote(t *testing.T) {
	var got noteRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/website/site-1/conversation/session_a/message", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"error":false,"reason":"dispatched","data":{"fingerprint":123}}`)
	})

	err := client.AddNote(context.Background(), "session_a", "summary text")
	require.NoError(t, err)
	assert.Equal(t, noteRequest{Type: "note", From: "operator", Origin: "chat", Content: "summary text"}, got)
}

func TestAddNote_Failure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	err := client.AddNote(context.Background(), "session_a", "summary text")
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestAddNote_NonJSONResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html>captive portal</html>`)
	})

	err := client.AddNote(context.Background(), "session_a", "summary text")
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestDisplayName_FallsBackToSessionID(t *testing.T) {
	c := Conversation{SessionID: "session_z", Meta: ConversationMeta{Nickname: "  "}}
	assert.Equal(t, "session_z", c.DisplayName())
}
