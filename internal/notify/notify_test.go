package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 15, 4, 5, 0, time.UTC)

func newTestNotifier(url string) *Notifier {
	n := NewNotifier(&config.Slack{WebhookURL: url}, nil, time.UTC)
	n.now = func() time.Time { return fixedNow }
	return n
}

func TestNotify_PostsBlocks(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).Notify(context.Background(), "No active chats")
	require.NoError(t, err)

	require.Len(t, got.Blocks, 5)
	assert.Equal(t, "header", got.Blocks[0].Type)
	assert.Equal(t, "Crisp Summary - 03:04 PM", got.Blocks[0].Text.Text)
	assert.Equal(t, "divider", got.Blocks[1].Type)
	assert.Equal(t, "section", got.Blocks[2].Type)
	assert.Equal(t, "mrkdwn", got.Blocks[2].Text.Type)
	assert.Equal(t, "No active chats", got.Blocks[2].Text.Text)
	assert.Equal(t, "divider", got.Blocks[3].Type)
	assert.Equal(t, "context", got.Blocks[4].Type)
	assert.Equal(t, "Generated by Crisp AI • 2025-03-14 15:04:05", got.Blocks[4].Elements[0].Text)
}

func TestNotify_EmptyContentSkipped(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	assert.NoError(t, newTestNotifier(srv.URL).Notify(context.Background(), ""))
	assert.False(t, called)
}

func TestNotify_FailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no_service"))
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "no_service")
}

func TestSplitMessage(t *testing.T) {
	short := "short message"
	assert.Equal(t, []string{short}, splitMessage(short))

	para := strings.Repeat("a", 2000)
	long := para + "\n\n" + para + "\n\n" + para
	parts := splitMessage(long)
	assert.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), MaxSectionLength)
	}
}

func TestSplitMessage_OversizedParagraph(t *testing.T) {
	content := "intro\n\n" + strings.Repeat("é", 4000)
	parts := splitMessage(content)

	require.GreaterOrEqual(t, len(parts), 3)
	assert.Equal(t, "intro", parts[0])
	total := 0
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), MaxSectionLength)
		assert.True(t, utf8.ValidString(p))
		total += utf8.RuneCountInString(p)
	}
	assert.Equal(t, len("intro")+4000, total)
}
