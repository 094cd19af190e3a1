package svc

import (
	"net/http"
	"testing"
	"time"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_Direct(t *testing.T) {
	c := &config.Config{HTTPTimeoutSeconds: 15}

	client, err := newHTTPClient(c)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotNil(t, transport.DialContext)
}

func TestNewHTTPClient_Socks5(t *testing.T) {
	c := &config.Config{
		Sock5Proxy: config.Sock5Proxy{Host: "127.0.0.1", Port: 1080, Enable: true},
	}

	client, err := newHTTPClient(c)
	require.NoError(t, err)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, transport.Proxy)
	assert.NotNil(t, transport.DialContext)
}

func TestNewServiceContext(t *testing.T) {
	c := &config.Config{
		Crisp: config.Crisp{BaseURL: config.DefaultCrispBaseURL, Identifier: "id", Key: "key", WebsiteID: "site"},
		LLM:   config.LLM{Provider: "anthropic", APIKey: "sk-test", Model: config.DefaultModel},
		Slack: config.Slack{WebhookURL: "https://hooks.slack.com/services/T/B/X"},
	}

	svcCtx := NewServiceContext(c)
	defer svcCtx.Close()

	assert.NotNil(t, svcCtx.HTTPClient)
	assert.NotNil(t, svcCtx.CrispClient)
	assert.NotNil(t, svcCtx.LLMClient)
	assert.NotNil(t, svcCtx.Summarizer)
	assert.NotNil(t, svcCtx.Notifier)
}
