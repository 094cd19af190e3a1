package svc

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/fachebot/crisp-digest/internal/crisp"
	"github.com/fachebot/crisp-digest/internal/llm"
	"github.com/fachebot/crisp-digest/internal/logger"
	"github.com/fachebot/crisp-digest/internal/notify"
	"github.com/fachebot/crisp-digest/internal/summarizer"

	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config      *config.Config
	HTTPClient  *http.Client
	CrispClient *crisp.Client
	LLMClient   *llm.Client
	Summarizer  *summarizer.Summarizer
	Notifier    *notify.Notifier
}

func NewServiceContext(c *config.Config) *ServiceContext {
	httpClient, err := newHTTPClient(c)
	if err != nil {
		logger.Fatalf("创建HTTP客户端失败, %v", err)
	}

	crispClient := crisp.NewClient(&c.Crisp, httpClient)
	llmClient := llm.NewClient(&c.LLM, httpClient)

	svcCtx := &ServiceContext{
		Config:      c,
		HTTPClient:  httpClient,
		CrispClient: crispClient,
		LLMClient:   llmClient,
		Summarizer:  summarizer.NewSummarizer(llmClient, crispClient, &c.LLM),
		Notifier:    notify.NewNotifier(&c.Slack, httpClient, c.Location()),
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	svcCtx.HTTPClient.CloseIdleConnections()
}

// newHTTPClient 创建所有出站请求共用的客户端，启用时经 SOCKS5 代理
func newHTTPClient(c *config.Config) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("创建SOCKS5代理失败: %w", err)
		}

		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		logger.Infof("出站请求使用SOCKS5代理 %s", socks5Proxy)
	}

	return &http.Client{
		Timeout:   c.HTTPTimeout(),
		Transport: transport,
	}, nil
}
