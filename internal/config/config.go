package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCrispBaseURL = "https://api.crisp.chat/v1"
	DefaultModel        = "claude-sonnet-4-20250514"
	DefaultPort         = "8080"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type Server struct {
	Port          string `yaml:"Port"`
	WebhookSecret string `yaml:"WebhookSecret"` // 非空时校验 POST /widget 与 POST /webhook 的共享密钥
	PublicURL     string `yaml:"PublicURL"`     // 小部件调用 analyze 接口时使用的外部地址，空则使用相对路径
}

type Crisp struct {
	BaseURL           string `yaml:"BaseURL"`
	Identifier        string `yaml:"Identifier"`
	Key               string `yaml:"Key"`
	WebsiteID         string `yaml:"WebsiteID"`
	ConversationPage  int    `yaml:"ConversationPage"`  // 每次定时任务拉取的会话列表页码
	ConversationLimit int    `yaml:"ConversationLimit"` // 每次定时任务最多处理的会话数
	RequestDelayMs    int    `yaml:"RequestDelayMs"`    // 相邻会话之间的间隔（毫秒），避免触发平台限流
}

type LLM struct {
	Provider          string `yaml:"Provider"` // "anthropic" / "openai"
	BaseURL           string `yaml:"BaseURL"`  // 为空时使用供应商默认端点
	APIKey            string `yaml:"APIKey"`
	Model             string `yaml:"Model"`
	DetailedMaxTokens int    `yaml:"DetailedMaxTokens"`
	QuickMaxTokens    int    `yaml:"QuickMaxTokens"`
	DetailedWindow    int    `yaml:"DetailedWindow"` // 详细分析使用的最近消息条数
	QuickWindow       int    `yaml:"QuickWindow"`    // 快速分析使用的最近消息条数
}

type Slack struct {
	WebhookURL string `yaml:"WebhookURL"`
}

type Summary struct {
	Cron           string `yaml:"Cron"`           // cron 表达式，默认 "0 * * * *"
	SkipStartupRun bool   `yaml:"SkipStartupRun"` // 为 true 时启动后不立即执行一次总结
	Timezone       string `yaml:"Timezone"`       // 如 "Europe/Paris"，为空时使用本地时区
}

type Log struct {
	Level string `yaml:"Level"` // debug / info / warn / error
}

type Config struct {
	Sock5Proxy         Sock5Proxy `yaml:"Sock5Proxy"`
	Server             Server     `yaml:"Server"`
	Crisp              Crisp      `yaml:"Crisp"`
	LLM                LLM        `yaml:"LLM"`
	Slack              Slack      `yaml:"Slack"`
	Summary            Summary    `yaml:"Summary"`
	Log                Log        `yaml:"Log"`
	HTTPTimeoutSeconds int        `yaml:"HTTPTimeoutSeconds"`

	location *time.Location
}

// Load 依次读取配置文件、.env 与环境变量（环境变量优先），补全默认值后校验。
// 配置文件不存在时只使用环境变量。
func Load(filename string) (*Config, error) {
	_ = godotenv.Load()

	var c Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &c); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		}
	}

	c.overrideFromEnv()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) overrideFromEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.WebhookSecret, "WEBHOOK_SECRET")
	setString(&c.Server.PublicURL, "PUBLIC_URL")

	setString(&c.Crisp.BaseURL, "CRISP_API_BASE")
	setString(&c.Crisp.Identifier, "CRISP_IDENTIFIER")
	setString(&c.Crisp.Key, "CRISP_KEY")
	setString(&c.Crisp.WebsiteID, "CRISP_WEBSITE_ID")
	setInt(&c.Crisp.ConversationPage, "CONVERSATION_PAGE")
	setInt(&c.Crisp.ConversationLimit, "CONVERSATION_LIMIT")
	setInt(&c.Crisp.RequestDelayMs, "CRISP_REQUEST_DELAY_MS")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	setString(&c.LLM.APIKey, "LLM_API_KEY")

	setString(&c.Slack.WebhookURL, "SLACK_WEBHOOK_URL")

	setString(&c.Summary.Cron, "SUMMARY_CRON")
	setString(&c.Summary.Timezone, "TIMEZONE")

	setString(&c.Log.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Crisp.BaseURL == "" {
		c.Crisp.BaseURL = DefaultCrispBaseURL
	}
	c.Crisp.BaseURL = strings.TrimRight(c.Crisp.BaseURL, "/")
	if c.Crisp.ConversationPage <= 0 {
		c.Crisp.ConversationPage = 1
	}
	if c.Crisp.ConversationLimit == 0 {
		c.Crisp.ConversationLimit = 15
	}
	if c.Crisp.RequestDelayMs == 0 {
		c.Crisp.RequestDelayMs = 1000
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.DetailedMaxTokens == 0 {
		c.LLM.DetailedMaxTokens = 1024
	}
	if c.LLM.QuickMaxTokens == 0 {
		c.LLM.QuickMaxTokens = 512
	}
	if c.LLM.DetailedWindow == 0 {
		c.LLM.DetailedWindow = 50
	}
	if c.LLM.QuickWindow == 0 {
		c.LLM.QuickWindow = 30
	}
	if c.Summary.Cron == "" {
		c.Summary.Cron = "0 * * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "debug"
	}
	if c.HTTPTimeoutSeconds == 0 {
		c.HTTPTimeoutSeconds = 60
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 Crisp
	if c.Crisp.Identifier == "" {
		return fmt.Errorf("Crisp.Identifier (CRISP_IDENTIFIER) 不能为空")
	}
	if c.Crisp.Key == "" {
		return fmt.Errorf("Crisp.Key (CRISP_KEY) 不能为空")
	}
	if c.Crisp.WebsiteID == "" {
		return fmt.Errorf("Crisp.WebsiteID (CRISP_WEBSITE_ID) 不能为空")
	}
	if c.Crisp.ConversationLimit < 0 {
		return fmt.Errorf("Crisp.ConversationLimit 必须 >= 0")
	}
	if c.Crisp.RequestDelayMs < 0 {
		return fmt.Errorf("Crisp.RequestDelayMs 必须 >= 0")
	}

	// 验证 LLM
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM.APIKey (ANTHROPIC_API_KEY) 不能为空")
	}
	if c.LLM.Provider != "anthropic" && c.LLM.Provider != "openai" {
		return fmt.Errorf("LLM.Provider 必须是 'anthropic' 或 'openai'")
	}
	if c.LLM.DetailedMaxTokens <= 0 || c.LLM.QuickMaxTokens <= 0 {
		return fmt.Errorf("LLM.DetailedMaxTokens 与 LLM.QuickMaxTokens 必须大于 0")
	}
	if c.LLM.DetailedWindow <= 0 || c.LLM.QuickWindow <= 0 {
		return fmt.Errorf("LLM.DetailedWindow 与 LLM.QuickWindow 必须大于 0")
	}

	// 验证 Slack
	if c.Slack.WebhookURL == "" {
		return fmt.Errorf("Slack.WebhookURL (SLACK_WEBHOOK_URL) 不能为空")
	}

	// 验证 Server
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("Server.Port (PORT) 必须是数字: %q", c.Server.Port)
	}

	// 验证 Summary
	loc := time.Local
	if c.Summary.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(c.Summary.Timezone)
		if err != nil {
			return fmt.Errorf("Summary.Timezone 无效: %w", err)
		}
	}
	c.location = loc

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("Log.Level 必须是 debug, info, warn 或 error")
	}

	if c.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("HTTPTimeoutSeconds 必须 >= 0")
	}
	if c.Sock5Proxy.Enable && c.Sock5Proxy.Host == "" {
		return fmt.Errorf("Sock5Proxy.Host 不能为空（当 Enable 为 true 时）")
	}

	return nil
}

// Location 返回总结与健康检查使用的时区
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// HTTPTimeout 返回出站 HTTP 请求的超时时间，0 表示不限制
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// RequestDelay 返回相邻会话之间的间隔
func (c *Crisp) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
