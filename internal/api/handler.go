// Package api 提供按需分析、小部件、webhook 与健康检查的 HTTP 接口。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/fachebot/crisp-digest/internal/logger"
	"github.com/fachebot/crisp-digest/internal/summarizer"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes = 1 << 20
	notePrefix   = "🤖 AI Summary\n\n"
)

// SessionAnalyzer 对单个会话执行分析
type SessionAnalyzer interface {
	AnalyzeSession(ctx context.Context, sessionID string, mode summarizer.Mode) (string, error)
}

// NoteWriter 向会话写入内部备注
type NoteWriter interface {
	AddNote(ctx context.Context, sessionID, content string) error
}

// SummaryTrigger 手动触发定时总结
type SummaryTrigger interface {
	RunHourlySummary(ctx context.Context) int
}

type Handler struct {
	analyzer SessionAnalyzer
	notes    NoteWriter
	trigger  SummaryTrigger
	config   *config.Config
	now      func() time.Time
}

func NewHandler(analyzer SessionAnalyzer, notes NoteWriter, trigger SummaryTrigger, c *config.Config) *Handler {
	return &Handler{
		analyzer: analyzer,
		notes:    notes,
		trigger:  trigger,
		config:   c,
		now:      time.Now,
	}
}

// RegisterRoutes 注册所有路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	secret := RequireSecret(h.config.Server.WebhookSecret)

	r.Get("/health", h.Health)
	r.Get("/test-summary", h.TestSummary)
	r.Get("/widget", h.WidgetPage)
	r.Get("/widget/analyze", h.WidgetAnalyze)
	r.With(secret).Post("/widget", h.WidgetWebhook)
	r.With(secret).Post("/webhook", h.Webhook)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("[API] 写入响应失败: %v", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health 存活检查，不依赖任何上游服务
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status":         "healthy",
		"timestamp":      h.now().In(h.config.Location()).Format(time.RFC3339),
		"site_id_prefix": redact(h.config.Crisp.WebsiteID),
	})
}

// TestSummary 同步执行一次定时总结。请求断开不会中止总结。
func (h *Handler) TestSummary(w http.ResponseWriter, r *http.Request) {
	logger.Infof("[API] 手动触发会话总结")
	count := h.trigger.RunHourlySummary(context.WithoutCancel(r.Context()))
	logger.Infof("[API] 手动总结完成，共 %d 条", count)
	JSON(w, http.StatusOK, map[string]string{"status": "summary triggered"})
}

// WidgetAnalyze 对当前会话做快速分析，成功后写入备注
func (h *Handler) WidgetAnalyze(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "No session_id provided")
		return
	}

	summary, status, message := h.analyze(r.Context(), sessionID)
	if message != "" {
		Error(w, status, message)
		return
	}

	if err := h.notes.AddNote(r.Context(), sessionID, notePrefix+summary); err != nil {
		logger.Warnf("[API] 会话 %s 写入备注失败: %v", sessionID, err)
	}
	JSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// widgetRequest webhook 形式的请求体，session_id 可以在 data 中或顶层
type widgetRequest struct {
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// WidgetWebhook 接收 webhook 形式的分析请求，返回快速分析结果，不写备注
func (h *Handler) WidgetWebhook(w http.ResponseWriter, r *http.Request) {
	var req widgetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		widgetError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	sessionID := resolveSessionID(req)
	if sessionID == "" {
		widgetError(w, http.StatusBadRequest, "No session_id provided")
		return
	}

	summary, status, message := h.analyze(r.Context(), sessionID)
	if message != "" {
		widgetError(w, status, message)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "success", "summary": summary})
}

// Webhook 记录任意 JSON 事件并确认
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil || !json.Valid(payload) {
		Error(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	// 只有对象形式的负载才带 event 字段
	var event struct {
		Event string `json:"event"`
	}
	_ = json.Unmarshal(payload, &event)
	logger.Infof("[API] 收到 webhook 事件 %q: %s", event.Event, payload)
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyze 执行快速分析，失败时返回状态码和面向调用方的错误信息
func (h *Handler) analyze(ctx context.Context, sessionID string) (summary string, status int, message string) {
	summary, err := h.analyzer.AnalyzeSession(ctx, sessionID, summarizer.ModeQuick)
	switch {
	case err == nil:
		logger.Infof("[API] 会话 %s 快速分析完成", sessionID)
		return summary, http.StatusOK, ""
	case errors.Is(err, summarizer.ErrNoMessages), errors.Is(err, summarizer.ErrNoContent):
		logger.Infof("[API] 会话 %s 没有可分析的消息: %v", sessionID, err)
		return "", http.StatusNotFound, "No messages found"
	default:
		logger.Warnf("[API] 会话 %s 分析失败: %v", sessionID, err)
		return "", http.StatusBadGateway, "Analysis failed"
	}
}

func widgetError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"status": "error", "message": message})
}

// resolveSessionID 优先取 data.session_id，其次取顶层 session_id
func resolveSessionID(req widgetRequest) string {
	if len(req.Data) > 0 {
		var data struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(req.Data, &data); err == nil {
			if id := strings.TrimSpace(data.SessionID); id != "" {
				return id
			}
		}
	}
	return strings.TrimSpace(req.SessionID)
}

// redact 只保留站点ID前 8 位
func redact(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "..."
}
