package api

import (
	_ "embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/fachebot/crisp-digest/internal/logger"
)

//go:embed widget.html
var widgetHTML string

var widgetTemplate = template.Must(template.New("widget").Parse(widgetHTML))

// WidgetPage 返回嵌入 Crisp 侧边栏的按钮页面
func (h *Handler) WidgetPage(w http.ResponseWriter, r *http.Request) {
	analyzeURL := "/widget/analyze"
	if base := strings.TrimRight(h.config.Server.PublicURL, "/"); base != "" {
		analyzeURL = base + analyzeURL
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := widgetTemplate.Execute(w, struct{ AnalyzeURL string }{analyzeURL}); err != nil {
		logger.Errorf("[API] 渲染小部件失败: %v", err)
	}
}
