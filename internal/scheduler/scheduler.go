package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/fachebot/crisp-digest/internal/crisp"
	"github.com/fachebot/crisp-digest/internal/logger"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

const (
	NoActiveChatsMessage  = "No active chats"
	NoChatActivityMessage = "No chat activity to summarize"

	summarySeparator = "\n\n───\n\n"
)

// ConversationSource 会话来源
type ConversationSource interface {
	ListConversations(ctx context.Context, page int) ([]crisp.Conversation, error)
	GetMessages(ctx context.Context, sessionID string) ([]crisp.Message, error)
}

// Analyzer 生成单个会话的详细分析
type Analyzer interface {
	AnalyzeDetailed(ctx context.Context, messages []crisp.Message) (string, error)
}

// Notifier 通知发送端
type Notifier interface {
	Notify(ctx context.Context, content string) error
}

type Scheduler struct {
	cron     *cron.Cron
	job      cron.Job
	source   ConversationSource
	analyzer Analyzer
	notifier Notifier
	crispCfg *config.Crisp
	config   *config.Summary
	location *time.Location
	limiter  *rate.Limiter
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	wg       sync.WaitGroup
}

func NewScheduler(source ConversationSource, analyzer Analyzer, notifier Notifier, c *config.Config) *Scheduler {
	loc := c.Location()
	cronLog := cronLogger{}

	limit := rate.Inf
	if delay := c.Crisp.RequestDelay(); delay > 0 {
		limit = rate.Every(delay)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithLogger(cronLog)),
		source:   source,
		analyzer: analyzer,
		notifier: notifier,
		crispCfg: &c.Crisp,
		config:   &c.Summary,
		location: loc,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
		ctx:      context.Background(),
	}

	// 定时触发与启动时触发共用同一个 job，上一次未结束时跳过
	s.job = cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).
		Then(cron.FuncJob(s.runScheduledSummary))
	return s
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	// 注册每小时总结任务
	_, err := s.cron.AddJob(s.config.Cron, s.job)
	if err != nil {
		return fmt.Errorf("注册总结任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，总结任务: %s (%s)", s.config.Cron, s.location)

	// 启动时先执行一次
	if !s.config.SkipStartupRun {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.job.Run()
		}()
	}

	return nil
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	logger.Infof("[Scheduler] 调度器已停止")
}

// runScheduledSummary 执行总结任务（cron 或启动时触发）
func (s *Scheduler) runScheduledSummary() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	default:
	}

	s.RunHourlySummary(ctx)
}

// RunHourlySummary 拉取会话、逐个分析并汇总发送到 Slack，返回生成的总结数量
func (s *Scheduler) RunHourlySummary(ctx context.Context) int {
	runID := uuid.NewString()[:8]
	startedAt := time.Now()
	logger.Infof("[Scheduler] <%s> 开始执行会话总结任务", runID)

	// 关闭时已生成的部分总结仍然发送
	notifyCtx := context.WithoutCancel(ctx)

	conversations, err := s.source.ListConversations(ctx, s.crispCfg.ConversationPage)
	if err != nil {
		logger.Warnf("[Scheduler] <%s> 获取会话列表失败，按无会话处理: %v", runID, err)
	}
	if len(conversations) == 0 {
		logger.Infof("[Scheduler] <%s> 没有活跃会话", runID)
		s.notify(notifyCtx, runID, NoActiveChatsMessage)
		return 0
	}

	if limit := s.crispCfg.ConversationLimit; limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}
	logger.Infof("[Scheduler] <%s> 找到 %d 个会话需要处理", runID, len(conversations))

	summaries := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		if conv.SessionID == "" {
			continue
		}
		// 首个会话立即执行，之后每个会话间隔 RequestDelay
		if err := s.limiter.Wait(ctx); err != nil {
			logger.Infof("[Scheduler] <%s> 任务已取消: %v", runID, err)
			break
		}

		summary := s.summarizeConversation(ctx, runID, conv)
		if summary == "" {
			continue
		}
		summaries = append(summaries, fmt.Sprintf("*%s*\n%s", conv.DisplayName(), summary))
	}

	if len(summaries) == 0 {
		logger.Infof("[Scheduler] <%s> 没有可总结的会话内容", runID)
		s.notify(notifyCtx, runID, NoChatActivityMessage)
		return 0
	}

	s.notify(notifyCtx, runID, s.formatDigest(summaries))
	logger.Infof("[Scheduler] <%s> 会话总结任务完成: %d/%d 个会话, 耗时 %v",
		runID, len(summaries), len(conversations), time.Since(startedAt).Round(time.Millisecond))
	return len(summaries)
}

// summarizeConversation 获取单个会话的消息并生成总结，失败返回空字符串
func (s *Scheduler) summarizeConversation(ctx context.Context, runID string, conv crisp.Conversation) string {
	messages, err := s.source.GetMessages(ctx, conv.SessionID)
	if err != nil || len(messages) == 0 {
		logger.Debugf("[Scheduler] <%s> 会话 %s 无消息，跳过", runID, conv.SessionID)
		return ""
	}

	summary, err := s.analyzer.AnalyzeDetailed(ctx, messages)
	if err != nil {
		logger.Debugf("[Scheduler] <%s> 会话 %s 跳过: %v", runID, conv.SessionID, err)
		return ""
	}
	return strings.TrimSpace(summary)
}

// formatDigest 拼接汇总标题与各会话总结
func (s *Scheduler) formatDigest(summaries []string) string {
	now := s.now().In(s.location)
	noun := "summaries"
	if len(summaries) == 1 {
		noun = "summary"
	}
	header := fmt.Sprintf("*📊 %d conversation %s* (%s)", len(summaries), noun, now.Format("2006-01-02 03:04 PM"))
	return header + "\n\n" + strings.Join(summaries, summarySeparator)
}

// notify 发送通知，失败只记录日志
func (s *Scheduler) notify(ctx context.Context, runID, content string) {
	if err := s.notifier.Notify(ctx, content); err != nil {
		logger.Errorf("[Scheduler] <%s> 发送通知失败: %v", runID, err)
	}
}

// cronLogger 将 cron 内部日志接入 logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debugf("[Scheduler] cron %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Errorf("[Scheduler] cron %s: %v %v", msg, err, keysAndValues)
}
