package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fachebot/crisp-digest/internal/api"
	"github.com/fachebot/crisp-digest/internal/config"
	"github.com/fachebot/crisp-digest/internal/logger"
	"github.com/fachebot/crisp-digest/internal/scheduler"
	"github.com/fachebot/crisp-digest/internal/svc"
)

var configFile = flag.String("f", "etc/config.yaml", "the config file")

func main() {
	flag.Parse()

	// 读取配置
	c, err := config.Load(*configFile)
	if err != nil {
		logger.Fatalf("读取配置失败, %s", err)
	}
	logger.SetLevel(c.Log.Level)

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)

	// 创建调度器和HTTP接口
	schedulerInstance := scheduler.NewScheduler(
		svcCtx.CrispClient,
		svcCtx.Summarizer,
		svcCtx.Notifier,
		c,
	)
	handler := api.NewHandler(
		svcCtx.Summarizer,
		svcCtx.CrispClient,
		schedulerInstance,
		c,
	)

	// 端口无法绑定时直接退出
	addr := ":" + c.Server.Port
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalf("[API] 监听 %s 失败, %s", addr, err)
	}
	srv := &http.Server{
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := schedulerInstance.Start(); err != nil {
		logger.Fatalf("[Scheduler] 启动调度器失败: %s", err)
	}

	go func() {
		logger.Infof("[API] HTTP 服务监听 %s", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("[API] HTTP 服务异常退出, %s", err)
		}
	}()

	// 等待程序退出
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnf("[API] 关闭 HTTP 服务失败, %v", err)
	}
	schedulerInstance.Stop()
	svcCtx.Close()
	logger.Infof("服务已停止")
}
