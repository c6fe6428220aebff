package app

import (
	"context"
	"fmt"

	"faillog/internal/config"
	"faillog/internal/dispatch"
	"faillog/internal/logger"
	"faillog/internal/monitor"
	livehttp "faillog/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动事件循环、任务队列与 HTTP 服务。
type App struct {
	cfg      *config.Config
	monitor  *monitor.Monitor
	queue    *dispatch.Queue
	liveHTTP *livehttp.Server
	hub      *livehttp.Hub
	closers  []namedCloser
	Summary  *StartupSummary
}

type namedCloser struct {
	name  string
	close func() error
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动事件循环、任务队列与 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.monitor == nil || a.queue == nil {
		return fmt.Errorf("monitor not initialized")
	}
	defer a.close()

	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.queue.Run(ctx)
	})
	group.Go(func() error {
		return a.monitor.Run(ctx)
	})
	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Monitor exposes the event loop (for replay harnesses and tests).
func (a *App) Monitor() *monitor.Monitor {
	if a == nil {
		return nil
	}
	return a.monitor
}

func (a *App) close() {
	if a.hub != nil {
		a.hub.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			logger.Warnf("[app] close %s: %v", c.name, err)
		}
	}
	a.closers = nil
}
