package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"faillog/internal/config"
	"faillog/internal/dispatch"
	"faillog/internal/gateway/notifier"
	"faillog/internal/host"
	"faillog/internal/logger"
	"faillog/internal/monitor"
	"faillog/internal/names"
	"faillog/internal/store/journal"
	"faillog/internal/store/servervars"
	"faillog/internal/stream"
	livehttp "faillog/internal/transport/http/live"
	"faillog/internal/version"
)

type AppBuilder struct {
	cfg *config.Config

	hostFn     func(config.HostConfig) (host.Host, error)
	streamFn   func(context.Context, config.StreamConfig) (*stream.Producer, error)
	liveHTTPFn func(livehttp.ServerConfig) (*livehttp.Server, error)
	httpClient *http.Client
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		hostFn:     buildHost,
		streamFn:   buildStream,
		liveHTTPFn: livehttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetDebugLevel(cfg.App.DebugLevel)

	app := &App{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			app.close()
		}
	}()

	registry, err := names.NewRegistry(cfg.Names.Path)
	if err != nil {
		return nil, fmt.Errorf("加载名称表失败: %w", err)
	}
	registry.OnChange(func(s names.Snapshot) {
		logger.Infof("[names] 名称表已更新 v%d maps=%d modes=%d", s.Version, len(s.Maps), len(s.Modes))
	})

	target, err := b.hostFn(cfg.Host)
	if err != nil {
		return nil, err
	}

	vars, err := buildVarsTable(cfg.Vars)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, namedCloser{"servervars", vars.Close})

	var (
		sinks        []dispatch.Sink
		journalStore *journal.Store
	)
	if cfg.Journal.Enabled {
		journalStore, err = journal.New(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化故障日志库失败: %w", err)
		}
		app.closers = append(app.closers, namedCloser{"journal", journalStore.Close})
		sinks = append(sinks, journalStore)
	}
	if cfg.Stream.Enabled {
		producer, err := b.streamFn(ctx, cfg.Stream)
		if err != nil {
			return nil, fmt.Errorf("连接 redis stream 失败: %w", err)
		}
		app.closers = append(app.closers, namedCloser{"stream", producer.Close})
		sinks = append(sinks, producer)
	}
	if strings.TrimSpace(cfg.HTTP.Addr) != "" {
		app.hub = livehttp.NewHub()
		sinks = append(sinks, app.hub)
	}

	var textNotifier notifier.TextNotifier
	if tg := newTelegram(cfg.Notify); tg != nil {
		textNotifier = tg
	}

	queue := dispatch.NewQueue(cfg.Actions.Workers, cfg.Actions.QueueSize)
	dispatcher := dispatch.NewDispatcher(cfg, dispatch.Options{
		Queue:      queue,
		Commander:  target,
		Notifier:   textNotifier,
		Sinks:      sinks,
		HTTPClient: b.httpClient,
	})

	var checker *version.Checker
	if strings.TrimSpace(cfg.Version.ReportURL) != "" {
		checker = version.NewChecker(version.CheckerConfig{
			ReportURL: cfg.Version.ReportURL,
			Current:   cfg.Version.Current,
			MinUsage:  cfg.Version.MinUsage,
			Interval:  time.Duration(cfg.Version.IntervalHours) * time.Hour,
		}, version.NewHTTPFetcher(30*time.Second), target)
	}

	mon, err := monitor.New(monitor.Deps{
		Config:     cfg,
		Names:      registry,
		Vars:       vars,
		Dispatcher: dispatcher,
		Host:       target,
		Checker:    checker,
	})
	if err != nil {
		return nil, err
	}
	app.monitor = mon
	app.queue = queue

	adapter, err := host.NewAdapter(mon)
	if err != nil {
		return nil, err
	}
	if app.hub != nil {
		if cfg.HTTP.AuthSecret == "" {
			logger.Warnf("[http] auth_secret 为空，/api/settings 与 /api/host/events 不做鉴权")
		}
		srvCfg := livehttp.ServerConfig{
			Addr:       cfg.HTTP.Addr,
			Monitor:    mon,
			Ingest:     adapter,
			Vars:       vars,
			Queue:      queue,
			Hub:        app.hub,
			AuthSecret: cfg.HTTP.AuthSecret,
			RatePerSec: cfg.HTTP.RatePerSec,
			RateBurst:  cfg.HTTP.RateBurst,
		}
		if journalStore != nil {
			srvCfg.Journal = journalStore
		}
		if checker != nil {
			srvCfg.Version = checker
		}
		if cfg.Actions.EnableLogToFile {
			srvCfg.LogPath = filepath.Join(cfg.Actions.LogDir, cfg.Actions.LogFile)
		}
		app.liveHTTP, err = b.liveHTTPFn(srvCfg)
		if err != nil {
			return nil, err
		}
	}

	app.Summary = buildSummary(cfg, registry, len(adapter.Events()), sinks)
	ok = true
	return app, nil
}

func buildHost(cfg config.HostConfig) (host.Host, error) {
	if strings.TrimSpace(cfg.CommandURL) == "" {
		logger.Warnf("[app] host.command_url 未配置，管理命令只写入日志")
		return host.LogHost{}, nil
	}
	return host.NewHTTPHost(cfg.CommandURL, time.Duration(cfg.TimeoutSec)*time.Second)
}

func buildStream(ctx context.Context, cfg config.StreamConfig) (*stream.Producer, error) {
	return stream.NewProducer(ctx, stream.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Key:      cfg.Key,
		MaxLen:   cfg.MaxLen,
	})
}

func buildVarsTable(cfg config.VarsConfig) (*servervars.Table, error) {
	if !cfg.Persist || strings.TrimSpace(cfg.Path) == "" {
		return servervars.New(), nil
	}
	table, err := servervars.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("打开变量表失败: %w", err)
	}
	return table, nil
}

func newTelegram(cfg config.NotifyConfig) *notifier.Telegram {
	if !cfg.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

// WithHost overrides how the host command client is built.
func WithHost(fn func(config.HostConfig) (host.Host, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.hostFn = fn
		}
	}
}

// WithStream overrides the redis stream producer constructor.
func WithStream(fn func(context.Context, config.StreamConfig) (*stream.Producer, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.streamFn = fn
		}
	}
}

func WithLiveHTTP(fn func(livehttp.ServerConfig) (*livehttp.Server, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.liveHTTPFn = fn
		}
	}
}

// WithHTTPClient sets the client used for beacon requests.
func WithHTTPClient(client *http.Client) AppBuilderOption {
	return func(b *AppBuilder) {
		b.httpClient = client
	}
}
