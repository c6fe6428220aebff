package app

import (
	"fmt"
	"strings"

	"faillog/internal/config"
	"faillog/internal/dispatch"
	"faillog/internal/names"
)

type StartupSummary struct {
	Host      HostSummary
	Detection config.DetectionConfig
	Actions   ActionSummary
	Names     NameSummary
	Sinks     []string
	HTTPAddr  string
}

type HostSummary struct {
	Hostname   string
	Port       string
	CommandURL string
	Events     int
}

type ActionSummary struct {
	FileLog   string
	WebLog    bool
	Restart   string
	Email     bool
	Telegram  bool
	Version   string
	Workers   int
	QueueSize int
}

type NameSummary struct {
	Path  string
	Maps  int
	Modes int
}

func buildSummary(cfg *config.Config, registry *names.Registry, events int, sinks []dispatch.Sink) *StartupSummary {
	s := &StartupSummary{
		Host: HostSummary{
			Hostname:   cfg.Host.Hostname,
			Port:       cfg.Host.Port,
			CommandURL: cfg.Host.CommandURL,
			Events:     events,
		},
		Detection: cfg.Detection,
		Actions: ActionSummary{
			WebLog:    cfg.Actions.EnableWebLog,
			Email:     cfg.Actions.EnableEmailOnBlaze,
			Telegram:  cfg.Notify.Telegram.Enabled,
			Workers:   cfg.Actions.Workers,
			QueueSize: cfg.Actions.QueueSize,
		},
		HTTPAddr: cfg.HTTP.Addr,
	}
	if cfg.Actions.EnableLogToFile {
		s.Actions.FileLog = cfg.Actions.LogDir + "/" + cfg.Actions.LogFile
	}
	if cfg.Actions.EnableRestartOnBlaze {
		s.Actions.Restart = fmt.Sprintf("on (delay %ds)", cfg.Actions.RestartDelaySeconds)
	}
	if cfg.Version.Enabled {
		s.Actions.Version = fmt.Sprintf("v%s every %dh", cfg.Version.Current, cfg.Version.IntervalHours)
	}
	if registry != nil {
		snap := registry.Snapshot()
		s.Names = NameSummary{Path: cfg.Names.Path, Maps: len(snap.Maps), Modes: len(snap.Modes)}
	}
	for _, sink := range sinks {
		s.Sinks = append(s.Sinks, sink.Name())
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[游戏服务器 (GAME SERVER)]")
	fmt.Printf("  地址: %s:%s\n", orDash(s.Host.Hostname), orDash(s.Host.Port))
	fmt.Printf("  命令入口: %s\n", orDash(s.Host.CommandURL))
	fmt.Printf("  支持事件: %d\n", s.Host.Events)
	fmt.Println()

	fmt.Println("[检测阈值 (DETECTION)]")
	fmt.Printf("  掉线比例: %.1f%%\n", s.Detection.BlazePercent)
	fmt.Printf("  统计窗口: %.0fs\n", s.Detection.WindowSeconds)
	fmt.Printf("  拥塞阈值: %.0fs\n", s.Detection.CongestionSeconds)
	fmt.Println()

	fmt.Println("[处置动作 (ACTIONS)]")
	fmt.Printf("  文件日志: %s\n", orDash(s.Actions.FileLog))
	fmt.Printf("  Web 上报: %s\n", onOff(s.Actions.WebLog))
	fmt.Printf("  自动重启: %s\n", orDash(s.Actions.Restart))
	fmt.Printf("  邮件通知: %s\n", onOff(s.Actions.Email))
	fmt.Printf("  Telegram: %s\n", onOff(s.Actions.Telegram))
	fmt.Printf("  版本检查: %s\n", orDash(s.Actions.Version))
	fmt.Printf("  任务队列: %d workers / %d slots\n", s.Actions.Workers, s.Actions.QueueSize)
	fmt.Println()

	fmt.Println("[名称表与输出 (NAMES & SINKS)]")
	fmt.Printf("  名称文件: %s (maps=%d modes=%d)\n", orDash(s.Names.Path), s.Names.Maps, s.Names.Modes)
	fmt.Printf("  附加输出: %s\n", formatList(s.Sinks))
	fmt.Printf("  HTTP: %s\n", orDash(s.HTTPAddr))
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
