package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogPath        = "logs/faillog.log"
	DefaultDebugLevel        = 2
	defaultHostTimeout       = 10
	DefaultBlazePercent      = 75.0
	DefaultWindowSeconds     = 30.0
	DefaultCongestionSeconds = 80.0
	defaultLogDir            = "Logs"
	defaultLogFile           = "fail.log"
	DefaultBeaconURL         = "http://dev.myrcon.com/procon/blazereport/report.php"
	defaultWorkers           = 4
	defaultQueueSize         = 64
	defaultGameServerType    = "BF3"
	DefaultEmailSubject      = "FailLog - Server %servername% blazed (%time%)!"
	DefaultSMTPPort          = 25
	DefaultPluginVersion     = "1.0.0.8"
	DefaultReportURL         = "https://myrcon.com/procon/plugins/report/format/xml/plugin/FailLog"
	defaultVersionInterval   = 12
	DefaultMinUsage          = 10
	defaultNamesPath         = "configs/names.yaml"
	defaultJournalPath       = "data/faillog.db"
	defaultVarsPath          = "data/servervars.db"
	defaultStreamAddr        = "127.0.0.1:6379"
	defaultStreamKey         = "faillog:events"
	defaultStreamMaxLen      = 1000
	defaultHTTPAddr          = ":9992"
	defaultRatePerSec        = 20
	defaultRateBurst         = 40
)

// DefaultEmailMessage 是 BlazeReport 邮件的 HTML 模板（逐行拼接）。
var DefaultEmailMessage = []string{
	`<h2 align="center">FailLog - BlazeReport</h2>`,
	`<p>Your server '%servername%' (%serverip%:%serverport%) just blazed!<br />`,
	`Here's some information about the Blaze:</p>`,
	`<table border="1">`,
	`<tr><th>Field</th><th>Value</th></tr>`,
	`<tr><td align="center">UTC</td><td align="center">%time%</td></tr>`,
	`<tr><td align="center">Server</td><td align="center">%servername%</td></tr>`,
	`<tr><td align="center">Players</td><td align="center">%playercount%</td></tr>`,
	`<tr><td align="center">Map</td><td align="center">%map%</td></tr>`,
	`<tr><td align="center">Gamemode</td><td align="center">%gamemode%</td></tr>`,
	`<tr><td align="center">Round</td><td align="center">%round%</td></tr>`,
	`<tr><td align="center">Uptime</td><td align="center">%uptime%</td></tr>`,
	`</table>`,
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Host.applyDefaults(keys)
	c.Detection.applyDefaults(keys)
	c.Actions.applyDefaults(keys)
	c.Server.applyDefaults(keys)
	c.Email.applyDefaults(keys)
	c.Version.applyDefaults(keys)
	applyFieldDefaults(keys,
		stringFieldDefault("names.path", &c.Names.Path, defaultNamesPath),
		stringFieldDefault("journal.path", &c.Journal.Path, defaultJournalPath),
		stringFieldDefault("vars.path", &c.Vars.Path, defaultVarsPath),
	)
	c.Stream.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
}

// Default returns a configuration with every default applied, as if loaded from an empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	cfg.normalize()
	return &cfg
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		intFieldDefault("app.debug_level", &a.DebugLevel, DefaultDebugLevel),
	)
}

func (h *HostConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "host.timeout_seconds",
			need:  func() bool { return h.TimeoutSec <= 0 },
			apply: func() { h.TimeoutSec = defaultHostTimeout },
		},
	)
	h.Hostname = strings.TrimSpace(h.Hostname)
	h.Port = strings.TrimSpace(h.Port)
}

func (d *DetectionConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("detection.blaze_percent", &d.BlazePercent, DefaultBlazePercent),
		floatFieldDefault("detection.window_seconds", &d.WindowSeconds, DefaultWindowSeconds),
		floatFieldDefault("detection.congestion_seconds", &d.CongestionSeconds, DefaultCongestionSeconds),
	)
}

func (a *ActionsConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("actions.log_dir", &a.LogDir, defaultLogDir),
		stringFieldDefault("actions.log_file", &a.LogFile, defaultLogFile),
		boolFieldDefault("actions.enable_web_log", &a.EnableWebLog, true),
		stringFieldDefault("actions.beacon_url", &a.BeaconURL, DefaultBeaconURL),
		fieldDefault{
			key:   "actions.workers",
			need:  func() bool { return a.Workers <= 0 },
			apply: func() { a.Workers = defaultWorkers },
		},
		fieldDefault{
			key:   "actions.queue_size",
			need:  func() bool { return a.QueueSize <= 0 },
			apply: func() { a.QueueSize = defaultQueueSize },
		},
	)
}

func (s *ServerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("server.game_server_type", &s.GameServerType, defaultGameServerType),
	)
}

func (e *EmailConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("email.subject", &e.Subject, DefaultEmailSubject),
		intFieldDefault("email.smtp_port", &e.SMTPPort, DefaultSMTPPort),
		fieldDefault{
			key:   "email.message",
			need:  func() bool { return len(e.Message) == 0 },
			apply: func() { e.Message = append([]string(nil), DefaultEmailMessage...) },
		},
	)
	e.Recipients = normalizeList(e.Recipients)
}

func (v *VersionConfig) applyDefaults(keys keySet) {
	if v == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("version.enabled", &v.Enabled, true),
		stringFieldDefault("version.current", &v.Current, DefaultPluginVersion),
		stringFieldDefault("version.report_url", &v.ReportURL, DefaultReportURL),
		fieldDefault{
			key:   "version.interval_hours",
			need:  func() bool { return v.IntervalHours <= 0 },
			apply: func() { v.IntervalHours = defaultVersionInterval },
		},
		intFieldDefault("version.min_usage", &v.MinUsage, DefaultMinUsage),
	)
}

func (s *StreamConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("stream.addr", &s.Addr, defaultStreamAddr),
		stringFieldDefault("stream.key", &s.Key, defaultStreamKey),
		fieldDefault{
			key:   "stream.max_len",
			need:  func() bool { return s.MaxLen <= 0 },
			apply: func() { s.MaxLen = defaultStreamMaxLen },
		},
	)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
		fieldDefault{
			key:   "http.rate_per_sec",
			need:  func() bool { return h.RatePerSec <= 0 },
			apply: func() { h.RatePerSec = defaultRatePerSec },
		},
		fieldDefault{
			key:   "http.rate_burst",
			need:  func() bool { return h.RateBurst <= 0 },
			apply: func() { h.RateBurst = defaultRateBurst },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// intFieldDefault 仅在文件未显式给出该键时生效（0 是合法值）。
func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
