package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"faillog/internal/logger"
)

const (
	minBlazePercent      = 33.0
	maxBlazePercent      = 100.0
	minWindowSeconds     = 30.0
	maxWindowSeconds     = 90.0
	minCongestionSeconds = 30.0
	maxCongestionSeconds = 3600.0
	minSMTPPort          = 0
	maxSMTPPort          = 65535
)

// normalize 将越界取值修正为默认值并记录错误日志，不拒绝配置。
func (c *Config) normalize() {
	clampIntRange(&c.App.DebugLevel, "Debug Level", logger.MinDebugLevel, logger.MaxDebugLevel, DefaultDebugLevel)
	clampFloatRange(&c.Detection.BlazePercent, "Blaze Disconnect Heuristic Percent", minBlazePercent, maxBlazePercent, DefaultBlazePercent)
	clampFloatRange(&c.Detection.WindowSeconds, "Blaze Disconnect Window Seconds", minWindowSeconds, maxWindowSeconds, DefaultWindowSeconds)
	clampFloatRange(&c.Detection.CongestionSeconds, "Network Congestion Seconds", minCongestionSeconds, maxCongestionSeconds, DefaultCongestionSeconds)
	clampIntRange(&c.Email.SMTPPort, "SMTP Port", minSMTPPort, maxSMTPPort, DefaultSMTPPort)
	clampNonNegative(&c.Actions.RestartDelaySeconds, "Restart On Blaze Delay", 0)
	clampNonNegative(&c.Version.MinUsage, "Minimum Update Usage Count", DefaultMinUsage)
	confineLogFile(&c.Actions.LogFile)
}

func clampIntRange(val *int, name string, min, max, def int) bool {
	if *val < min || *val > max {
		logger.Errorf("%s must be greater than or equal to %d and less than or equal to %d, was set to %d, corrected to %d",
			name, min, max, *val, def)
		*val = def
		return true
	}
	return false
}

func clampFloatRange(val *float64, name string, min, max, def float64) bool {
	if *val < min || *val > max {
		logger.Errorf("%s must be greater than or equal to %g and less than or equal to %g, was set to %g, corrected to %g",
			name, min, max, *val, def)
		*val = def
		return true
	}
	return false
}

func clampNonNegative(val *int, name string, def int) bool {
	if *val < 0 {
		logger.Errorf("%s must be greater than or equal to 0, was set to %d, corrected to %d", name, *val, def)
		*val = def
		return true
	}
	return false
}

// confineLogFile keeps the log file a relative path inside the log directory.
func confineLogFile(file *string) bool {
	if filepath.IsLocal(*file) {
		return false
	}
	logger.Errorf("Log File must be a relative path inside the log directory, was set to %q, corrected to %q", *file, defaultLogFile)
	*file = defaultLogFile
	return true
}

// validate 只检查结构性错误（地址无法解析等），取值越界已在 normalize 中修正。
func validate(c *Config) error {
	if err := validateURL("actions.beacon_url", c.Actions.BeaconURL, c.Actions.EnableWebLog); err != nil {
		return err
	}
	if err := validateURL("version.report_url", c.Version.ReportURL, c.Version.Enabled); err != nil {
		return err
	}
	if err := validateURL("host.command_url", c.Host.CommandURL, false); err != nil {
		return err
	}
	if c.Stream.Enabled && strings.TrimSpace(c.Stream.Key) == "" {
		return fmt.Errorf("stream.key cannot be empty when stream is enabled")
	}
	if c.Notify.Telegram.Enabled {
		if strings.TrimSpace(c.Notify.Telegram.BotToken) == "" || strings.TrimSpace(c.Notify.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id")
		}
	}
	return nil
}

func validateURL(key, raw string, required bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return fmt.Errorf("%s cannot be empty", key)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url, got %q", key, raw)
	}
	return nil
}
