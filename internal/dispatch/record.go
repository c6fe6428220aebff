package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"faillog/internal/classifier"
	"faillog/internal/config"
)

// TimeLayout 是日志与邮件中 UTC 时间戳的格式（yyyyMMdd_HH:mm:ss）。
const TimeLayout = "20060102_15:04:05"

// Record 是一次故障的预渲染结果。所有字段在事件循环上生成，后台任务只读。
type Record struct {
	Event         classifier.FailureEvent `json:"event"`
	UTC           string                  `json:"utc"`
	ServerName    string                  `json:"server_name"`
	Map           string                  `json:"map"`
	Mode          string                  `json:"mode"`
	Round         string                  `json:"round"`
	Players       string                  `json:"players"`
	Uptime        string                  `json:"uptime"`
	RegionCountry string                  `json:"region_country"`
	Host          string                  `json:"host"`
	Port          string                  `json:"port"`
	Details       string                  `json:"details"`
	Line          string                  `json:"line"`

	server config.ServerConfig
}

// Kind is shorthand for r.Event.Kind.
func (r Record) Kind() classifier.Kind { return r.Event.Kind }

// Server returns the operator-provided description captured with the record.
func (r Record) Server() config.ServerConfig { return r.server }

// NewRecord renders ev with the friendly map/mode names and the operator description.
func NewRecord(ev classifier.FailureEvent, friendlyMap, friendlyMode string, server config.ServerConfig, host, port string) Record {
	snap := ev.Snapshot
	r := Record{
		Event:         ev,
		UTC:           ev.DetectedAt.UTC().Format(TimeLayout),
		ServerName:    snap.ServerName,
		Map:           friendlyMap,
		Mode:          friendlyMode,
		Round:         fmt.Sprintf("%d/%d", snap.CurrentRound+1, snap.TotalRounds),
		Players:       fmt.Sprintf("%d/%d/%d", ev.MaxPlayers, ev.PriorPlayerCount, ev.AfterPlayerCount),
		Uptime:        FormatUptime(ev.UptimeSeconds),
		RegionCountry: snap.RegionCountry(),
		Host:          host,
		Port:          port,
		server:        server,
	}
	r.Details = formatDetails(server, r.RegionCountry)
	r.Line = fmt.Sprintf("Type:%s, UTC:%s, Server:\"%s\", Map:%s, Mode:%s, Round:%s, Players:%s, Uptime:%s, Details:%s",
		ev.Kind, r.UTC, EscapeLogField(r.ServerName), r.Map, r.Mode, r.Round, r.Players, r.Uptime, r.Details)
	return r
}

func formatDetails(s config.ServerConfig, regionCountry string) string {
	fields := []string{
		s.GameServerType,
		s.RankedServerProvider,
		s.ServerOwnerOrCommunity,
		s.ContactInfo,
		s.ServerRegion,
		regionCountry,
		s.BattlelogLink,
		s.AdditionalInformation,
	}
	for i, f := range fields {
		fields[i] = EscapeLogField(f)
	}
	return `"` + strings.Join(fields, ",") + `"`
}

var logFieldEscaper = strings.NewReplacer(`"`, "'", ",", ";")

// EscapeLogField keeps a value from breaking the comma separated record.
func EscapeLogField(s string) string {
	return logFieldEscaper.Replace(s)
}

var requestEscaper = strings.NewReplacer("=", "", "?", "", "&", "", "#", "")

// EscapeRequestString strips query delimiters and surrounding whitespace.
func EscapeRequestString(s string) string {
	return strings.TrimSpace(requestEscaper.Replace(s))
}

// FormatUptime renders seconds as [d.]hh:mm:ss.
func FormatUptime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	s := int((d - time.Duration(m)*time.Minute) / time.Second)
	clock := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	if days > 0 {
		return strconv.Itoa(days) + "." + clock
	}
	return clock
}

// ReplacePlaceholders substitutes the email template variables.
func ReplacePlaceholders(text string, r Record) string {
	return strings.NewReplacer(
		"%servername%", r.ServerName,
		"%serverip%", r.Host,
		"%serverport%", r.Port,
		"%time%", r.UTC,
		"%playercount%", r.Players,
		"%map%", r.Map,
		"%gamemode%", r.Mode,
		"%round%", r.Round,
		"%uptime%", r.Uptime,
	).Replace(text)
}
