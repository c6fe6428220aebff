// Package snapshot normalizes raw server-info pushes into immutable ServerSnapshot values.
package snapshot

import (
	"strings"
)

// RawServerInfo 是宿主推送的 serverInfo 原始字段（未校验）。
type RawServerInfo struct {
	ServerName    string `json:"server_name"`
	Map           string `json:"map"`
	GameMode      string `json:"game_mode"`
	CurrentRound  int    `json:"current_round"`
	TotalRounds   int    `json:"total_rounds"`
	ServerRegion  string `json:"server_region"`
	ServerCountry string `json:"server_country"`
	ServerUptime  int    `json:"server_uptime"`
}

// ServerSnapshot is replaced wholesale on every push. UptimeSeconds is never negative.
type ServerSnapshot struct {
	UptimeSeconds int    `json:"uptime_seconds"`
	Map           string `json:"map"`
	Mode          string `json:"mode"`
	CurrentRound  int    `json:"current_round"`
	TotalRounds   int    `json:"total_rounds"`
	ServerName    string `json:"server_name"`
	RegionCode    string `json:"region_code"`
	CountryCode   string `json:"country_code"`
}

func Encode(raw RawServerInfo) ServerSnapshot {
	uptime := raw.ServerUptime
	if uptime < 0 {
		uptime = 0
	}
	round := raw.CurrentRound
	if round < 0 {
		round = 0
	}
	total := raw.TotalRounds
	if total < 0 {
		total = 0
	}
	return ServerSnapshot{
		UptimeSeconds: uptime,
		Map:           strings.TrimSpace(raw.Map),
		Mode:          strings.TrimSpace(raw.GameMode),
		CurrentRound:  round,
		TotalRounds:   total,
		ServerName:    raw.ServerName,
		RegionCode:    strings.TrimSpace(raw.ServerRegion),
		CountryCode:   strings.TrimSpace(raw.ServerCountry),
	}
}

// SameLevel reports whether two snapshots are on the same map and mode.
func (s ServerSnapshot) SameLevel(other ServerSnapshot) bool {
	return s.Map == other.Map && s.Mode == other.Mode
}

// RegionCountry 返回 "region/country"，用于日志 Details 字段与上报。
func (s ServerSnapshot) RegionCountry() string {
	return s.RegionCode + "/" + s.CountryCode
}
