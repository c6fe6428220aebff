package classifier

import "time"

// WindowState 是单个监控会话的可变计数器，只由事件循环协程读写。
type WindowState struct {
	LastPlayerCount            int       `json:"last_player_count"`
	HighWaterCount             int       `json:"high_water_count"`
	SumOfSecondsSinceReset     float64   `json:"sum_of_seconds_since_reset"`
	LastSampleAt               time.Time `json:"last_sample_at"`
	Uptime                     int       `json:"uptime"`
	LastUptime                 int       `json:"last_uptime"`
	MaxPlayersLimit            int       `json:"max_players_limit"`
	HighestSeenMaxPlayersLimit int       `json:"highest_seen_max_players_limit"`
	CrashSuspected             bool      `json:"crash_suspected"`
	JustReconnected            bool      `json:"just_reconnected"`
	JustConnected              bool      `json:"just_connected"`
	RestartAlreadyInitiated    bool      `json:"restart_already_initiated"`
}

// Reset clears every counter and flag.
func (w *WindowState) Reset() {
	*w = WindowState{}
}

func (w *WindowState) resetWindow(current int) {
	w.SumOfSecondsSinceReset = 0
	w.HighWaterCount = current
}

// MaxPlayers is the larger of the current and the highest seen player limit.
func (w *WindowState) MaxPlayers() int {
	return max(w.MaxPlayersLimit, w.HighestSeenMaxPlayersLimit)
}

// HasSample reports whether a previous full roster was recorded.
func (w *WindowState) HasSample() bool {
	return !w.LastSampleAt.IsZero()
}
