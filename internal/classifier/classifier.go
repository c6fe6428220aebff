package classifier

import (
	"time"

	"faillog/internal/logger"
)

// Classify runs the decision procedure for one roster sample against state.
// Samples for a subset other than SubsetAll leave state untouched.
func Classify(state *WindowState, settings Settings, current int, subset Subset, now time.Time) (Verdict, bool) {
	if state == nil || subset != SubsetAll {
		return Verdict{}, false
	}
	if current < 0 {
		current = 0
	}
	state.JustConnected = false

	var (
		verdict Verdict
		fired   bool
		reset   bool
	)
	last := state.LastPlayerCount
	high := state.HighWaterCount

	switch {
	case state.CrashSuspected:
		verdict, fired, reset = Verdict{Kind: KindGameServerRestart, Baseline: last, After: current}, true, true
	case state.JustReconnected:
		verdict, fired, reset = Verdict{Kind: KindProconReconnected, Baseline: last, After: current}, true, true
	case state.HasSample():
		seconds := now.Sub(state.LastSampleAt).Seconds()
		if seconds < 0 {
			seconds = 0
		}
		state.SumOfSecondsSinceReset += seconds
		if seconds > settings.CongestionSeconds {
			verdict, fired, reset = Verdict{Kind: KindNetworkCongestion, Baseline: last, After: current}, true, true
			break
		}
		lost := float64(max(0, last-current))
		highLost := float64(max(0, high-current))
		dLast := float64(max(1, last))
		dHigh := float64(max(1, high))
		ratio := lost * 100 / dLast
		highRatio := highLost * 100 / dHigh
		logger.Tracef(4, "[classifier] last=%d current=%d lost=%.0f ratio=%.1f window=%.0f high=%d high_lost=%.0f window_ratio=%.1f",
			last, current, lost, ratio, state.SumOfSecondsSinceReset, high, highLost, highRatio)

		if dLast >= MinBaselinePlayers && ratio >= settings.BlazePercent {
			verdict, fired, reset = Verdict{Kind: KindBlazeDisconnect, Baseline: last, After: current}, true, true
		} else if state.SumOfSecondsSinceReset >= settings.WindowSeconds {
			if dHigh >= MinBaselinePlayers && highRatio >= settings.BlazePercent {
				verdict, fired = Verdict{Kind: KindBlazeDisconnect, Baseline: high, After: current}, true
			}
			reset = true
		}
	}

	if reset {
		state.resetWindow(current)
	}
	state.LastPlayerCount = current
	if current > state.HighWaterCount {
		state.HighWaterCount = current
	}
	state.LastSampleAt = now
	state.CrashSuspected = false
	state.JustReconnected = false
	return verdict, fired
}

// ObserveUptime records a new uptime reading and reports whether it decreased unexpectedly.
func ObserveUptime(state *WindowState, uptime int) bool {
	if state == nil {
		return false
	}
	previous := state.Uptime
	state.LastUptime = previous
	crashed := false
	if previous > 0 && previous > uptime+UptimeSlackSeconds {
		state.CrashSuspected = true
		crashed = true
	}
	state.Uptime = uptime
	return crashed
}

// ObserveMaxPlayers records the server's player limit.
func ObserveMaxPlayers(state *WindowState, limit int) {
	if state == nil {
		return
	}
	if limit > state.HighestSeenMaxPlayersLimit {
		state.HighestSeenMaxPlayersLimit = limit
	}
	state.MaxPlayersLimit = limit
}

// ObserveLogin marks a fresh login handshake. The first handshake after enable is ignored.
func ObserveLogin(state *WindowState) bool {
	if state == nil || state.JustConnected {
		return false
	}
	state.JustReconnected = true
	state.LastSampleAt = time.Time{}
	return true
}

// Classifier 持有一个会话的 WindowState 与阈值，供事件循环调用。
type Classifier struct {
	state    WindowState
	settings Settings
	nowFn    func() time.Time
}

func New(settings Settings) *Classifier {
	return &Classifier{settings: settings, nowFn: time.Now}
}

// SetClock overrides the time source, for tests.
func (c *Classifier) SetClock(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	c.nowFn = fn
}

func (c *Classifier) Settings() Settings { return c.settings }

func (c *Classifier) SetSettings(s Settings) { c.settings = s }

// Enable starts a fresh session.
func (c *Classifier) Enable() {
	c.state.Reset()
	c.state.JustConnected = true
}

// Disable drops all session state.
func (c *Classifier) Disable() {
	c.state.Reset()
}

// State returns a copy of the window state.
func (c *Classifier) State() WindowState { return c.state }

func (c *Classifier) OnRosterSample(current int, subset Subset) (Verdict, bool) {
	return Classify(&c.state, c.settings, current, subset, c.nowFn())
}

func (c *Classifier) OnUptime(uptime int) bool { return ObserveUptime(&c.state, uptime) }

func (c *Classifier) OnMaxPlayers(limit int) { ObserveMaxPlayers(&c.state, limit) }

func (c *Classifier) OnLogin() bool { return ObserveLogin(&c.state) }

// BeginRestart checks and sets the restart-in-flight flag; it returns false if a restart was already initiated.
func (c *Classifier) BeginRestart() bool {
	if c.state.RestartAlreadyInitiated {
		return false
	}
	c.state.RestartAlreadyInitiated = true
	return true
}

// AbortRestart clears the flag after a restart could not be scheduled.
func (c *Classifier) AbortRestart() { c.state.RestartAlreadyInitiated = false }
