package classifier

import (
	"time"

	"faillog/internal/snapshot"
)

type Kind string

const (
	KindGameServerRestart Kind = "GAME_SERVER_RESTART"
	KindProconReconnected Kind = "PROCON_RECONNECTED"
	KindNetworkCongestion Kind = "NETWORK_CONGESTION"
	KindBlazeDisconnect   Kind = "BLAZE_DISCONNECT"
)

func (k Kind) String() string { return string(k) }

// Subset 标识一次 listPlayers 的范围，只有 SubsetAll 参与分类。
type Subset string

const (
	SubsetAll    Subset = "all"
	SubsetTeam   Subset = "team"
	SubsetSquad  Subset = "squad"
	SubsetPlayer Subset = "player"
)

const (
	// MinBaselinePlayers is the smallest baseline that can produce a blaze verdict.
	MinBaselinePlayers = 12
	// UptimeSlackSeconds absorbs host-side rounding of the uptime counter.
	UptimeSlackSeconds = 2
)

// Settings are the tunable thresholds of the classifier.
type Settings struct {
	BlazePercent      float64
	WindowSeconds     float64
	CongestionSeconds float64
}

// DefaultSettings matches the shipped configuration.
func DefaultSettings() Settings {
	return Settings{BlazePercent: 75, WindowSeconds: 30, CongestionSeconds: 80}
}

// Verdict is the classifier's raw decision for one roster sample.
type Verdict struct {
	Kind     Kind
	Baseline int
	After    int
}

func (v Verdict) Blazed() bool { return v.Kind == KindBlazeDisconnect }

// FailureEvent 由分类结果与最近一次快照组合而成，生成后不再修改。
type FailureEvent struct {
	ID               string                  `json:"id"`
	Kind             Kind                    `json:"kind"`
	DetectedAt       time.Time               `json:"detected_at"`
	Snapshot         snapshot.ServerSnapshot `json:"snapshot"`
	PriorPlayerCount int                     `json:"prior_player_count"`
	AfterPlayerCount int                     `json:"after_player_count"`
	MaxPlayers       int                     `json:"max_players"`
	UptimeSeconds    int                     `json:"uptime_seconds"`
}
