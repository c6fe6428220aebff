package livehttp

import (
	"context"

	"faillog/internal/config"
	"faillog/internal/dispatch"
	"faillog/internal/monitor"
	"faillog/internal/store/journal"
	"faillog/internal/store/servervars"
	"faillog/internal/version"
)

// MonitorAPI 是 HTTP 层对事件循环的全部依赖。
type MonitorAPI interface {
	Status() monitor.Status
	Recent(ctx context.Context, limit int) ([]dispatch.Record, error)
	Variables(ctx context.Context) ([]config.Variable, error)
	UpdateSetting(ctx context.Context, name, value string) ([]config.Variable, error)
}

// EventIngest accepts one raw host event envelope.
type EventIngest interface {
	Handle(raw []byte) (string, error)
}

// JournalReader 供 /api/events 查询持久化的故障记录。
type JournalReader interface {
	Recent(ctx context.Context, q journal.Query) ([]journal.Entry, error)
	Count(ctx context.Context) (map[string]int64, error)
}

type VarsReader interface {
	All() []servervars.Value
}

type QueueReader interface {
	Stats() dispatch.QueueStats
}

type VersionReader interface {
	Status() version.Status
}

// SettingUpdate 是 POST /api/settings 的请求体。
type SettingUpdate struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value"`
}

// StatusResponse 汇总 /api/status 的输出。
type StatusResponse struct {
	Monitor monitor.Status       `json:"monitor"`
	Queue   *dispatch.QueueStats `json:"queue,omitempty"`
	Version *version.Status      `json:"version,omitempty"`
	Process *ProcessStats        `json:"process,omitempty"`
	Clients int                  `json:"ws_clients"`
}
