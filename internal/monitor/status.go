package monitor

import (
	"time"

	"faillog/internal/classifier"
	"faillog/internal/snapshot"
)

// Status 是事件循环对外发布的只读快照，HTTP 层与摘要输出共用。
type Status struct {
	Enabled      bool                     `json:"enabled"`
	FriendlyMap  string                   `json:"friendly_map"`
	FriendlyMode string                   `json:"friendly_mode"`
	Snapshot     *snapshot.ServerSnapshot `json:"snapshot,omitempty"`
	Window       classifier.WindowState   `json:"window"`
	Settings     classifier.Settings      `json:"settings"`
	Counts       map[string]int           `json:"counts"`
	LastEvent    *classifier.FailureEvent `json:"last_event,omitempty"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// Status returns the latest published snapshot.
func (m *Monitor) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	out := m.status
	out.Counts = make(map[string]int, len(m.status.Counts))
	for k, v := range m.status.Counts {
		out.Counts[k] = v
	}
	return out
}

// publish runs on the loop after every handler.
func (m *Monitor) publish() {
	st := Status{
		Enabled:      m.enabled,
		FriendlyMap:  m.friendlyMap(),
		FriendlyMode: m.friendlyMode(),
		Window:       m.classifier.State(),
		Settings:     m.classifier.Settings(),
		Counts:       make(map[string]int, len(m.counts)),
		UpdatedAt:    m.nowFn().UTC(),
	}
	if m.snap != nil {
		snap := *m.snap
		st.Snapshot = &snap
	}
	if m.lastEvent != nil {
		ev := *m.lastEvent
		st.LastEvent = &ev
	}
	for k, v := range m.counts {
		st.Counts[k.String()] = v
	}
	m.statusMu.Lock()
	m.status = st
	m.statusMu.Unlock()
}
