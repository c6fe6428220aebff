// Package monitor runs the event loop that owns the classifier state for one monitored server.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"faillog/internal/classifier"
	"faillog/internal/config"
	"faillog/internal/dispatch"
	"faillog/internal/host"
	"faillog/internal/logger"
	"faillog/internal/names"
	"faillog/internal/snapshot"
	"faillog/internal/store/servervars"
	"faillog/internal/version"
)

// ErrNoSnapshot means a verdict arrived before the first server-info push.
var ErrNoSnapshot = errors.New("monitor: no server snapshot yet")

// ErrStopped is returned by calls made after the loop has exited.
var ErrStopped = errors.New("monitor: event loop stopped")

const (
	inboxSize    = 256
	recentLimit  = 100
	callTimeout  = 5 * time.Second
	restartTitle = "SERVER RESTART ALREADY INITIATED!"
)

// Deps 是 Monitor 的协作者；Host 为空时使用 host.LogHost。
type Deps struct {
	Config     *config.Config
	Names      *names.Registry
	Vars       *servervars.Table
	Dispatcher *dispatch.Dispatcher
	Host       host.Host
	Checker    *version.Checker
}

// Monitor 实现宿主事件的类型化入口。所有状态只在 Run 协程内读写，对外只暴露 Status 快照。
type Monitor struct {
	cfg        *config.Config
	classifier *classifier.Classifier
	names      *names.Registry
	vars       *servervars.Table
	dispatcher *dispatch.Dispatcher
	host       host.Host
	checker    *version.Checker

	inbox chan func()
	done  chan struct{}
	nowFn func() time.Time
	idFn  func() string

	runCtx        context.Context
	enabled       bool
	snap          *snapshot.ServerSnapshot
	session       context.Context
	cancelSession context.CancelFunc
	counts        map[classifier.Kind]int
	recent        []dispatch.Record
	lastEvent     *classifier.FailureEvent

	statusMu sync.RWMutex
	status   Status
}

func New(deps Deps) (*Monitor, error) {
	if deps.Config == nil {
		return nil, errors.New("monitor: config is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("monitor: dispatcher is required")
	}
	if deps.Names == nil {
		reg, err := names.NewRegistry("")
		if err != nil {
			return nil, err
		}
		deps.Names = reg
	}
	if deps.Vars == nil {
		deps.Vars = servervars.New()
	}
	if deps.Host == nil {
		deps.Host = host.LogHost{}
	}
	cfg := deps.Config.Clone()
	m := &Monitor{
		cfg:        cfg,
		classifier: classifier.New(detectionSettings(cfg)),
		names:      deps.Names,
		vars:       deps.Vars,
		dispatcher: deps.Dispatcher,
		host:       deps.Host,
		checker:    deps.Checker,
		inbox:      make(chan func(), inboxSize),
		done:       make(chan struct{}),
		nowFn:      time.Now,
		idFn:       uuid.NewString,
		runCtx:     context.Background(),
		counts:     make(map[classifier.Kind]int),
	}
	m.publish()
	return m, nil
}

// SetClock overrides the time source of the monitor and its classifier. Call before Run.
func (m *Monitor) SetClock(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	m.nowFn = fn
	m.classifier.SetClock(fn)
}

func detectionSettings(cfg *config.Config) classifier.Settings {
	return classifier.Settings{
		BlazePercent:      cfg.Detection.BlazePercent,
		WindowSeconds:     cfg.Detection.WindowSeconds,
		CongestionSeconds: cfg.Detection.CongestionSeconds,
	}
}

// Run processes inbound events until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.runCtx = ctx
	defer close(m.done)
	logger.Infof("[monitor] event loop started")
	for {
		select {
		case <-ctx.Done():
			if m.cancelSession != nil {
				m.cancelSession()
			}
			logger.Infof("[monitor] event loop stopped")
			return nil
		case fn := <-m.inbox:
			m.exec(fn)
		}
	}
}

func (m *Monitor) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[monitor] handler panic: %v\n%s", r, debug.Stack())
		}
		m.publish()
	}()
	fn()
}

// post enqueues fn on the loop; it reports false once the loop has exited.
func (m *Monitor) post(fn func()) bool {
	select {
	case m.inbox <- fn:
		return true
	case <-m.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (m *Monitor) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !m.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	select {
	case <-finished:
		return nil
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) OnPluginEnable()  { m.post(m.enable) }
func (m *Monitor) OnPluginDisable() { m.post(m.disable) }

func (m *Monitor) OnServerSnapshot(raw snapshot.RawServerInfo) {
	m.post(func() { m.serverInfo(raw) })
}

func (m *Monitor) OnRosterSample(players int, subset classifier.Subset) {
	m.post(func() { m.roster(players, subset) })
}

func (m *Monitor) OnMaxPlayersLimit(limit int) {
	m.post(func() {
		if !m.enabled {
			return
		}
		logger.Tracef(8, "[monitor] Got OnMaxPlayers %d", limit)
		m.classifier.OnMaxPlayers(limit)
	})
}

func (m *Monitor) OnLoginHandshake() {
	m.post(func() {
		if !m.enabled {
			return
		}
		logger.Tracef(8, "[monitor] Got OnLogin")
		m.classifier.OnLogin()
	})
}

func (m *Monitor) OnMapDefines(defs []names.MapDefine) {
	m.post(func() { m.names.ApplyDefines(defs) })
}

func (m *Monitor) OnServerVar(key, value string) {
	m.post(func() {
		v := m.vars.Set(key, value, m.nowFn())
		if m.vars.Persistent() {
			m.submit("servervar", func(ctx context.Context) error { return m.vars.Save(ctx, v) })
		}
	})
}

func (m *Monitor) enable() {
	if m.cancelSession != nil {
		m.cancelSession()
	}
	m.session, m.cancelSession = context.WithCancel(m.runCtx)
	m.enabled = true
	m.snap = nil
	m.classifier.Enable()
	logger.Infof("[monitor] Enabled! Version = %s", m.cfg.Version.Current)

	m.command("serverInfo")
	m.command("admin.listPlayers", "all")
	m.maybeCheckVersion()
}

func (m *Monitor) disable() {
	if m.cancelSession != nil {
		m.cancelSession()
		m.cancelSession = nil
	}
	m.enabled = false
	m.snap = nil
	m.classifier.Disable()
	m.names.ClearDefines()
	if m.checker != nil {
		m.checker.Reset()
	}
	logger.Infof("[monitor] Disabled")
}

func (m *Monitor) serverInfo(raw snapshot.RawServerInfo) {
	if !m.enabled {
		return
	}
	logger.Tracef(8, "[monitor] Got OnServerInfo: Debug level = %d", logger.DebugLevel())
	snap := snapshot.Encode(raw)
	newLevel := m.snap == nil || !m.snap.SameLevel(snap)

	previous := m.classifier.State().Uptime
	if m.classifier.OnUptime(snap.UptimeSeconds) {
		logger.Tracef(3, "[monitor] OnServerInfo previous uptime = %d, reported uptime = %d", previous, snap.UptimeSeconds)
		m.command("admin.listPlayers", "all")
	}
	m.snap = &snap
	if newLevel {
		logger.Tracef(3, "[monitor] New map/mode: %s/%s", m.friendlyMap(), m.friendlyMode())
	}
	m.maybeCheckVersion()
}

func (m *Monitor) roster(players int, subset classifier.Subset) {
	if !m.enabled {
		return
	}
	logger.Tracef(8, "[monitor] Got OnListPlayers %d (%s)", players, subset)
	verdict, fired := m.classifier.OnRosterSample(players, subset)
	if !fired {
		return
	}
	if err := m.failure(verdict); err != nil && logger.Enabled(3) {
		logger.Warnf("[monitor] Failure %s dropped: %v", verdict.Kind, err)
	}
	if verdict.Blazed() && m.cfg.Actions.EnableRestartOnBlaze && players == 0 {
		m.restart()
	}
}

func (m *Monitor) failure(v classifier.Verdict) error {
	if m.snap == nil {
		return ErrNoSnapshot
	}
	state := m.classifier.State()
	ev := classifier.FailureEvent{
		ID:               m.idFn(),
		Kind:             v.Kind,
		DetectedAt:       m.nowFn().UTC(),
		Snapshot:         *m.snap,
		PriorPlayerCount: v.Baseline,
		AfterPlayerCount: v.After,
		MaxPlayers:       state.MaxPlayers(),
		UptimeSeconds:    state.LastUptime,
	}
	rec := dispatch.NewRecord(ev, m.friendlyMap(), m.friendlyMode(), m.cfg.Server, m.cfg.Host.Hostname, m.cfg.Host.Port)
	m.dispatcher.Dispatch(rec)

	m.counts[ev.Kind]++
	m.lastEvent = &ev
	m.recent = append(m.recent, rec)
	if len(m.recent) > recentLimit {
		m.recent = append([]dispatch.Record(nil), m.recent[len(m.recent)-recentLimit:]...)
	}
	return nil
}

func (m *Monitor) restart() {
	if !m.classifier.BeginRestart() {
		logger.WarnBlock(" \n" + restartTitle + "\n ")
		return
	}
	session := m.session
	failed := func(error) {
		m.post(func() {
			if m.session == session {
				m.classifier.AbortRestart()
			}
		})
	}
	if err := m.dispatcher.ScheduleRestart(session, m.cfg.Actions.RestartDelaySeconds, failed); err != nil {
		logger.Errorf("[monitor] schedule restart: %v", err)
		m.classifier.AbortRestart()
	}
}

func (m *Monitor) maybeCheckVersion() {
	if m.checker == nil || !m.cfg.Version.Enabled || !m.checker.Claim() {
		return
	}
	checker := m.checker
	m.submit("version", func(ctx context.Context) error {
		_, err := checker.Check(ctx)
		if errors.Is(err, version.ErrCurrentNotReported) {
			return nil
		}
		return err
	})
}

func (m *Monitor) command(words ...string) {
	h := m.host
	m.submit("host:"+strings.Join(words, " "), func(ctx context.Context) error {
		return h.SendCommand(ctx, words...)
	})
}

func (m *Monitor) submit(name string, fn func(context.Context) error) {
	if err := m.dispatcher.Queue().Submit(dispatch.Task{Name: name, Run: fn}); err != nil {
		logger.Warnf("[monitor] drop %s task: %v", name, err)
	}
}

func (m *Monitor) friendlyMap() string {
	if m.snap == nil {
		return names.Unknown
	}
	return m.names.Map(m.snap.Map)
}

func (m *Monitor) friendlyMode() string {
	if m.snap == nil {
		return names.Unknown
	}
	return m.names.Mode(m.snap.Mode)
}

// UpdateSetting applies one plugin variable by display name and returns the visible variable list.
func (m *Monitor) UpdateSetting(ctx context.Context, name, value string) ([]config.Variable, error) {
	var (
		vars   []config.Variable
		setErr error
	)
	err := m.call(ctx, func() {
		setErr = m.cfg.SetVariable(name, value)
		m.applyConfig()
		vars = m.cfg.Variables()
	})
	if err != nil {
		return nil, err
	}
	if setErr != nil {
		return vars, fmt.Errorf("update setting: %w", setErr)
	}
	return vars, nil
}

// Variables returns the visible plugin variables.
func (m *Monitor) Variables(ctx context.Context) ([]config.Variable, error) {
	var vars []config.Variable
	if err := m.call(ctx, func() { vars = m.cfg.Variables() }); err != nil {
		return nil, err
	}
	return vars, nil
}

func (m *Monitor) applyConfig() {
	logger.SetDebugLevel(m.cfg.App.DebugLevel)
	m.classifier.SetSettings(detectionSettings(m.cfg))
	m.dispatcher.Apply(m.cfg)
}

// Recent returns up to limit in-memory records, newest first.
func (m *Monitor) Recent(ctx context.Context, limit int) ([]dispatch.Record, error) {
	var out []dispatch.Record
	err := m.call(ctx, func() {
		n := len(m.recent)
		if limit <= 0 || limit > n {
			limit = n
		}
		out = make([]dispatch.Record, 0, limit)
		for i := n - 1; i >= n-limit; i-- {
			out = append(out, m.recent[i])
		}
	})
	return out, err
}

// Vars exposes the server variable echo table.
func (m *Monitor) Vars() *servervars.Table { return m.vars }
