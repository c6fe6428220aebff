package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faillog/internal/classifier"
	"faillog/internal/config"
	"faillog/internal/dispatch"
	"faillog/internal/names"
	"faillog/internal/snapshot"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingHost struct {
	mu       sync.Mutex
	commands []string
}

func (h *recordingHost) SendCommand(_ context.Context, words ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, strings.Join(words, " "))
	return nil
}

func (h *recordingHost) Notify(context.Context, string, string) error { return nil }

func (h *recordingHost) count(command string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.commands {
		if c == command {
			n++
		}
	}
	return n
}

type recordingSink struct {
	mu      sync.Mutex
	records []dispatch.Record
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, r dispatch.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *recordingSink) kinds() []classifier.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]classifier.Kind, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Kind())
	}
	return out
}

type harness struct {
	t     *testing.T
	m     *Monitor
	host  *recordingHost
	sink  *recordingSink
	clock *fakeClock
	queue *dispatch.Queue
	ctx   context.Context
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	h := newIdleHarness(t, mutate, dispatch.NewQueue(1, 64))
	h.startQueue()
	return h
}

// newIdleHarness runs the monitor but leaves queue stopped until startQueue.
func newIdleHarness(t *testing.T, mutate func(*config.Config), queue *dispatch.Queue) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Actions.EnableWebLog = false
	cfg.Actions.EnableLogToFile = false
	cfg.Actions.EnableEmailOnBlaze = false
	cfg.Actions.RestartDelaySeconds = 0
	cfg.Version.Enabled = false
	cfg.Host.Hostname = "10.0.0.1"
	cfg.Host.Port = "25200"
	if mutate != nil {
		mutate(cfg)
	}

	h := &recordingHost{}
	sink := &recordingSink{}
	d := dispatch.NewDispatcher(cfg, dispatch.Options{Queue: queue, Commander: h, Sinks: []dispatch.Sink{sink}})
	reg, err := names.NewRegistry("")
	require.NoError(t, err)
	m, err := New(Deps{Config: cfg, Dispatcher: d, Host: h, Names: reg})
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	m.SetClock(clock.Now)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = m.Run(ctx) }()
	return &harness{t: t, m: m, host: h, sink: sink, clock: clock, queue: queue, ctx: ctx}
}

func (h *harness) startQueue() {
	go func() { _ = h.queue.Run(h.ctx) }()
}

// sync waits until every event posted so far has been handled.
func (h *harness) sync() {
	h.t.Helper()
	require.NoError(h.t, h.m.call(h.ctx, func() {}))
}

func (h *harness) snapshot(uptime int) {
	h.m.OnServerSnapshot(snapshot.RawServerInfo{
		ServerName:   "Test Server",
		Map:          "MP_001",
		GameMode:     "ConquestLarge0",
		CurrentRound: 1,
		TotalRounds:  2,
		ServerUptime: uptime,
	})
	h.sync()
}

func (h *harness) roster(players int, subset classifier.Subset) {
	h.m.OnRosterSample(players, subset)
	h.sync()
}

func TestMonitor_EnableRequestsServerState(t *testing.T) {
	h := newHarness(t, nil)
	h.m.OnPluginEnable()
	h.sync()

	require.Eventually(t, func() bool {
		return h.host.count("serverInfo") == 1 && h.host.count("admin.listPlayers all") == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, h.m.Status().Enabled)
}

func TestMonitor_IgnoresEventsWhileDisabled(t *testing.T) {
	h := newHarness(t, nil)
	h.snapshot(100)
	h.roster(20, classifier.SubsetAll)

	st := h.m.Status()
	assert.False(t, st.Enabled)
	assert.Nil(t, st.Snapshot)
	assert.False(t, st.Window.HasSample())
}

func TestMonitor_BlazeRestartsOnlyOnce(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Actions.EnableRestartOnBlaze = true })
	h.m.OnPluginEnable()
	h.snapshot(100)

	h.roster(20, classifier.SubsetAll)
	h.clock.Advance(5 * time.Second)
	h.roster(0, classifier.SubsetAll)

	h.clock.Advance(5 * time.Second)
	h.roster(20, classifier.SubsetAll)
	h.clock.Advance(5 * time.Second)
	h.roster(0, classifier.SubsetAll)

	require.Eventually(t, func() bool { return len(h.sink.kinds()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []classifier.Kind{classifier.KindBlazeDisconnect, classifier.KindBlazeDisconnect}, h.sink.kinds())
	assert.Equal(t, 1, h.host.count("admin.shutDown"))
	assert.Equal(t, 2, h.m.Status().Counts[classifier.KindBlazeDisconnect.String()])
}

func TestMonitor_RestartRetriedAfterQueueFull(t *testing.T) {
	h := newIdleHarness(t, func(c *config.Config) { c.Actions.EnableRestartOnBlaze = true }, dispatch.NewQueue(1, 2))
	// serverInfo and listPlayers fill both slots
	h.m.OnPluginEnable()
	h.snapshot(100)

	h.roster(20, classifier.SubsetAll)
	h.clock.Advance(5 * time.Second)
	h.roster(0, classifier.SubsetAll)
	assert.False(t, h.m.Status().Window.RestartAlreadyInitiated)

	h.startQueue()
	require.Eventually(t, func() bool { return h.queue.Stats().Pending == 0 }, time.Second, 10*time.Millisecond)

	h.clock.Advance(5 * time.Second)
	h.roster(20, classifier.SubsetAll)
	h.clock.Advance(5 * time.Second)
	h.roster(0, classifier.SubsetAll)

	require.Eventually(t, func() bool { return h.host.count("admin.shutDown") == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, h.m.Status().Window.RestartAlreadyInitiated)
}

func TestMonitor_NoRestartWhilePlayersRemain(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Actions.EnableRestartOnBlaze = true })
	h.m.OnPluginEnable()
	h.snapshot(100)

	h.roster(40, classifier.SubsetAll)
	h.clock.Advance(5 * time.Second)
	h.roster(2, classifier.SubsetAll)

	require.Eventually(t, func() bool { return len(h.sink.kinds()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, h.host.count("admin.shutDown"))
}

func TestMonitor_DropsFailureWithoutSnapshot(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Actions.EnableRestartOnBlaze = true })
	h.m.OnPluginEnable()

	h.roster(20, classifier.SubsetAll)
	h.clock.Advance(5 * time.Second)
	h.roster(0, classifier.SubsetAll)

	recent, err := h.m.Recent(h.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.Empty(t, h.m.Status().Counts)
	// restart gating does not depend on the snapshot
	require.Eventually(t, func() bool { return h.host.count("admin.shutDown") == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, h.sink.kinds())
}

func TestMonitor_PartialRosterIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.m.OnPluginEnable()
	h.snapshot(100)

	h.roster(20, classifier.SubsetAll)
	h.clock.Advance(5 * time.Second)
	h.roster(0, classifier.SubsetTeam)

	st := h.m.Status()
	assert.Equal(t, 20, st.Window.LastPlayerCount)
	assert.Empty(t, st.Counts)
}

func TestMonitor_UptimeDropReportsGameServerRestart(t *testing.T) {
	h := newHarness(t, nil)
	h.m.OnPluginEnable()
	h.snapshot(1000)
	h.roster(30, classifier.SubsetAll)

	h.snapshot(10)
	require.Eventually(t, func() bool { return h.host.count("admin.listPlayers all") == 2 }, time.Second, 10*time.Millisecond)

	h.clock.Advance(5 * time.Second)
	h.roster(0, classifier.SubsetAll)

	require.Eventually(t, func() bool { return len(h.sink.kinds()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, classifier.KindGameServerRestart, h.sink.kinds()[0])

	recent, err := h.m.Recent(h.ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 1000, recent[0].Event.UptimeSeconds)
	assert.Equal(t, 30, recent[0].Event.PriorPlayerCount)
}

func TestMonitor_RecordCarriesHostAndNames(t *testing.T) {
	h := newHarness(t, nil)
	h.m.OnPluginEnable()
	h.m.OnMapDefines([]names.MapDefine{{FileName: "MP_001", PublicLevelName: "Grand Bazaar"}})
	h.snapshot(100)
	h.m.OnMaxPlayersLimit(64)

	h.roster(32, classifier.SubsetAll)
	h.clock.Advance(5 * time.Second)
	h.roster(0, classifier.SubsetAll)

	recent, err := h.m.Recent(h.ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	r := recent[0]
	assert.Equal(t, "10.0.0.1", r.Host)
	assert.Equal(t, "25200", r.Port)
	assert.Equal(t, "Grand Bazaar", r.Map)
	assert.Equal(t, 64, r.Event.MaxPlayers)
	assert.Equal(t, "Grand Bazaar", h.m.Status().FriendlyMap)
}

func TestMonitor_DisableClearsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.m.OnPluginEnable()
	h.snapshot(100)
	h.roster(20, classifier.SubsetAll)

	h.m.OnPluginDisable()
	h.sync()

	st := h.m.Status()
	assert.False(t, st.Enabled)
	assert.Nil(t, st.Snapshot)
	assert.Equal(t, names.Unknown, st.FriendlyMap)
	assert.False(t, st.Window.HasSample())
}

func TestMonitor_UpdateSetting(t *testing.T) {
	h := newHarness(t, nil)

	vars, err := h.m.UpdateSetting(h.ctx, config.SectionSettings+"|Blaze Disconnect Heuristic Percent", "50")
	require.NoError(t, err)
	assert.NotEmpty(t, vars)
	assert.InDelta(t, 50, h.m.Status().Settings.BlazePercent, 0.001)

	_, err = h.m.UpdateSetting(h.ctx, "No Such Setting", "1")
	assert.Error(t, err)
}

func TestMonitor_ServerVarEcho(t *testing.T) {
	h := newHarness(t, nil)
	h.m.OnServerVar("vars.gamePassword", "secret")
	h.sync()

	v, ok := h.m.Vars().Get("vars.gamePassword")
	require.True(t, ok)
	assert.Equal(t, "secret", v.Value)
}

func TestMonitor_CallAfterStop(t *testing.T) {
	cfg := config.Default()
	m, err := New(Deps{Config: cfg, Dispatcher: dispatch.NewDispatcher(cfg, dispatch.Options{})})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	_, err = m.Variables(context.Background())
	require.NoError(t, err)

	cancel()
	<-done
	_, err = m.Variables(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
