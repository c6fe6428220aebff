package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"faillog/internal/classifier"
	"faillog/internal/config"
)

type mockCommander struct{ mock.Mock }

func (m *mockCommander) SendCommand(ctx context.Context, words ...string) error {
	args := make([]any, 0, len(words))
	for _, w := range words {
		args = append(args, w)
	}
	return m.Called(args...).Error(0)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Email
}

func (m *recordingMailer) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []classifier.Kind
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, r.Kind())
	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.kinds)
}

func startQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewQueue(2, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = q.Run(ctx) }()
	t.Cleanup(cancel)
	return q
}

func TestDispatchBlazeChannels(t *testing.T) {
	cfg := config.Default()
	cfg.Actions.EnableLogToFile = true
	cfg.Actions.LogDir = t.TempDir()
	cfg.Actions.EnableWebLog = false
	cfg.Actions.EnableEmailOnBlaze = true
	cfg.Email.Recipients = []string{"ops@example.com"}

	mailer := &recordingMailer{}
	sink := &recordingSink{}
	d := NewDispatcher(cfg, Options{
		Queue:     startQueue(t),
		Sinks:     []Sink{sink},
		NewMailer: func(config.EmailConfig) Mailer { return mailer },
	})

	d.Dispatch(sampleRecord(classifier.KindBlazeDisconnect))
	d.Dispatch(sampleRecord(classifier.KindNetworkCongestion))

	assert.Eventually(t, func() bool { return sink.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return mailer.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	path := filepath.Join(cfg.Actions.LogDir, cfg.Actions.LogFile)
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Count(string(data), "\n") == 2
	}, 2*time.Second, 10*time.Millisecond)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.0.0.1_47200: Type:")
}

func TestScheduleRestartSendsShutdown(t *testing.T) {
	cmd := &mockCommander{}
	done := make(chan struct{})
	cmd.On("SendCommand", "admin.shutDown").Return(nil).Run(func(mock.Arguments) { close(done) }).Once()

	d := NewDispatcher(config.Default(), Options{Queue: startQueue(t), Commander: cmd})
	require.NoError(t, d.ScheduleRestart(context.Background(), 0, nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not sent")
	}
	cmd.AssertExpectations(t)
}

type countingCommander struct{ n atomic.Int32 }

func (c *countingCommander) SendCommand(context.Context, ...string) error {
	c.n.Add(1)
	return nil
}

func TestScheduleRestartCancelledWithSession(t *testing.T) {
	cmd := &countingCommander{}
	d := NewDispatcher(config.Default(), Options{Queue: startQueue(t), Commander: cmd})

	session, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.ScheduleRestart(session, 1, nil))
	cancel()

	assert.Never(t, func() bool { return cmd.n.Load() > 0 }, 1500*time.Millisecond, 50*time.Millisecond)
}

func TestDelayedRestartLeavesWorkersFree(t *testing.T) {
	cmd := &countingCommander{}
	sink := &recordingSink{}
	q := NewQueue(1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = q.Run(ctx) }()
	d := NewDispatcher(config.Default(), Options{Queue: q, Commander: cmd, Sinks: []Sink{sink}})

	require.NoError(t, d.ScheduleRestart(context.Background(), 1, nil))
	d.Dispatch(sampleRecord(classifier.KindNetworkCongestion))

	assert.Eventually(t, func() bool { return sink.len() == 1 }, 500*time.Millisecond, 10*time.Millisecond)
	assert.Zero(t, cmd.n.Load())
	assert.Eventually(t, func() bool { return cmd.n.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestDelayedRestartReportsQueueFull(t *testing.T) {
	q := NewQueue(1, 1)
	require.NoError(t, q.Submit(Task{Name: "busy", Run: func(context.Context) error { return nil }}))
	d := NewDispatcher(config.Default(), Options{Queue: q, Commander: &countingCommander{}})

	failed := make(chan error, 1)
	require.NoError(t, d.ScheduleRestart(context.Background(), 1, func(err error) { failed <- err }))

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(3 * time.Second):
		t.Fatal("queue full not reported")
	}
}

func TestScheduleRestartQueueFull(t *testing.T) {
	q := NewQueue(1, 1)
	require.NoError(t, q.Submit(Task{Name: "busy", Run: func(context.Context) error { return nil }}))
	d := NewDispatcher(config.Default(), Options{Queue: q, Commander: &countingCommander{}})
	assert.ErrorIs(t, d.ScheduleRestart(context.Background(), 0, nil), ErrQueueFull)
}

func TestApplyKeepsMailerUntilEmailChanges(t *testing.T) {
	cfg := config.Default()
	built := 0
	d := NewDispatcher(cfg, Options{
		Queue:     NewQueue(1, 1),
		NewMailer: func(config.EmailConfig) Mailer { built++; return &recordingMailer{} },
	})
	require.Equal(t, 1, built)

	next := *cfg
	next.App.DebugLevel = 5
	d.Apply(&next)
	assert.Equal(t, 1, built)

	next.Email.SMTPHostname = "smtp.example.com"
	d.Apply(&next)
	assert.Equal(t, 2, built)
}

func TestScheduleRestartNeedsCommander(t *testing.T) {
	d := NewDispatcher(config.Default(), Options{Queue: NewQueue(1, 1)})
	assert.Error(t, d.ScheduleRestart(context.Background(), 0, nil))
}
