package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueSubmitFull(t *testing.T) {
	q := NewQueue(1, 2)
	noop := func(context.Context) error { return nil }
	require.NoError(t, q.Submit(Task{Name: "a", Run: noop}))
	require.NoError(t, q.Submit(Task{Name: "b", Run: noop}))
	assert.ErrorIs(t, q.Submit(Task{Name: "c", Run: noop}), ErrQueueFull)
	assert.Equal(t, int64(1), q.Stats().Dropped)
	assert.Equal(t, 2, q.Stats().Pending)
	assert.Error(t, q.Submit(Task{Name: "nil"}))
}

func TestQueueRunsTasksAndRecovers(t *testing.T) {
	q := NewQueue(2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- q.Run(ctx) }()

	done := make(chan string, 3)
	require.NoError(t, q.Submit(Task{Name: "panic", Run: func(context.Context) error {
		defer func() { done <- "panic" }()
		panic("boom")
	}}))
	require.NoError(t, q.Submit(Task{Name: "fail", Run: func(context.Context) error {
		done <- "fail"
		return errors.New("smtp down")
	}}))
	require.NoError(t, q.Submit(Task{Name: "ok", Run: func(context.Context) error {
		done <- "ok"
		return nil
	}}))

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case name := <-done:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatal("tasks did not run")
		}
	}
	assert.Len(t, seen, 3)
	assert.Eventually(t, func() bool {
		s := q.Stats()
		return s.Done == 1 && s.Failed == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-stopped)
	assert.ErrorIs(t, q.Submit(Task{Name: "late", Run: func(context.Context) error { return nil }}), ErrQueueClosed)
}
