package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestClassifier(t *testing.T) (*Classifier, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2013, 5, 7, 1, 52, 58, 0, time.UTC)}
	c := New(DefaultSettings())
	c.SetClock(clock.Now)
	c.Enable()
	return c, clock
}

// prime feeds a first full roster so later samples have a previous timestamp.
func prime(t *testing.T, c *Classifier, count int) {
	t.Helper()
	_, fired := c.OnRosterSample(count, SubsetAll)
	require.False(t, fired)
}

func TestInstantDropBoundary(t *testing.T) {
	tests := []struct {
		name    string
		last    int
		current int
		fires   bool
	}{
		{"75 percent loss fires", 12, 3, true},
		{"66 percent loss does not", 12, 4, false},
		{"below baseline floor", 11, 0, false},
		{"total loss fires", 64, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock := newTestClassifier(t)
			prime(t, c, tt.last)
			clock.Advance(10 * time.Second)

			v, fired := c.OnRosterSample(tt.current, SubsetAll)
			assert.Equal(t, tt.fires, fired)
			if tt.fires {
				assert.Equal(t, KindBlazeDisconnect, v.Kind)
				assert.Equal(t, tt.last, v.Baseline)
				assert.Equal(t, tt.current, v.After)
			}
		})
	}
}

func TestWindowResetsAfterVerdict(t *testing.T) {
	c, clock := newTestClassifier(t)
	prime(t, c, 40)
	clock.Advance(10 * time.Second)

	_, fired := c.OnRosterSample(2, SubsetAll)
	require.True(t, fired)
	st := c.State()
	assert.Zero(t, st.SumOfSecondsSinceReset)
	assert.Equal(t, 2, st.HighWaterCount)
	assert.Equal(t, 2, st.LastPlayerCount)
}

func TestWindowedDropUsesHighWater(t *testing.T) {
	c, clock := newTestClassifier(t)
	prime(t, c, 32)

	// 每 10 秒掉一部分玩家，单次比例不足 75%。
	for _, n := range []int{20, 12} {
		clock.Advance(10 * time.Second)
		_, fired := c.OnRosterSample(n, SubsetAll)
		require.False(t, fired)
	}
	st := c.State()
	assert.Equal(t, 32, st.HighWaterCount)
	assert.InDelta(t, 20.0, st.SumOfSecondsSinceReset, 0.001)

	clock.Advance(10 * time.Second)
	v, fired := c.OnRosterSample(6, SubsetAll)
	require.True(t, fired)
	assert.Equal(t, KindBlazeDisconnect, v.Kind)
	assert.Equal(t, 32, v.Baseline)
	assert.Equal(t, 6, v.After)

	st = c.State()
	assert.Zero(t, st.SumOfSecondsSinceReset)
	assert.Equal(t, 6, st.HighWaterCount)
}

func TestWindowCeilingResetsWithoutVerdict(t *testing.T) {
	c, clock := newTestClassifier(t)
	prime(t, c, 30)
	for i := 0; i < 2; i++ {
		clock.Advance(15 * time.Second)
		_, fired := c.OnRosterSample(28, SubsetAll)
		require.False(t, fired)
	}
	st := c.State()
	assert.Zero(t, st.SumOfSecondsSinceReset)
	assert.Equal(t, 28, st.HighWaterCount)
}

func TestHighWaterFloorAppliesToWindowedPath(t *testing.T) {
	c, clock := newTestClassifier(t)
	prime(t, c, 11)
	clock.Advance(15 * time.Second)
	_, fired := c.OnRosterSample(8, SubsetAll)
	require.False(t, fired)
	clock.Advance(15 * time.Second)
	_, fired = c.OnRosterSample(0, SubsetAll)
	assert.False(t, fired)
}

func TestNetworkCongestion(t *testing.T) {
	c, clock := newTestClassifier(t)
	prime(t, c, 20)
	clock.Advance(81 * time.Second)

	v, fired := c.OnRosterSample(20, SubsetAll)
	require.True(t, fired)
	assert.Equal(t, KindNetworkCongestion, v.Kind)
	assert.Zero(t, c.State().SumOfSecondsSinceReset)
}

func TestCongestionAtCeilingDoesNotFire(t *testing.T) {
	c, clock := newTestClassifier(t)
	prime(t, c, 20)
	clock.Advance(80 * time.Second)
	v, fired := c.OnRosterSample(20, SubsetAll)
	// 80 秒未超过上限，但已超过窗口，窗口被重置。
	assert.False(t, fired)
	assert.Empty(t, v.Kind)
	assert.Zero(t, c.State().SumOfSecondsSinceReset)
}

func TestUptimeSlack(t *testing.T) {
	tests := []struct {
		name    string
		prev    int
		next    int
		crashed bool
	}{
		{"two second decrease tolerated", 1000, 998, false},
		{"three second decrease flags crash", 1000, 997, true},
		{"increase", 1000, 1030, false},
		{"no previous uptime", 0, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st WindowState
			if tt.prev > 0 {
				ObserveUptime(&st, tt.prev)
			}
			assert.Equal(t, tt.crashed, ObserveUptime(&st, tt.next))
			assert.Equal(t, tt.crashed, st.CrashSuspected)
			assert.Equal(t, tt.prev, st.LastUptime)
			assert.Equal(t, tt.next, st.Uptime)
		})
	}
}

func TestCrashVerdictTakesPriority(t *testing.T) {
	c, clock := newTestClassifier(t)
	c.OnUptime(5000)
	prime(t, c, 40)
	require.True(t, c.OnUptime(10))
	clock.Advance(100 * time.Second)

	v, fired := c.OnRosterSample(0, SubsetAll)
	require.True(t, fired)
	assert.Equal(t, KindGameServerRestart, v.Kind)
	assert.Equal(t, 40, v.Baseline)
	assert.False(t, c.State().CrashSuspected)
}

func TestLoginHandshake(t *testing.T) {
	c, clock := newTestClassifier(t)

	// 启用后的第一次登录被忽略。
	assert.False(t, c.OnLogin())
	prime(t, c, 20)

	assert.True(t, c.OnLogin())
	st := c.State()
	assert.False(t, st.HasSample())
	clock.Advance(5 * time.Second)

	v, fired := c.OnRosterSample(20, SubsetAll)
	require.True(t, fired)
	assert.Equal(t, KindProconReconnected, v.Kind)
	assert.False(t, c.State().JustReconnected)

	clock.Advance(5 * time.Second)
	_, fired = c.OnRosterSample(20, SubsetAll)
	assert.False(t, fired)
}

func TestPartialRosterIgnored(t *testing.T) {
	c, clock := newTestClassifier(t)
	prime(t, c, 30)
	before := c.State()

	clock.Advance(10 * time.Second)
	for _, subset := range []Subset{SubsetTeam, SubsetSquad, SubsetPlayer} {
		_, fired := c.OnRosterSample(0, subset)
		assert.False(t, fired)
	}
	assert.Equal(t, before, c.State())
}

func TestMaxPlayers(t *testing.T) {
	var st WindowState
	ObserveMaxPlayers(&st, 64)
	ObserveMaxPlayers(&st, 32)
	assert.Equal(t, 32, st.MaxPlayersLimit)
	assert.Equal(t, 64, st.HighestSeenMaxPlayersLimit)
	assert.Equal(t, 64, st.MaxPlayers())
}

func TestBeginRestartOnce(t *testing.T) {
	c, _ := newTestClassifier(t)
	assert.True(t, c.BeginRestart())
	assert.False(t, c.BeginRestart())

	c.Disable()
	assert.True(t, c.BeginRestart())

	c.AbortRestart()
	assert.False(t, c.State().RestartAlreadyInitiated)
	assert.True(t, c.BeginRestart())
}
