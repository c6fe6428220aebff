package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faillog/internal/classifier"
	"faillog/internal/config"
	"faillog/internal/dispatch"
	"faillog/internal/snapshot"
)

func record(id string, kind classifier.Kind, at time.Time) dispatch.Record {
	ev := classifier.FailureEvent{
		ID:               id,
		Kind:             kind,
		DetectedAt:       at,
		Snapshot:         snapshot.ServerSnapshot{ServerName: "srv", Map: "MP_001", Mode: "RushLarge0", TotalRounds: 2},
		PriorPlayerCount: 40,
		AfterPlayerCount: 2,
		MaxPlayers:       64,
		UptimeSeconds:    100,
	}
	return dispatch.NewRecord(ev, "Grand Bazaar", "Rush", config.ServerConfig{}, "127.0.0.1", "47200")
}

func TestJournalPublishAndRecent(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "data", "faillog.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2013, 5, 7, 1, 0, 0, 0, time.UTC)
	require.NoError(t, s.Publish(ctx, record("a", classifier.KindBlazeDisconnect, base)))
	require.NoError(t, s.Publish(ctx, record("b", classifier.KindNetworkCongestion, base.Add(time.Minute))))
	require.NoError(t, s.Publish(ctx, record("c", classifier.KindBlazeDisconnect, base.Add(2*time.Minute))))
	require.NoError(t, s.Publish(ctx, record("a", classifier.KindBlazeDisconnect, base)))

	all, err := s.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].EventID)
	assert.Equal(t, "Grand Bazaar", all[0].Map)
	assert.Equal(t, base.Add(2*time.Minute), all[0].DetectedAt)
	assert.Contains(t, all[0].Line, "Type:BLAZE_DISCONNECT")
	assert.NotEmpty(t, all[0].Details)

	blaze, err := s.Recent(ctx, Query{Kind: classifier.KindBlazeDisconnect, Limit: 1})
	require.NoError(t, err)
	require.Len(t, blaze, 1)
	assert.Equal(t, "c", blaze[0].EventID)

	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["BLAZE_DISCONNECT"])
	assert.Equal(t, int64(1), counts["NETWORK_CONGESTION"])
}

func TestJournalRequiresPath(t *testing.T) {
	_, err := New(" ")
	assert.Error(t, err)
}
