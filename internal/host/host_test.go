package host

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"faillog/internal/classifier"
	"faillog/internal/names"
	"faillog/internal/snapshot"
)

type mockMonitor struct{ mock.Mock }

func (m *mockMonitor) OnPluginEnable()  { m.Called() }
func (m *mockMonitor) OnPluginDisable() { m.Called() }
func (m *mockMonitor) OnServerSnapshot(raw snapshot.RawServerInfo) {
	m.Called(raw)
}
func (m *mockMonitor) OnRosterSample(players int, subset classifier.Subset) {
	m.Called(players, subset)
}
func (m *mockMonitor) OnMaxPlayersLimit(limit int)         { m.Called(limit) }
func (m *mockMonitor) OnLoginHandshake()                   { m.Called() }
func (m *mockMonitor) OnMapDefines(defs []names.MapDefine) { m.Called(defs) }
func (m *mockMonitor) OnServerVar(key, value string)       { m.Called(key, value) }

func newAdapter(t *testing.T) (*Adapter, *mockMonitor) {
	t.Helper()
	mon := &mockMonitor{}
	a, err := NewAdapter(mon)
	require.NoError(t, err)
	return a, mon
}

func TestAdapterServerInfo(t *testing.T) {
	a, mon := newAdapter(t)
	mon.On("OnServerSnapshot", snapshot.RawServerInfo{
		ServerName:    "My Server",
		Map:           "MP_001",
		GameMode:      "ConquestLarge0",
		CurrentRound:  1,
		TotalRounds:   2,
		ServerRegion:  "NAm",
		ServerCountry: "US",
		ServerUptime:  3600,
	}).Once()

	name, err := a.Handle([]byte(`{"event":"OnServerInfo","data":{"server_name":"My Server","map":"MP_001","game_mode":"ConquestLarge0","current_round":1,"total_rounds":2,"server_region":"NAm","server_country":"US","server_uptime":3600}}`))
	require.NoError(t, err)
	assert.Equal(t, "OnServerInfo", name)
	mon.AssertExpectations(t)
}

func TestAdapterListPlayers(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		count  int
		subset classifier.Subset
	}{
		{"player array", `{"event":"OnListPlayers","data":{"players":[{"name":"a"},{"name":"b"}],"subset":"all"}}`, 2, classifier.SubsetAll},
		{"count only", `{"event":"OnListPlayers","data":{"count":17,"subset":"Team"}}`, 17, classifier.SubsetTeam},
		{"default subset", `{"event":"OnListPlayers","data":{"count":0}}`, 0, classifier.SubsetAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, mon := newAdapter(t)
			mon.On("OnRosterSample", tt.count, tt.subset).Once()
			_, err := a.Handle([]byte(tt.body))
			require.NoError(t, err)
			mon.AssertExpectations(t)
		})
	}
}

func TestAdapterMaxPlayersAndVars(t *testing.T) {
	a, mon := newAdapter(t)
	mon.On("OnServerVar", "vars.maxPlayers", "64").Once()
	mon.On("OnMaxPlayersLimit", 64).Once()
	mon.On("OnServerVar", "vars.ranked", "true").Once()
	mon.On("OnServerVar", "version", "BF3/1149").Once()

	_, err := a.Handle([]byte(`{"event":"OnMaxPlayers","data":{"limit":64}}`))
	require.NoError(t, err)
	_, err = a.Handle([]byte(`{"event":"OnRanked","data":{"value":true}}`))
	require.NoError(t, err)
	_, err = a.Handle([]byte(`{"event":"OnVersion","data":{"server_type":"BF3","version":"1149"}}`))
	require.NoError(t, err)
	mon.AssertExpectations(t)

	_, err = a.Handle([]byte(`{"event":"OnRanked","data":{}}`))
	assert.Error(t, err)
}

func TestAdapterLifecycleAndDefines(t *testing.T) {
	a, mon := newAdapter(t)
	mon.On("OnPluginEnable").Once()
	mon.On("OnLoginHandshake").Once()
	mon.On("OnMapDefines", []names.MapDefine{{FileName: "MP_001", PublicLevelName: "Grand Bazaar", PlayList: "RushLarge0", GameMode: "Rush"}}).Once()
	mon.On("OnPluginDisable").Once()

	for _, body := range []string{
		`{"event":"OnPluginEnable"}`,
		`{"event":"OnLogin","data":null}`,
		`{"event":"OnMapDefines","data":{"maps":[{"file_name":"MP_001","public_level_name":"Grand Bazaar","play_list":"RushLarge0","game_mode":"Rush"}]}}`,
		`{"event":"OnPluginDisable","ts":1368150004}`,
	} {
		_, err := a.Handle([]byte(body))
		require.NoError(t, err, body)
	}
	mon.AssertExpectations(t)
}

func TestAdapterRejects(t *testing.T) {
	a, _ := newAdapter(t)

	_, err := a.Handle([]byte(`not json`))
	assert.Error(t, err)

	_, err = a.Handle([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = a.Handle([]byte(`{"event":"OnListPlayers","data":"x"}`))
	assert.Error(t, err)

	name, err := a.Handle([]byte(`{"event":"OnPlayerKilled"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Equal(t, "OnPlayerKilled", name)
}

func TestAdapterRegistersAllServerVars(t *testing.T) {
	a, _ := newAdapter(t)
	assert.Len(t, a.Events(), len(serverVarEvents)+8)
}

func TestHTTPHost(t *testing.T) {
	var got []commandPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p commandPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		got = append(got, p)
		if p.Command[1] == "fail" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h, err := NewHTTPHost(srv.URL, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, h.SendCommand(ctx, "admin.listPlayers", "all"))
	require.NoError(t, h.Notify(ctx, "FailLog: new version available!", "Please download and install 1.0.0.10"))
	assert.Error(t, h.SendCommand(ctx, "fail"))
	assert.Error(t, h.SendCommand(ctx))

	require.Len(t, got, 3)
	assert.Equal(t, []string{"procon.protected.send", "admin.listPlayers", "all"}, got[0].Command)
	assert.Equal(t, []string{"procon.protected.notification.write", "FailLog: new version available!", "Please download and install 1.0.0.10"}, got[1].Command)

	_, err = NewHTTPHost("  ", 0)
	assert.Error(t, err)
}
