package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"faillog/internal/classifier"
	"faillog/internal/logger"
	"faillog/internal/names"
	"faillog/internal/snapshot"
)

// ErrUnknownEvent is returned for event names the adapter does not handle.
var ErrUnknownEvent = errors.New("host: unknown event")

// Monitor is the typed inbound API the adapter translates host events into.
type Monitor interface {
	OnPluginEnable()
	OnPluginDisable()
	OnServerSnapshot(raw snapshot.RawServerInfo)
	OnRosterSample(players int, subset classifier.Subset)
	OnMaxPlayersLimit(limit int)
	OnLoginHandshake()
	OnMapDefines(defs []names.MapDefine)
	OnServerVar(key, value string)
}

type handlerFunc func(m Monitor, data gjson.Result) error

// envelopeSchema 描述宿主推送事件的外层结构。
var envelopeSchema = map[string]any{
	"type":     "object",
	"required": []any{"event"},
	"properties": map[string]any{
		"event": map[string]any{"type": "string", "minLength": 1},
		"data":  map[string]any{"type": []any{"object", "null"}},
		"ts":    map[string]any{"type": "number"},
	},
}

// Adapter 把宿主的字符串事件翻译为 Monitor 的类型化调用。
type Adapter struct {
	target   Monitor
	schema   *jsonschema.Schema
	handlers map[string]handlerFunc
}

func NewAdapter(target Monitor) (*Adapter, error) {
	if target == nil {
		return nil, errors.New("host: adapter requires a monitor")
	}
	schema, err := compileSchema(envelopeSchema)
	if err != nil {
		return nil, fmt.Errorf("host: compile envelope schema: %w", err)
	}
	a := &Adapter{target: target, schema: schema, handlers: make(map[string]handlerFunc)}
	a.registerCore()
	a.registerServerVars()
	return a, nil
}

// Events lists the event names the adapter accepts.
func (a *Adapter) Events() []string {
	out := make([]string, 0, len(a.handlers))
	for name := range a.handlers {
		out = append(out, name)
	}
	return out
}

// Handle validates one JSON envelope and dispatches it. It returns the event name.
func (a *Adapter) Handle(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", errors.New("host: invalid json")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("host: decode envelope: %w", err)
	}
	if err := a.schema.Validate(doc); err != nil {
		return "", fmt.Errorf("host: envelope: %w", err)
	}
	env := gjson.ParseBytes(raw)
	name := strings.TrimSpace(env.Get("event").String())
	h, ok := a.handlers[name]
	if !ok {
		logger.Tracef(8, "[host] ignore event %s", name)
		return name, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	logger.Tracef(8, "[host] Got %s", name)
	return name, h(a.target, env.Get("data"))
}

func (a *Adapter) registerCore() {
	a.handlers["OnPluginEnable"] = func(m Monitor, _ gjson.Result) error {
		m.OnPluginEnable()
		return nil
	}
	a.handlers["OnPluginDisable"] = func(m Monitor, _ gjson.Result) error {
		m.OnPluginDisable()
		return nil
	}
	a.handlers["OnLogin"] = func(m Monitor, _ gjson.Result) error {
		m.OnLoginHandshake()
		return nil
	}
	a.handlers["OnServerInfo"] = func(m Monitor, data gjson.Result) error {
		if !data.IsObject() {
			return errors.New("host: OnServerInfo requires data")
		}
		m.OnServerSnapshot(snapshot.RawServerInfo{
			ServerName:    data.Get("server_name").String(),
			Map:           data.Get("map").String(),
			GameMode:      data.Get("game_mode").String(),
			CurrentRound:  int(data.Get("current_round").Int()),
			TotalRounds:   int(data.Get("total_rounds").Int()),
			ServerRegion:  data.Get("server_region").String(),
			ServerCountry: data.Get("server_country").String(),
			ServerUptime:  int(data.Get("server_uptime").Int()),
		})
		return nil
	}
	a.handlers["OnListPlayers"] = func(m Monitor, data gjson.Result) error {
		count := 0
		if players := data.Get("players"); players.IsArray() {
			count = len(players.Array())
		} else if c := data.Get("count"); c.Exists() {
			count = int(c.Int())
		} else {
			return errors.New("host: OnListPlayers requires players or count")
		}
		subset := classifier.Subset(strings.ToLower(strings.TrimSpace(data.Get("subset").String())))
		if subset == "" {
			subset = classifier.SubsetAll
		}
		m.OnRosterSample(count, subset)
		return nil
	}
	a.handlers["OnMaxPlayers"] = func(m Monitor, data gjson.Result) error {
		limit := data.Get("limit")
		if !limit.Exists() {
			return errors.New("host: OnMaxPlayers requires limit")
		}
		m.OnServerVar("vars.maxPlayers", limit.String())
		m.OnMaxPlayersLimit(int(limit.Int()))
		return nil
	}
	a.handlers["OnMapDefines"] = func(m Monitor, data gjson.Result) error {
		var defs []names.MapDefine
		data.Get("maps").ForEach(func(_, v gjson.Result) bool {
			defs = append(defs, names.MapDefine{
				FileName:        v.Get("file_name").String(),
				PublicLevelName: v.Get("public_level_name").String(),
				PlayList:        v.Get("play_list").String(),
				GameMode:        v.Get("game_mode").String(),
			})
			return true
		})
		m.OnMapDefines(defs)
		return nil
	}
	a.handlers["OnVersion"] = func(m Monitor, data gjson.Result) error {
		m.OnServerVar("version", data.Get("server_type").String()+"/"+data.Get("version").String())
		return nil
	}
}

// serverVarEvents maps configuration callbacks onto the echo table key.
var serverVarEvents = map[string]string{
	"OnServerName":                     "vars.serverName",
	"OnServerDescription":              "vars.serverDescription",
	"OnServerMessage":                  "vars.serverMessage",
	"OnPunkbuster":                     "punkBuster.activate",
	"OnRanked":                         "vars.ranked",
	"OnIdleTimeout":                    "vars.idleTimeout",
	"OnIdleBanRounds":                  "vars.idleBanRounds",
	"OnRoundRestartPlayerCount":        "vars.roundRestartPlayerCount",
	"OnRoundStartPlayerCount":          "vars.roundStartPlayerCount",
	"OnGameModeCounter":                "vars.gameModeCounter",
	"OnCtfRoundTimeModifier":           "vars.ctfRoundTimeModifier",
	"OnRoundLockdownCountdown":         "vars.roundLockdownCountdown",
	"OnRoundWarmupTimeout":             "vars.roundWarmupTimeout",
	"OnPremiumStatus":                  "vars.premiumStatus",
	"OnGunMasterWeaponsPreset":         "vars.gunMasterWeaponsPreset",
	"OnVehicleSpawnAllowed":            "vars.vehicleSpawnAllowed",
	"OnVehicleSpawnDelay":              "vars.vehicleSpawnDelay",
	"OnBulletDamage":                   "vars.bulletDamage",
	"OnOnlySquadLeaderSpawn":           "vars.onlySquadLeaderSpawn",
	"OnSoldierHealth":                  "vars.soldierHealth",
	"OnPlayerManDownTime":              "vars.playerManDownTime",
	"OnPlayerRespawnTime":              "vars.playerRespawnTime",
	"OnHud":                            "vars.hud",
	"OnNameTag":                        "vars.nameTag",
	"OnFriendlyFire":                   "vars.friendlyFire",
	"OnUnlockMode":                     "vars.unlockMode",
	"OnTeamBalance":                    "vars.autoBalance",
	"OnKillCam":                        "vars.killCam",
	"OnMiniMap":                        "vars.miniMap",
	"OnCrossHair":                      "vars.crossHair",
	"On3dSpotting":                     "vars.3dSpotting",
	"OnMiniMapSpotting":                "vars.miniMapSpotting",
	"OnThirdPersonVehicleCameras":      "vars.3pCam",
	"OnTeamKillCountForKick":           "vars.teamKillCountForKick",
	"OnTeamKillValueIncrease":          "vars.teamKillValueIncrease",
	"OnTeamKillValueDecreasePerSecond": "vars.teamKillValueDecreasePerSecond",
	"OnTeamKillValueForKick":           "vars.teamKillValueForKick",
}

func (a *Adapter) registerServerVars() {
	for event, key := range serverVarEvents {
		key := key
		a.handlers[event] = func(m Monitor, data gjson.Result) error {
			v := data.Get("value")
			if !v.Exists() {
				return fmt.Errorf("host: %s requires value", key)
			}
			m.OnServerVar(key, v.String())
			return nil
		}
	}
}

func compileSchema(data map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("envelope.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("envelope.json")
}
