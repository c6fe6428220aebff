// Package names resolves map and game mode codes to their display names.
package names

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"faillog/internal/logger"
)

// Unknown is shown when no server snapshot has been received yet.
const Unknown = "???"

// FileConfig 映射 names.yaml。
type FileConfig struct {
	Maps  map[string]string `mapstructure:"maps" yaml:"maps"`
	Modes map[string]string `mapstructure:"modes" yaml:"modes"`
}

// MapDefine is one entry of the host's map list.
type MapDefine struct {
	FileName        string `json:"file_name"`
	PublicLevelName string `json:"public_level_name"`
	PlayList        string `json:"play_list"`
	GameMode        string `json:"game_mode"`
}

// Snapshot 是当前生效的名称表（文件 + 宿主定义）。
type Snapshot struct {
	Version  int64             `json:"version"`
	LoadedAt time.Time         `json:"loaded_at"`
	Maps     map[string]string `json:"maps"`
	Modes    map[string]string `json:"modes"`
}

// ChangeListener 在名称表重载后触发。
type ChangeListener func(Snapshot)

// Registry merges the YAML dictionary with host-provided map defines. Host defines win.
type Registry struct {
	path string
	v    *viper.Viper

	mu           sync.RWMutex
	file         FileConfig
	definedMaps  map[string]string
	definedModes map[string]string
	snapshot     Snapshot
	listeners    []ChangeListener
}

// NewRegistry loads path and watches it. An empty path or a missing file yields a registry
// that relies on host defines only.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		r.rebuild()
		return r, nil
	}
	if _, err := os.Stat(r.path); errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("[names] %s not found, using host map defines only", r.path)
		r.rebuild()
		return r, nil
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read names config failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("[names] reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	r.v = v
	return r, nil
}

// OnChange registers fn for reloads of the file and host defines.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Map returns the display name of a map code, or the code itself.
func (r *Registry) Map(code string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.snapshot.Maps[code]; ok {
		return name
	}
	return code
}

// Mode returns the display name of a game mode code, or the code itself.
func (r *Registry) Mode(code string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.snapshot.Modes[code]; ok {
		return name
	}
	return code
}

// ApplyDefines replaces the host-provided names. The first define for a code wins.
func (r *Registry) ApplyDefines(defs []MapDefine) {
	maps := make(map[string]string, len(defs))
	modes := make(map[string]string)
	for _, d := range defs {
		if d.FileName != "" {
			if _, ok := maps[d.FileName]; !ok {
				maps[d.FileName] = d.PublicLevelName
			}
		}
		if d.PlayList != "" {
			if _, ok := modes[d.PlayList]; !ok {
				modes[d.PlayList] = d.GameMode
			}
		}
	}
	r.mu.Lock()
	r.definedMaps = maps
	r.definedModes = modes
	r.mu.Unlock()
	r.rebuild()
	if logger.Enabled(8) {
		for k, v := range maps {
			logger.Tracef(8, "[names] friendlyMaps[%s] = %s", k, v)
		}
		for k, v := range modes {
			logger.Tracef(8, "[names] friendlyModes[%s] = %s", k, v)
		}
	}
	logger.Tracef(6, "[names] Friendly names loaded")
	r.notifyListeners()
}

// ClearDefines drops the host-provided names.
func (r *Registry) ClearDefines() {
	r.mu.Lock()
	r.definedMaps = nil
	r.definedModes = nil
	r.mu.Unlock()
	r.rebuild()
}

// Snapshot 返回当前名称表的副本。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

func (r *Registry) reload() error {
	cfg, err := readNamesFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.file = cfg
	r.mu.Unlock()
	r.rebuild()
	logger.Infof("[names] loaded %d maps and %d modes from %s", len(cfg.Maps), len(cfg.Modes), filepath.Base(r.path))
	return nil
}

func (r *Registry) rebuild() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Maps:     merge(r.file.Maps, r.definedMaps),
		Modes:    merge(r.file.Modes, r.definedModes),
	}
}

func merge(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("names listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Maps:     make(map[string]string, len(src.Maps)),
		Modes:    make(map[string]string, len(src.Modes)),
	}
	for k, v := range src.Maps {
		dst.Maps[k] = v
	}
	for k, v := range src.Modes {
		dst.Modes[k] = v
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func readNamesFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read names config failed: %w", err)
	}
	var cfg FileConfig
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse names config failed: %w", err)
	}
	return cfg, nil
}
