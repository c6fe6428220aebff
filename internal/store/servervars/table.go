// Package servervars echoes the game server's configuration variables as last reported by the host.
package servervars

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Value is the last reported value of one variable.
type Value struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Table 保存 key → (value, 时间)。内存表由事件循环更新，持久化通过 Save 在后台执行。
type Table struct {
	mu   sync.RWMutex
	vals map[string]Value

	db *sql.DB
}

// New returns an in-memory table.
func New() *Table {
	return &Table{vals: make(map[string]Value)}
}

// Open returns a table backed by a sqlite file and preloaded with its rows.
func Open(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("server vars path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	t := &Table{vals: make(map[string]Value), db: db}
	if err := t.load(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS server_vars (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create server_vars: %w", err)
	}
	return nil
}

func (t *Table) load() error {
	rows, err := t.db.Query(`SELECT key, value, updated_at FROM server_vars`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v  Value
			ts int64
		)
		if err := rows.Scan(&v.Key, &v.Value, &ts); err != nil {
			return err
		}
		v.UpdatedAt = time.UnixMilli(ts).UTC()
		t.vals[v.Key] = v
	}
	return rows.Err()
}

// Persistent reports whether Save writes anywhere.
func (t *Table) Persistent() bool { return t.db != nil }

// Set records key in memory and returns the stored value.
func (t *Table) Set(key, value string, at time.Time) Value {
	v := Value{Key: key, Value: value, UpdatedAt: at.UTC()}
	t.mu.Lock()
	t.vals[key] = v
	t.mu.Unlock()
	return v
}

// Save upserts v into the backing file; a no-op for in-memory tables.
func (t *Table) Save(ctx context.Context, v Value) error {
	if t.db == nil {
		return nil
	}
	_, err := t.db.ExecContext(ctx, `INSERT INTO server_vars (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		v.Key, v.Value, v.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save server var %s: %w", v.Key, err)
	}
	return nil
}

func (t *Table) Get(key string) (Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vals[key]
	return v, ok
}

// All returns every variable sorted by key.
func (t *Table) All() []Value {
	t.mu.RLock()
	out := make([]Value, 0, len(t.vals))
	for _, v := range t.vals {
		out = append(out, v)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (t *Table) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}
