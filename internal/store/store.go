// Package store persists concatenation records for the local development
// backend. Every implementation is keyed by the record's OriginalFileName.
//
// Get returns (nil, nil) when the requested record does not exist. Put
// performs full-record replacement (upsert semantics).
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// Store defines the persistence interface for concatenation records. Each
// method is safe for concurrent use.
type Store interface {
	// Get retrieves a record by original file name. Returns nil, nil if not found.
	Get(ctx context.Context, name string) (*concat.State, error)
	// Put creates or replaces the record keyed by st.OriginalFileName.
	Put(ctx context.Context, st *concat.State) error
	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, name string) error
	// List returns every stored file name, sorted.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver string
	// DSN is a directory for the file driver and a connection string for
	// the SQL drivers.
	DSN string
}

// Factory builds a Store from Config.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a driver factory under name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(name)] = f
}

// Drivers lists the registered driver names, sorted.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open builds the store selected by cfg.Driver; empty means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" {
		name = "memory"
	}
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (available: %s)", cfg.Driver, strings.Join(Drivers(), ", "))
	}
	return f(ctx, cfg)
}

func init() {
	Register("memory", func(context.Context, Config) (Store, error) { return NewMemory(), nil })
	Register("file", func(_ context.Context, cfg Config) (Store, error) { return NewFile(cfg.DSN) })
	Register("sqlite", func(ctx context.Context, cfg Config) (Store, error) { return OpenSQL(ctx, DialectSQLite, cfg.DSN) })
	Register("postgres", func(ctx context.Context, cfg Config) (Store, error) { return OpenSQL(ctx, DialectPostgres, cfg.DSN) })
}

func checkPut(st *concat.State) error {
	if st == nil {
		return errors.New("state cannot be nil")
	}
	if strings.TrimSpace(st.OriginalFileName) == "" {
		return errors.New("originalFileName is required")
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]concat.State
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: map[string]concat.State{}}
}

func (m *Memory) Get(_ context.Context, name string) (*concat.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.records[name]
	if !ok {
		return nil, nil
	}
	out := st.Clone()
	return &out, nil
}

func (m *Memory) Put(_ context.Context, st *concat.State) error {
	if err := checkPut(st); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[st.OriginalFileName] = st.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.records))
	for k := range m.records {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }
