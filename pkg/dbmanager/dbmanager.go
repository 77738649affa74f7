package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// DBManager keeps named connection pools and the dialect of each one.
type DBManager struct {
	mu          sync.RWMutex
	connections map[string]*sql.DB
	dialects    map[string]Dialect
	defaultName string
}

// NewDBManager creates an empty manager whose default connection is "default".
func NewDBManager() *DBManager {
	return &DBManager{
		connections: make(map[string]*sql.DB),
		dialects:    make(map[string]Dialect),
		defaultName: "default",
	}
}

// AddConnection opens, pings and registers a pool under name.
// driverName is the database/sql driver ("mysql", "sqlite", "postgres", ...).
func (m *DBManager) AddConnection(name, driverName, dsn string, maxOpen, maxIdle int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[name]; exists {
		return fmt.Errorf("database connection '%s' already exists", name)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database '%s': %w", name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database '%s': %w", name, err)
	}

	configurePool(db, maxOpen, maxIdle)

	m.connections[name] = db
	m.dialects[name] = GetDialect(driverName)
	return nil
}

// Attach registers an already opened pool, e.g. one owned by the caller.
func (m *DBManager) Attach(name, driverName string, db *sql.DB) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[name]; exists {
		return fmt.Errorf("database connection '%s' already exists", name)
	}
	m.connections[name] = db
	m.dialects[name] = GetDialect(driverName)
	return nil
}

// GetConnection returns the pool registered under name, or nil.
func (m *DBManager) GetConnection(name string) *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[name]
}

// GetDialect returns the dialect of the named connection, or nil.
func (m *DBManager) GetDialect(name string) Dialect {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dialects[name]
}

// GetDefault returns the default connection and its dialect.
func (m *DBManager) GetDefault() (*sql.DB, Dialect) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[m.defaultName], m.dialects[m.defaultName]
}

// SetDefault changes which connection GetDefault returns.
func (m *DBManager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[name]; !exists {
		return fmt.Errorf("database connection '%s' not found", name)
	}
	m.defaultName = name
	return nil
}

// GetConnectionNames lists registered connection names in sorted order.
func (m *DBManager) GetConnectionNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.connections))
	for name := range m.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ping checks every registered pool and returns the first failure.
func (m *DBManager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, db := range m.connections {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database '%s' unreachable: %w", name, err)
		}
	}
	return nil
}

func configurePool(db *sql.DB, maxOpen, maxIdle int) {
	if maxOpen == 0 {
		maxOpen = 25
	}
	if maxIdle == 0 {
		maxIdle = 5
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
}

// Close closes every pool; the last error wins.
func (m *DBManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for name, db := range m.connections {
		if err := db.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close database '%s': %w", name, err)
		}
	}
	m.connections = make(map[string]*sql.DB)
	m.dialects = make(map[string]Dialect)
	return lastErr
}
