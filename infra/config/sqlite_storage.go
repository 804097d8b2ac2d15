package config

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrConfigNotFound is returned when a tenant has no stored gateway configuration
var ErrConfigNotFound = errors.New("gateway configuration not found")

// TenantConfigInfo describes a stored configuration without its values
type TenantConfigInfo struct {
	TenantID  string    `json:"tenantId"`
	Provider  string    `json:"provider"`
	Keys      []string  `json:"keys"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SQLiteStorage persists per-tenant gateway configuration
type SQLiteStorage struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

const maxBusyRetries = 3

// retryOperation repeats operation while SQLite reports the database as locked
func (s *SQLiteStorage) retryOperation(operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxBusyRetries; attempt++ {
		err := operation()
		if err == nil || !isBusy(err) {
			return err
		}
		lastErr = err
		if attempt < maxBusyRetries {
			// 10ms, 20ms, 40ms
			time.Sleep(time.Duration(10*(1<<attempt)) * time.Millisecond)
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", maxBusyRetries+1, lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// NewSQLiteStorage opens (creating when needed) the database at dbPath.
// ":memory:" gives a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	connStr := ":memory:"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", dbPath, err)
		}
		connStr = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=20000&_txlock=immediate", dbPath)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	storage := &SQLiteStorage{db: db, path: dbPath}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

func (s *SQLiteStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS gateway_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		provider_name TEXT NOT NULL,
		config_data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tenant_id, provider_name)
	);

	CREATE INDEX IF NOT EXISTS idx_gateway_configs_provider ON gateway_configs(provider_name);
	`
	_, err := s.db.Exec(query)
	return err
}

// SaveTenantConfig inserts or replaces the configuration for tenantID and providerName
func (s *SQLiteStorage) SaveTenantConfig(tenantID, providerName string, config map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return s.retryOperation(func() error {
		_, err := s.db.Exec(`
		INSERT INTO gateway_configs (tenant_id, provider_name, config_data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_id, provider_name)
		DO UPDATE SET config_data = excluded.config_data, updated_at = CURRENT_TIMESTAMP
		`, tenantID, providerName, string(configJSON))
		if err != nil {
			return fmt.Errorf("failed to save tenant config: %w", err)
		}
		return nil
	})
}

// LoadTenantConfig returns the stored configuration or ErrConfigNotFound
func (s *SQLiteStorage) LoadTenantConfig(tenantID, providerName string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var config map[string]string
	err := s.retryOperation(func() error {
		var configJSON string
		err := s.db.QueryRow(
			`SELECT config_data FROM gateway_configs WHERE tenant_id = ? AND provider_name = ?`,
			tenantID, providerName,
		).Scan(&configJSON)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: tenant %s, provider %s", ErrConfigNotFound, tenantID, providerName)
		}
		if err != nil {
			return fmt.Errorf("failed to load tenant config: %w", err)
		}
		if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
		return nil
	})
	return config, err
}

// ListTenantConfigs lists stored configurations for providerName, or for every
// provider when it is empty. Values are not returned.
func (s *SQLiteStorage) ListTenantConfigs(providerName string) ([]TenantConfigInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT tenant_id, provider_name, config_data, updated_at FROM gateway_configs`
	var args []any
	if providerName != "" {
		query += ` WHERE provider_name = ?`
		args = append(args, providerName)
	}
	query += ` ORDER BY tenant_id, provider_name`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant configs: %w", err)
	}
	defer rows.Close()

	var out []TenantConfigInfo
	for rows.Next() {
		var (
			info       TenantConfigInfo
			configJSON string
		)
		if err := rows.Scan(&info.TenantID, &info.Provider, &configJSON, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var config map[string]string
		if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config for tenant %s: %w", info.TenantID, err)
		}
		for key := range config {
			info.Keys = append(info.Keys, key)
		}
		sort.Strings(info.Keys)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// DeleteTenantConfig removes a stored configuration
func (s *SQLiteStorage) DeleteTenantConfig(tenantID, providerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		result, err := s.db.Exec(
			`DELETE FROM gateway_configs WHERE tenant_id = ? AND provider_name = ?`,
			tenantID, providerName,
		)
		if err != nil {
			return fmt.Errorf("failed to delete tenant config: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: tenant %s, provider %s", ErrConfigNotFound, tenantID, providerName)
		}
		return nil
	})
}

// Ping checks that the database answers
func (s *SQLiteStorage) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetStats returns row counts and the database size
func (s *SQLiteStorage) GetStats() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total, tenants, providers int
	err := s.db.QueryRow(`
	SELECT COUNT(*), COUNT(DISTINCT tenant_id), COUNT(DISTINCT provider_name) FROM gateway_configs
	`).Scan(&total, &tenants, &providers)
	if err != nil {
		return nil, fmt.Errorf("failed to count configs: %w", err)
	}

	stats := map[string]any{
		"total_configs":    total,
		"unique_tenants":   tenants,
		"unique_providers": providers,
		"db_path":          s.path,
	}
	if s.path != ":memory:" {
		if info, err := os.Stat(s.path); err == nil {
			stats["db_size_bytes"] = info.Size()
		}
	}
	return stats, nil
}
