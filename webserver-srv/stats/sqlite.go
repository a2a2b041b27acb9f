package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// SQLiteCollector implements Collector using SQLite as the backend
type SQLiteCollector struct {
	db *sql.DB
}

// NewSQLiteCollector creates a new SQLite-based statistics collector
func NewSQLiteCollector(dbPath string) (*SQLiteCollector, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	collector := &SQLiteCollector{db: db}
	if err := collector.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Initialized sqlite stats collector at %s", dbPath)

	return collector, nil
}

func (s *SQLiteCollector) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_ip TEXT NOT NULL,
			method TEXT NOT NULL,
			host TEXT NOT NULL,
			path TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_requests_host ON requests(host);
		CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);

		CREATE TABLE IF NOT EXISTS proxy_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL,
			message TEXT NOT NULL,
			host TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_proxy_errors_created_at ON proxy_errors(created_at);
	`)
	return err
}

// RecordRequest records a dispatched request
func (s *SQLiteCollector) RecordRequest(ctx context.Context, record RequestRecord) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (client_ip, method, host, path, status_code, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ClientIP, record.Method, record.Host, record.Path, record.StatusCode, record.DurationMs, ts)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// RecordProxyError records an upstream failure
func (s *SQLiteCollector) RecordProxyError(ctx context.Context, record ProxyErrorRecord) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proxy_errors (code, message, host, created_at) VALUES (?, ?, ?, ?)`,
		record.Code, record.Message, record.Host, ts)
	if err != nil {
		return fmt.Errorf("failed to record proxy error: %w", err)
	}
	return nil
}

// Summary returns the aggregate view of recorded traffic
func (s *SQLiteCollector) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{StatusCounts: map[int]int64{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests`).Scan(&summary.TotalRequests); err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proxy_errors`).Scan(&summary.TotalErrors); err != nil {
		return nil, fmt.Errorf("failed to count proxy errors: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status_code, COUNT(*) FROM requests GROUP BY status_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logger.Error("Error closing rows: %v", closeErr)
		}
	}()
	for rows.Next() {
		var status int
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		summary.StatusCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	hostRows, err := s.db.QueryContext(ctx,
		`SELECT host, COUNT(*) AS cnt FROM requests GROUP BY host ORDER BY cnt DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top hosts: %w", err)
	}
	defer func() {
		if closeErr := hostRows.Close(); closeErr != nil {
			logger.Error("Error closing rows: %v", closeErr)
		}
	}()
	for hostRows.Next() {
		var hs HostStats
		if err := hostRows.Scan(&hs.Host, &hs.RequestCount); err != nil {
			return nil, fmt.Errorf("failed to scan host stats: %w", err)
		}
		summary.TopHosts = append(summary.TopHosts, hs)
	}
	if err := hostRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top hosts: %w", err)
	}

	errRows, err := s.db.QueryContext(ctx,
		`SELECT code, message, host, created_at FROM proxy_errors ORDER BY created_at DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent errors: %w", err)
	}
	defer func() {
		if closeErr := errRows.Close(); closeErr != nil {
			logger.Error("Error closing rows: %v", closeErr)
		}
	}()
	for errRows.Next() {
		var info ProxyErrorInfo
		if err := errRows.Scan(&info.Code, &info.Message, &info.Host, &info.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan proxy error: %w", err)
		}
		summary.RecentErrors = append(summary.RecentErrors, info)
	}
	if err := errRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent errors: %w", err)
	}

	return summary, nil
}

// HealthCheck verifies the database connection
func (s *SQLiteCollector) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteCollector) Close() error {
	return s.db.Close()
}
