package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// PostgreSQLCollector implements Collector using PostgreSQL as the backend
type PostgreSQLCollector struct {
	db *sql.DB
}

// NewPostgreSQLCollector creates a new PostgreSQL-based statistics collector
func NewPostgreSQLCollector(dsn string) (*PostgreSQLCollector, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	collector := &PostgreSQLCollector{db: db}
	if err := collector.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Initialized postgres stats collector")

	return collector, nil
}

func (p *PostgreSQLCollector) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			id BIGSERIAL PRIMARY KEY,
			client_ip TEXT NOT NULL,
			method TEXT NOT NULL,
			host TEXT NOT NULL,
			path TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_requests_host ON requests(host);
		CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);

		CREATE TABLE IF NOT EXISTS proxy_errors (
			id BIGSERIAL PRIMARY KEY,
			code TEXT NOT NULL,
			message TEXT NOT NULL,
			host TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_proxy_errors_created_at ON proxy_errors(created_at);
	`)
	return err
}

// RecordRequest records a dispatched request
func (p *PostgreSQLCollector) RecordRequest(ctx context.Context, record RequestRecord) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO requests (client_ip, method, host, path, status_code, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ClientIP, record.Method, record.Host, record.Path, record.StatusCode, record.DurationMs, ts)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// RecordProxyError records an upstream failure
func (p *PostgreSQLCollector) RecordProxyError(ctx context.Context, record ProxyErrorRecord) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO proxy_errors (code, message, host, created_at) VALUES ($1, $2, $3, $4)`,
		record.Code, record.Message, record.Host, ts)
	if err != nil {
		return fmt.Errorf("failed to record proxy error: %w", err)
	}
	return nil
}

// Summary returns the aggregate view of recorded traffic
func (p *PostgreSQLCollector) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{StatusCounts: map[int]int64{}}

	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests`).Scan(&summary.TotalRequests); err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proxy_errors`).Scan(&summary.TotalErrors); err != nil {
		return nil, fmt.Errorf("failed to count proxy errors: %w", err)
	}

	rows, err := p.db.QueryContext(ctx,
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

	hostRows, err := p.db.QueryContext(ctx,
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

	errRows, err := p.db.QueryContext(ctx,
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
func (p *PostgreSQLCollector) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgreSQLCollector) Close() error {
	return p.db.Close()
}
