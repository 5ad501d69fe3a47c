package clickhouse

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/SteelMorgan/rs2-log-harvester/internal/retry"
	"github.com/rs/zerolog/log"
)

// harvestedLinesDDL creates the table written by writer.ClickHouseSink
const harvestedLinesDDL = `CREATE TABLE IF NOT EXISTS harvested_lines (
	poll_id      UUID,
	path         String,
	open_time    DateTime64(0, 'UTC'),
	line_no      UInt32,
	line         String,
	harvested_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (path, open_time, line_no)`

// Options locates and authenticates the ClickHouse server
type Options struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Retry    retry.Config
}

// Client wraps ClickHouse connection
type Client struct {
	conn     clickhouse.Conn
	retryCfg retry.Config
}

// Open connects and pings the server with retry
func Open(ctx context.Context, opts Options) (*Client, error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	// Test connection with retry
	if err := retry.Do(ctx, opts.Retry, func() error {
		return conn.Ping(ctx)
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	log.Info().
		Str("addr", addr).
		Str("database", opts.Database).
		Msg("Connected to ClickHouse")

	return &Client{
		conn:     conn,
		retryCfg: opts.Retry,
	}, nil
}

// EnsureSchema creates the harvested_lines table if it does not exist
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.Exec(ctx, harvestedLinesDDL); err != nil {
		return fmt.Errorf("failed to create harvested_lines: %w", err)
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (c *Client) Conn() clickhouse.Conn {
	return c.conn
}

// Close closes the connection
func (c *Client) Close() error {
	log.Info().Msg("Closing ClickHouse connection")
	return c.conn.Close()
}

// Exec executes a non-SELECT query with retry logic
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		return c.conn.Exec(ctx, query, args...)
	})
}
