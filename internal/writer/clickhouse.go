package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const insertHarvestedLines = "INSERT INTO harvested_lines"

// ClickHouse DateTime64 valid range: 1925-01-01 to 2283-11-11
var (
	minClickHouseDateTime = time.Date(1925, 1, 1, 0, 0, 0, 0, time.UTC)
	maxClickHouseDateTime = time.Date(2283, 11, 11, 23, 59, 59, 999999999, time.UTC)
)

// ensureValidDateTime ensures the time value is within ClickHouse DateTime64 range
// Returns the input time if valid, or minClickHouseDateTime if out of range or zero
func ensureValidDateTime(t time.Time) time.Time {
	if t.IsZero() || t.Before(minClickHouseDateTime) || t.After(maxClickHouseDateTime) {
		return minClickHouseDateTime
	}
	return t
}

// BatchPreparer is the part of clickhouse.Conn the sink needs
type BatchPreparer interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// lineRow is one row of harvested_lines
type lineRow struct {
	pollID      uuid.UUID
	path        string
	openTime    time.Time
	lineNo      uint32
	line        string
	harvestedAt time.Time
}

// ClickHouseSink writes delivered lines to the harvested_lines table in batches
type ClickHouseSink struct {
	mu   sync.Mutex
	conn BatchPreparer
	cfg  BatchConfig

	pending   []lineRow
	lastFlush time.Time
}

// NewClickHouseSink creates a new ClickHouse batch sink
func NewClickHouseSink(conn BatchPreparer, cfg BatchConfig) *ClickHouseSink {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultBatchConfig().MaxSize
	}
	return &ClickHouseSink{
		conn:      conn,
		cfg:       cfg,
		pending:   make([]lineRow, 0, cfg.MaxSize),
		lastFlush: time.Now(),
	}
}

// Write adds the batch's lines and flushes when the batch is full or stale
func (w *ClickHouseSink) Write(ctx context.Context, batch *domain.HarvestedBatch) error {
	if batch == nil || batch.Empty() {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for i, line := range batch.Lines {
		w.pending = append(w.pending, lineRow{
			pollID:      batch.PollID,
			path:        batch.Identity.Path,
			openTime:    ensureValidDateTime(batch.Identity.OpenTime),
			lineNo:      uint32(batch.FirstLine + i),
			line:        line,
			harvestedAt: ensureValidDateTime(batch.HarvestedAt),
		})
	}

	if len(w.pending) >= w.cfg.MaxSize || time.Since(w.lastFlush).Milliseconds() >= w.cfg.FlushTimeout {
		return w.flushLocked(ctx)
	}
	return nil
}

// Flush forces writing all pending lines
func (w *ClickHouseSink) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Close flushes pending lines
func (w *ClickHouseSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return w.Flush(ctx)
}

func (w *ClickHouseSink) flushLocked(ctx context.Context) error {
	w.lastFlush = time.Now()
	if len(w.pending) == 0 {
		return nil
	}

	// Detach the snapshot first; a failed send drops it
	snapshot := w.pending
	w.pending = make([]lineRow, 0, w.cfg.MaxSize)

	startTime := time.Now()

	batch, err := w.conn.PrepareBatch(ctx, insertHarvestedLines)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for i, row := range snapshot {
		if err := batch.Append(
			row.pollID.String(),
			row.path,
			row.openTime,
			row.lineNo,
			row.line,
			row.harvestedAt,
		); err != nil {
			_ = batch.Abort()
			log.Error().
				Err(err).
				Str("path", row.path).
				Uint32("line_no", row.lineNo).
				Msg("Failed to append line to batch")
			return fmt.Errorf("failed to append to batch (row %d, path=%s): %w", i, row.path, err)
		}
	}

	if err := batch.Send(); err != nil {
		log.Error().
			Err(err).
			Int("rows", len(snapshot)).
			Msg("Failed to send batch to ClickHouse")
		return fmt.Errorf("failed to send batch (rows=%d): %w", len(snapshot), err)
	}

	log.Debug().
		Int("rows", len(snapshot)).
		Dur("duration", time.Since(startTime)).
		Msg("Harvested lines written to ClickHouse")

	return nil
}
