package writer

import (
	"context"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
)

// LineSink receives the lines delivered by each poll.
// Bookmarks are persisted before Write is called, so a failing sink loses
// the batch rather than re-reading it.
type LineSink interface {
	// Write hands one poll's delivered lines to the sink
	Write(ctx context.Context, batch *domain.HarvestedBatch) error

	// Flush forces writing all pending lines
	Flush(ctx context.Context) error

	// Close flushes pending lines and closes the sink
	Close() error
}

// BatchConfig configures batch behavior
type BatchConfig struct {
	MaxSize      int   // Maximum lines per batch
	FlushTimeout int64 // Maximum milliseconds to wait before flush
}

// DefaultBatchConfig returns the batch settings used when none are configured
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxSize:      500,
		FlushTimeout: 5000,
	}
}
