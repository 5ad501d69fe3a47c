package writer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
)

// StreamSink writes delivered lines to an io.Writer, one per line.
// With Prefix set, every line is prefixed by its source path.
// The writer is owned by the caller and never closed.
type StreamSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	Prefix bool
}

// NewStreamSink creates a sink over w
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: bufio.NewWriter(w)}
}

func (s *StreamSink) Write(ctx context.Context, batch *domain.HarvestedBatch) error {
	if batch == nil || batch.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range batch.Lines {
		if s.Prefix {
			if _, err := fmt.Fprintf(s.w, "%s: ", batch.Identity.Path); err != nil {
				return fmt.Errorf("failed to write line: %w", err)
			}
		}
		if _, err := s.w.WriteString(line); err != nil {
			return fmt.Errorf("failed to write line: %w", err)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write line: %w", err)
		}
	}
	return s.w.Flush()
}

func (s *StreamSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.w.Flush()
}
