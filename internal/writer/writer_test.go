package writer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	"github.com/google/uuid"
)

func newBatch(path string, first int, lines ...string) *domain.HarvestedBatch {
	return &domain.HarvestedBatch{
		PollID:      uuid.New(),
		Identity:    domain.NewLogIdentity(path, time.Date(2020, 2, 21, 16, 6, 6, 0, time.UTC)),
		FirstLine:   first,
		Lines:       lines,
		HarvestedAt: time.Now(),
	}
}

func TestStreamSink(t *testing.T) {
	tests := []struct {
		name   string
		prefix bool
		batch  *domain.HarvestedBatch
		want   string
	}{
		{
			name:  "plain lines",
			batch: newBatch("Launch.log", 0, "a", "b"),
			want:  "a\nb\n",
		},
		{
			name:   "prefixed with path",
			prefix: true,
			batch:  newBatch("Launch.log", 3, "c"),
			want:   "Launch.log: c\n",
		},
		{
			name:  "empty batch writes nothing",
			batch: newBatch("Launch.log", 5),
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := NewStreamSink(&buf)
			sink.Prefix = tt.prefix

			if err := sink.Write(context.Background(), tt.batch); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Write() wrote %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeBatch struct {
	driver.Batch
	rows    [][]any
	sendErr error
	sent    bool
	aborted bool
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return b.sendErr
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type fakeConn struct {
	batches []*fakeBatch
	queries []string
	sendErr error
}

func (c *fakeConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	b := &fakeBatch{sendErr: c.sendErr}
	c.batches = append(c.batches, b)
	c.queries = append(c.queries, query)
	return b, nil
}

func TestClickHouseSink_FlushOnMaxSize(t *testing.T) {
	conn := &fakeConn{}
	sink := NewClickHouseSink(conn, BatchConfig{MaxSize: 3, FlushTimeout: int64(time.Hour / time.Millisecond)})
	ctx := context.Background()

	if err := sink.Write(ctx, newBatch("Launch.log", 0, "a", "b")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(conn.batches) != 0 {
		t.Fatalf("expected no flush below MaxSize, got %d batches", len(conn.batches))
	}

	if err := sink.Write(ctx, newBatch("Launch.log", 2, "c")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(conn.batches) != 1 {
		t.Fatalf("expected one flush at MaxSize, got %d", len(conn.batches))
	}

	b := conn.batches[0]
	if !b.sent {
		t.Error("batch was not sent")
	}
	if conn.queries[0] != insertHarvestedLines {
		t.Errorf("unexpected query %q", conn.queries[0])
	}
	if len(b.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(b.rows))
	}
	if got := b.rows[2][3]; got != uint32(2) {
		t.Errorf("line_no of third row = %v, want 2", got)
	}
	if got := b.rows[2][4]; got != "c" {
		t.Errorf("line of third row = %v, want c", got)
	}
}

func TestClickHouseSink_CloseFlushesPending(t *testing.T) {
	conn := &fakeConn{}
	sink := NewClickHouseSink(conn, BatchConfig{MaxSize: 100, FlushTimeout: int64(time.Hour / time.Millisecond)})

	if err := sink.Write(context.Background(), newBatch("Launch.log", 0, "a")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(conn.batches) != 1 || len(conn.batches[0].rows) != 1 {
		t.Fatalf("expected pending line flushed on close, got %d batches", len(conn.batches))
	}

	// Nothing pending: no further batch
	if err := sink.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(conn.batches) != 1 {
		t.Errorf("empty flush prepared a batch")
	}
}

func TestClickHouseSink_SendError(t *testing.T) {
	conn := &fakeConn{sendErr: errors.New("code: 210, network error")}
	sink := NewClickHouseSink(conn, BatchConfig{MaxSize: 1})

	err := sink.Write(context.Background(), newBatch("Launch.log", 0, "a"))
	if err == nil {
		t.Fatal("expected send error")
	}
	if !errors.Is(err, conn.sendErr) {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}

func TestEnsureValidDateTime(t *testing.T) {
	valid := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ensureValidDateTime(valid); !got.Equal(valid) {
		t.Errorf("valid time changed to %v", got)
	}
	if got := ensureValidDateTime(time.Time{}); !got.Equal(minClickHouseDateTime) {
		t.Errorf("zero time = %v, want %v", got, minClickHouseDateTime)
	}
}
