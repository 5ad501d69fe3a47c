package service

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/SteelMorgan/rs2-log-harvester/internal/bookmark"
	"github.com/SteelMorgan/rs2-log-harvester/internal/config"
	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/SteelMorgan/rs2-log-harvester/internal/harvest"
	"github.com/SteelMorgan/rs2-log-harvester/internal/retention"
	"github.com/SteelMorgan/rs2-log-harvester/internal/testsupport"
	"github.com/SteelMorgan/rs2-log-harvester/internal/writer"
)

const header = "Log: Log file open, 01/01/20 00:00:00"

type recordingSink struct {
	mu      sync.Mutex
	batches []*domain.HarvestedBatch
	err     error
	flushed int
	written chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{written: make(chan struct{}, 16)}
}

func (s *recordingSink) Write(ctx context.Context, batch *domain.HarvestedBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	select {
	case s.written <- struct{}{}:
	default:
	}
	return nil
}

func (s *recordingSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.batches {
		out = append(out, b.Lines...)
	}
	return out
}

func newTestHarvester(t *testing.T, session *testsupport.FakeSession, sink *recordingSink, opts Options) *Harvester {
	t.Helper()

	store := bookmark.NewMemoryStore()
	tracker, err := harvest.LoadTracker(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadTracker() error = %v", err)
	}
	resolver := harvest.NewResolver(harvest.NewFetcher(session), tracker, store)

	h, err := NewHarvester(resolver, retention.NewPruner(session), sink, opts)
	if err != nil {
		t.Fatalf("NewHarvester() error = %v", err)
	}
	return h
}

func TestPollOnce_DeliversOnlyNewLines(t *testing.T) {
	ctx := context.Background()
	session := testsupport.NewFakeSession()
	sink := newRecordingSink()
	h := newTestHarvester(t, session, sink, Options{LogPaths: []string{"/Launch.log"}})

	session.PutLog("Launch.log", header, "a", "b")
	report, err := h.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if report.Files != 1 || report.Lines != 2 {
		t.Errorf("unexpected report %+v", report)
	}

	// Unchanged file: the sink sees nothing
	if _, err := h.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	session.PutLog("Launch.log", header, "a", "b", "c", "d")
	if _, err := h.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	if want := []string{header, "a", "b", "c"}; !reflect.DeepEqual(sink.lines(), want) {
		t.Errorf("sink received %q, want %q", sink.lines(), want)
	}
	if len(sink.batches) != 2 {
		t.Errorf("expected 2 non-empty batches, got %d", len(sink.batches))
	}
}

func TestPollOnce_FailingPathDoesNotStopOthers(t *testing.T) {
	session := testsupport.NewFakeSession()
	sink := newRecordingSink()
	h := newTestHarvester(t, session, sink, Options{LogPaths: []string{"/Broken.log", "/Launch.log"}})

	session.PutLog("Broken.log", "no header here", "x")
	session.PutLog("Launch.log", header, "a", "b")

	report, err := h.PollOnce(context.Background())
	if !errors.Is(err, harvest.ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
	if report.Failures != 1 || report.Files != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if want := []string{header, "a"}; !reflect.DeepEqual(sink.lines(), want) {
		t.Errorf("sink received %q, want %q", sink.lines(), want)
	}
}

func TestPollOnce_SinkError(t *testing.T) {
	session := testsupport.NewFakeSession()
	sink := newRecordingSink()
	sink.err = errors.New("sink down")
	h := newTestHarvester(t, session, sink, Options{LogPaths: []string{"/Launch.log"}})

	session.PutLog("Launch.log", header, "a", "b")
	report, err := h.PollOnce(context.Background())
	if !errors.Is(err, sink.err) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if report.Failures != 1 {
		t.Errorf("expected one failure, got %+v", report)
	}
}

func TestPollOnce_StopsOnConnectionLoss(t *testing.T) {
	session := testsupport.NewFakeSession()
	session.RetrieveErr = &ftpclient.ConnectError{Addr: "ftp.example.org:21", Err: io.EOF}
	h := newTestHarvester(t, session, newRecordingSink(), Options{LogPaths: []string{"/A.log", "/B.log"}})

	_, err := h.PollOnce(context.Background())
	if !errors.Is(err, ftpclient.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if session.Retrieves != 1 {
		t.Errorf("expected the pass to stop after the first failure, got %d retrieves", session.Retrieves)
	}
}

func TestPruneOnce(t *testing.T) {
	session := testsupport.NewFakeSession()
	now := time.Now().UTC()
	session.Put("/ROGame/Logs", "Launch-backup-old.log", []byte("x"), now.AddDate(0, 0, -30))
	session.Put("/ROGame/Logs", "Launch-backup-new.log", []byte("x"), now.AddDate(0, 0, -1))
	session.Put("/ROGame/Logs", "old.txt", []byte("x"), now.AddDate(0, 0, -30))

	h := newTestHarvester(t, session, newRecordingSink(), Options{
		PruneEnabled: true,
		PruneRules:   []config.PruneRule{{Path: "/ROGame/Logs", Pattern: "*.log", RetentionDays: 15}},
	})

	if err := h.PruneOnce(context.Background()); err != nil {
		t.Fatalf("PruneOnce() error = %v", err)
	}
	if want := []string{"Launch-backup-old.log"}; !reflect.DeepEqual(session.Deleted(), want) {
		t.Errorf("deleted %v, want %v", session.Deleted(), want)
	}
}

func TestRun_StopFlushesSink(t *testing.T) {
	session := testsupport.NewFakeSession()
	session.PutLog("Launch.log", header, "a")
	sink := newRecordingSink()
	h := newTestHarvester(t, session, sink, Options{
		LogPaths:     []string{"/Launch.log"},
		PollInterval: 10 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background()) }()

	select {
	case <-sink.written:
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}
	h.Stop()
	h.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if sink.flushed == 0 {
		t.Error("sink was not flushed on stop")
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	h := newTestHarvester(t, testsupport.NewFakeSession(), newRecordingSink(), Options{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewHarvester_Validation(t *testing.T) {
	store := bookmark.NewMemoryStore()
	resolver := harvest.NewResolver(harvest.NewFetcher(testsupport.NewFakeSession()), harvest.NewTracker(), store)

	tests := []struct {
		name string
		fn   func() (*Harvester, error)
	}{
		{"missing resolver", func() (*Harvester, error) { return NewHarvester(nil, nil, newRecordingSink(), Options{}) }},
		{"missing sink", func() (*Harvester, error) { return NewHarvester(resolver, nil, nil, Options{}) }},
		{"relative log path", func() (*Harvester, error) {
			return NewHarvester(resolver, nil, newRecordingSink(), Options{LogPaths: []string{"/Server.log", "Launch.log"}})
		}},
		{"prune without pruner", func() (*Harvester, error) {
			return NewHarvester(resolver, nil, newRecordingSink(), Options{PruneEnabled: true})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type countingBatch struct {
	driver.Batch
	conn *countingConn
	rows int
}

func (b *countingBatch) Append(v ...any) error {
	b.rows++
	return nil
}

func (b *countingBatch) Send() error {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	b.conn.sent += b.rows
	return nil
}

func (b *countingBatch) Abort() error { return nil }

type countingConn struct {
	mu   sync.Mutex
	sent int
}

func (c *countingConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	return &countingBatch{conn: c}, nil
}

func (c *countingConn) rowsSent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func TestPollOnce_FlushesBatchingSink(t *testing.T) {
	session := testsupport.NewFakeSession()
	conn := &countingConn{}
	sink := writer.NewClickHouseSink(conn, writer.BatchConfig{
		MaxSize:      500,
		FlushTimeout: int64(time.Hour / time.Millisecond),
	})

	store := bookmark.NewMemoryStore()
	tracker, err := harvest.LoadTracker(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadTracker() error = %v", err)
	}
	resolver := harvest.NewResolver(harvest.NewFetcher(session), tracker, store)
	h, err := NewHarvester(resolver, nil, sink, Options{LogPaths: []string{"/Launch.log"}})
	if err != nil {
		t.Fatalf("NewHarvester() error = %v", err)
	}

	session.PutLog("Launch.log", header, "a", "b", "c")
	if _, err := h.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	// The log stops growing: rows whose bookmark moved must already be sent
	if _, err := h.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if got := conn.rowsSent(); got != 3 {
		t.Errorf("rows sent = %d, want 3", got)
	}
}

func TestPollAfterPrune_KeepsResolvingAbsolutePaths(t *testing.T) {
	ctx := context.Background()
	session := testsupport.NewFakeSession()
	session.Put("/Demos", "old.demo", []byte("x"), time.Now().AddDate(0, 0, -30))
	sink := newRecordingSink()
	h := newTestHarvester(t, session, sink, Options{
		LogPaths:     []string{"/Launch.log"},
		PruneEnabled: true,
		PruneRules:   []config.PruneRule{{Path: "/Demos", Pattern: "*.demo", RetentionDays: 7}},
	})

	session.PutLog("Launch.log", header, "a", "b")
	if _, err := h.PollOnce(ctx); err != nil {
		t.Fatalf("first PollOnce() error = %v", err)
	}
	if err := h.PruneOnce(ctx); err != nil {
		t.Fatalf("PruneOnce() error = %v", err)
	}

	session.PutLog("Launch.log", header, "a", "b", "c")
	report, err := h.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce() after prune error = %v", err)
	}
	if report.Lines != 1 {
		t.Errorf("expected one new line after prune, got %+v", report)
	}
	if want := []string{"old.demo"}; !reflect.DeepEqual(session.Deleted(), want) {
		t.Errorf("deleted %v, want %v", session.Deleted(), want)
	}
}
