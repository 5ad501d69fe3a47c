package harvest

import (
	"context"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/bookmark"
	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	"github.com/SteelMorgan/rs2-log-harvester/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "rs2-log-harvester/harvest"

// Resolver turns one fetch of a remote log into the lines not yet delivered,
// and moves the bookmark past them.
// Not safe for concurrent use: it shares the fetcher's session.
type Resolver struct {
	fetcher *Fetcher
	tracker *Tracker
	store   bookmark.Store
	now     func() time.Time
}

// NewResolver wires a resolver. tracker must have been loaded from store.
func NewResolver(fetcher *Fetcher, tracker *Tracker, store bookmark.Store) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		tracker: tracker,
		store:   store,
		now:     time.Now,
	}
}

// Tracker returns the in-memory bookmark mirror
func (r *Resolver) Tracker() *Tracker {
	return r.tracker
}

// Resolve returns the new lines of path since the last poll
func (r *Resolver) Resolve(ctx context.Context, path string) ([]string, error) {
	batch, err := r.ResolveBatch(ctx, path)
	if err != nil {
		return nil, err
	}
	return batch.Lines, nil
}

// ResolveBatch is Resolve with the identity and line position of the result
func (r *Resolver) ResolveBatch(ctx context.Context, path string) (*domain.HarvestedBatch, error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "harvest.resolve",
		attribute.String("log.path", path),
	)

	batch, err := r.resolve(ctx, path)
	if err != nil {
		observability.EndSpanWithError(span, err, "resolve failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("log.open_time", batch.Identity.OpenTime.Format(time.RFC3339)),
		attribute.Int("log.first_line", batch.FirstLine),
		attribute.Int("log.new_lines", len(batch.Lines)),
	)
	observability.EndSpanSuccess(span)
	return batch, nil
}

func (r *Resolver) resolve(ctx context.Context, path string) (*domain.HarvestedBatch, error) {
	log.Info().Str("path", path).Msg("Getting new modifications")

	fetched, err := r.fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	id := domain.NewLogIdentity(path, fetched.OpenTime)

	offset, known := r.tracker.Lookup(id)
	if !known {
		log.Info().
			Str("path", path).
			Time("open_time", id.OpenTime).
			Msg("New, non-cached log file")

		// Insert before delivering anything so the identity survives a crash
		if err := r.store.Insert(ctx, id, 0); err != nil {
			return nil, &CachePersistError{Op: "insert", Identity: id, Offset: 0, Err: err}
		}
		r.tracker.set(id, 0)
		offset = 0
	} else {
		log.Info().
			Str("path", path).
			Time("open_time", id.OpenTime).
			Int("bookmark", offset).
			Msg("Log file is cached")
	}

	lines, next := Deliverable(fetched.Lines, offset)
	if len(fetched.Lines)-1 < offset {
		log.Warn().
			Str("path", path).
			Int("bookmark", offset).
			Int("lines", len(fetched.Lines)).
			Msg("Log file shrank without rotation, keeping bookmark")
	}

	if err := r.store.Update(ctx, id, next); err != nil {
		return nil, &CachePersistError{Op: "update", Identity: id, Offset: next, Err: err}
	}
	r.tracker.set(id, next)

	log.Info().
		Str("path", path).
		Int("new_lines", len(lines)).
		Int("bookmark", next).
		Msg("Bookmark advanced")

	return &domain.HarvestedBatch{
		PollID:      uuid.New(),
		Identity:    id,
		FirstLine:   offset,
		Lines:       lines,
		HarvestedAt: r.now(),
	}, nil
}

// Deliverable applies tail exclusion: the last line may still be being
// written, so lines[offset:len-1] are delivered and the next offset is
// len-1. The offset never moves backwards.
func Deliverable(lines []string, offset int) ([]string, int) {
	end := len(lines) - 1
	if end < 0 {
		end = 0
	}
	if offset >= end {
		return nil, offset
	}

	out := make([]string, end-offset)
	copy(out, lines[offset:end])
	return out, end
}
