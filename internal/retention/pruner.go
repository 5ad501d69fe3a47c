package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/SteelMorgan/rs2-log-harvester/internal/glob"
	"github.com/SteelMorgan/rs2-log-harvester/internal/listing"
	"github.com/SteelMorgan/rs2-log-harvester/internal/observability"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tracerName = "rs2-log-harvester/retention"

	// DefaultRetention is how long remote logs are kept when no cutoff is given
	DefaultRetention = 15 * 24 * time.Hour

	// DefaultPattern selects which remote files a sweep may delete
	DefaultPattern = "*.log"
)

// ErrPruneIncomplete is returned when at least one delete failed
var ErrPruneIncomplete = errors.New("prune incomplete")

// DeleteError reports one entry the server refused to delete
type DeleteError struct {
	Name string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %s: %v", e.Name, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// Request describes one sweep
type Request struct {
	Path      string    // Remote directory
	OlderThan time.Time // Zero means now - DefaultRetention
	Pattern   string    // Shell glob; empty means DefaultPattern
	DryRun    bool      // Report candidates without deleting
}

// Result summarizes a sweep
type Result struct {
	Examined   int
	Candidates []string
	Deleted    []string
	Warnings   int
	Failures   []error
}

// Pruner deletes remote files older than a cutoff.
// Not safe for concurrent use: it changes the session's working directory.
type Pruner struct {
	session ftpclient.Session
	now     func() time.Time
}

// NewPruner creates a pruner over an open session
func NewPruner(session ftpclient.Session) *Pruner {
	return &Pruner{session: session, now: time.Now}
}

// Prune deletes every entry of req.Path modified strictly before the cutoff
// whose name matches the pattern. Failures on single entries are collected
// and the sweep continues; the returned error is set if any delete failed.
func (p *Pruner) Prune(ctx context.Context, req Request) (*Result, error) {
	if req.OlderThan.IsZero() {
		req.OlderThan = p.now().Add(-DefaultRetention)
	}
	if req.Pattern == "" {
		req.Pattern = DefaultPattern
	}
	if err := glob.Validate(req.Pattern); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", req.Pattern, err)
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "retention.prune",
		attribute.String("prune.path", req.Path),
		attribute.String("prune.pattern", req.Pattern),
		attribute.String("prune.older_than", req.OlderThan.Format(time.RFC3339)),
		attribute.Bool("prune.dry_run", req.DryRun),
	)

	result, err := p.prune(ctx, req)
	if result != nil {
		span.SetAttributes(
			attribute.Int("prune.examined", result.Examined),
			attribute.Int("prune.deleted", len(result.Deleted)),
			attribute.Int("prune.failures", len(result.Failures)),
		)
	}
	observability.EndSpanWithError(span, err, "prune")

	return result, err
}

func (p *Pruner) prune(ctx context.Context, req Request) (*Result, error) {
	if err := p.session.ChangeDir(ctx, req.Path); err != nil {
		return nil, fmt.Errorf("change directory to %s: %w", req.Path, err)
	}

	raw, err := p.session.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", req.Path, err)
	}

	entries, warnings := listing.Parse(raw)
	for _, w := range warnings {
		log.Warn().
			Str("path", req.Path).
			Str("line", w.Line).
			Str("token", w.Token).
			Msg("Skipping listing line with unparsable timestamp")
	}

	log.Info().
		Str("path", req.Path).
		Int("entries", len(entries)).
		Int("warnings", len(warnings)).
		Time("older_than", req.OlderThan).
		Msg("Found listings")

	result := &Result{Examined: len(entries), Warnings: len(warnings)}

	for _, entry := range entries {
		if ctx.Err() != nil {
			result.Failures = append(result.Failures, ctx.Err())
			break
		}
		if entry.IsDir || !entry.ModifiedAt.Before(req.OlderThan) {
			continue
		}
		// Pattern validity was checked up front
		if ok, _ := glob.Match(req.Pattern, entry.Name); !ok {
			continue
		}

		result.Candidates = append(result.Candidates, entry.Name)
		if req.DryRun {
			log.Info().
				Str("name", entry.Name).
				Time("modified_at", entry.ModifiedAt).
				Msg("Would remove")
			continue
		}

		log.Info().
			Str("name", entry.Name).
			Time("modified_at", entry.ModifiedAt).
			Msg("Removing")

		if err := p.session.Delete(ctx, entry.Name); err != nil {
			log.Error().Err(err).Str("name", entry.Name).Msg("Delete failed, skipping")
			result.Failures = append(result.Failures, &DeleteError{Name: entry.Name, Err: err})
			continue
		}
		result.Deleted = append(result.Deleted, entry.Name)
	}

	if len(result.Failures) > 0 {
		return result, fmt.Errorf("%w: %d of %d deletes failed: %w",
			ErrPruneIncomplete, len(result.Failures), len(result.Candidates), errors.Join(result.Failures...))
	}

	return result, nil
}
