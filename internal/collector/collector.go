package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/SteelMorgan/rs2-log-harvester/internal/glob"
	"github.com/SteelMorgan/rs2-log-harvester/internal/observability"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "rs2-log-harvester/collector"

// ErrCollectIncomplete is returned when at least one download failed
var ErrCollectIncomplete = errors.New("collect incomplete")

// Request describes one archival download
type Request struct {
	Path        string // Remote directory
	Destination string // Local directory or afs URL (file://, mem://, s3://, gs://)
	Pattern     string // Shell glob; empty matches everything
}

// Result summarizes a collection run
type Result struct {
	Found      int
	Downloaded []string
	Bytes      int64
	Failures   []error
}

// Collector downloads whole remote files, newest first, without bookmarks.
// Not safe for concurrent use: it changes the session's working directory.
type Collector struct {
	session  ftpclient.Session
	fs       afs.Service
	progress bool
}

// NewCollector creates a collector. When progress is set, a byte progress
// bar is drawn on stderr for each download.
func NewCollector(session ftpclient.Session, progress bool) *Collector {
	return &Collector{
		session:  session,
		fs:       afs.New(),
		progress: progress,
	}
}

// Collect lists req.Path and copies every matching file to req.Destination
func (c *Collector) Collect(ctx context.Context, req Request) (*Result, error) {
	if req.Pattern == "" {
		req.Pattern = "*"
	}
	if err := glob.Validate(req.Pattern); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", req.Pattern, err)
	}

	dest, err := normalizeDestination(req.Destination)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "collector.collect",
		attribute.String("collect.path", req.Path),
		attribute.String("collect.destination", dest),
		attribute.String("collect.pattern", req.Pattern),
	)

	result, err := c.collect(ctx, req, dest)
	if result != nil {
		span.SetAttributes(
			attribute.Int("collect.found", result.Found),
			attribute.Int("collect.downloaded", len(result.Downloaded)),
			attribute.Int64("collect.bytes", result.Bytes),
		)
	}
	observability.EndSpanWithError(span, err, "collect")

	return result, err
}

func (c *Collector) collect(ctx context.Context, req Request, dest string) (*Result, error) {
	if err := c.session.ChangeDir(ctx, req.Path); err != nil {
		return nil, fmt.Errorf("change directory to %s: %w", req.Path, err)
	}

	names, err := c.session.NameList(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", req.Path, err)
	}

	result := &Result{Found: len(names)}
	if len(names) == 0 {
		return result, nil
	}

	log.Info().Int("length", len(names)).Str("path", req.Path).Msg("Found files")

	if err := c.fs.Create(ctx, dest, file.DefaultDirOsMode, true); err != nil {
		return result, fmt.Errorf("create destination %s: %w", dest, err)
	}

	// Listing order is oldest first; collect the most recent first
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		if ok, _ := glob.Match(req.Pattern, name); !ok {
			continue
		}
		if ctx.Err() != nil {
			result.Failures = append(result.Failures, ctx.Err())
			break
		}

		n, err := c.download(ctx, name, url.Join(dest, name))
		if err != nil {
			log.Error().Err(err).Str("name", name).Msg("Download failed, skipping")
			result.Failures = append(result.Failures, fmt.Errorf("%s: %w", name, err))
			continue
		}
		result.Downloaded = append(result.Downloaded, name)
		result.Bytes += n
	}

	if len(result.Failures) > 0 {
		return result, fmt.Errorf("%w: %d downloads failed: %w",
			ErrCollectIncomplete, len(result.Failures), errors.Join(result.Failures...))
	}

	return result, nil
}

func (c *Collector) download(ctx context.Context, name, target string) (int64, error) {
	size, err := c.session.Size(ctx, name)
	if err != nil {
		// SIZE is optional on some servers; the bar just has no total
		log.Debug().Err(err).Str("name", name).Msg("Size unavailable")
		size = -1
	}

	bar := c.newBar(size, name)
	var buf bytes.Buffer
	if err := c.session.Retrieve(ctx, name, io.MultiWriter(&buf, bar)); err != nil {
		_ = bar.Exit()
		return 0, fmt.Errorf("retrieve: %w", err)
	}
	_ = bar.Finish()

	n := int64(buf.Len())
	if err := c.fs.Upload(ctx, target, file.DefaultFileOsMode, &buf); err != nil {
		return 0, fmt.Errorf("upload to %s: %w", target, err)
	}

	log.Info().
		Str("name", name).
		Str("target", target).
		Str("size", humanize.Bytes(uint64(n))).
		Msg("Collected")

	return n, nil
}

func (c *Collector) newBar(size int64, name string) *progressbar.ProgressBar {
	if c.progress {
		return progressbar.DefaultBytes(size, name)
	}
	return progressbar.DefaultBytesSilent(size, name)
}

// normalizeDestination turns plain paths into file:// URLs, as afs expects
func normalizeDestination(dest string) (string, error) {
	if dest == "" {
		return "", fmt.Errorf("destination is required")
	}
	if url.Scheme(dest, "") != "" {
		return dest, nil
	}
	if url.IsRelative(dest) {
		abs, err := filepath.Abs(dest)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path for %s: %w", dest, err)
		}
		dest = abs
	}
	return url.ToFileURL(dest), nil
}
