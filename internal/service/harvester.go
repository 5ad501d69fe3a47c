package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/config"
	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/SteelMorgan/rs2-log-harvester/internal/harvest"
	"github.com/SteelMorgan/rs2-log-harvester/internal/retention"
	"github.com/SteelMorgan/rs2-log-harvester/internal/writer"
	"github.com/rs/zerolog/log"
)

// Options configures the harvest loop
type Options struct {
	LogPaths      []string // Absolute remote paths; the pruner moves the working directory
	PollInterval  time.Duration
	PruneEnabled  bool
	PruneInterval time.Duration
	PruneRules    []config.PruneRule
}

// PollReport summarizes one pass over all log paths
type PollReport struct {
	Files    int
	Lines    int
	Failures int
}

// Harvester polls the configured logs through one session and hands new
// lines to a sink, pruning on its own interval. All remote operations are
// serialized; the session is never used concurrently.
type Harvester struct {
	mu       sync.Mutex
	resolver *harvest.Resolver
	pruner   *retention.Pruner
	sink     writer.LineSink
	opts     Options
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHarvester creates a harvester. pruner may be nil when pruning is off.
func NewHarvester(resolver *harvest.Resolver, pruner *retention.Pruner, sink writer.LineSink, opts Options) (*Harvester, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	for _, p := range opts.LogPaths {
		if !path.IsAbs(p) {
			return nil, fmt.Errorf("log path %q must be absolute", p)
		}
	}
	if opts.PruneEnabled && pruner == nil {
		return nil, fmt.Errorf("pruner is required when pruning is enabled")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = time.Hour
	}

	return &Harvester{
		resolver: resolver,
		pruner:   pruner,
		sink:     sink,
		opts:     opts,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

// PollOnce resolves every log path once. A failing path is logged and the
// pass continues; the returned error joins all failures.
func (h *Harvester) PollOnce(ctx context.Context) (*PollReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := &PollReport{}
	var errs []error

	for _, logPath := range h.opts.LogPaths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		batch, err := h.resolver.ResolveBatch(ctx, logPath)
		if err != nil {
			report.Failures++
			log.Error().Err(err).Str("path", logPath).Msg("Failed to harvest log")
			errs = append(errs, fmt.Errorf("%s: %w", logPath, err))
			if isFatal(err) {
				break
			}
			continue
		}

		report.Files++
		if batch.Empty() {
			continue
		}
		report.Lines += len(batch.Lines)

		// The bookmark is already persisted; a sink failure loses this batch
		if err := h.sink.Write(ctx, batch); err != nil {
			report.Failures++
			log.Error().
				Err(err).
				Str("path", logPath).
				Int("lines", len(batch.Lines)).
				Msg("Sink rejected harvested lines")
			errs = append(errs, fmt.Errorf("%s: sink: %w", logPath, err))
		}
	}

	// Bookmarks for everything written above are persisted; do not leave
	// their lines buffered in the sink until the next write
	if report.Lines > 0 {
		if err := h.sink.Flush(ctx); err != nil {
			report.Failures++
			log.Error().Err(err).Msg("Failed to flush sink")
			errs = append(errs, fmt.Errorf("sink flush: %w", err))
		}
	}

	log.Info().
		Int("files", report.Files).
		Int("lines", report.Lines).
		Int("failures", report.Failures).
		Msg("Poll complete")

	return report, errors.Join(errs...)
}

// PruneOnce sweeps every prune rule once
func (h *Harvester) PruneOnce(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pruner == nil {
		return nil
	}

	var errs []error
	for _, rule := range h.opts.PruneRules {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		result, err := h.pruner.Prune(ctx, retention.Request{
			Path:      rule.Path,
			OlderThan: h.now().Add(-rule.Retention()),
			Pattern:   rule.Pattern,
		})
		if err != nil {
			log.Error().Err(err).Str("path", rule.Path).Msg("Prune failed")
			errs = append(errs, fmt.Errorf("prune %s: %w", rule.Path, err))
			if isFatal(err) {
				break
			}
			continue
		}
		log.Info().
			Str("path", rule.Path).
			Int("examined", result.Examined).
			Int("deleted", len(result.Deleted)).
			Msg("Prune complete")
	}

	return errors.Join(errs...)
}

// Run polls immediately, then on every poll tick, and prunes on every prune
// tick until ctx is done or Stop is called. Only connection and
// authentication failures end the loop early.
func (h *Harvester) Run(ctx context.Context) error {
	log.Info().
		Int("logs", len(h.opts.LogPaths)).
		Dur("poll_interval", h.opts.PollInterval).
		Bool("prune", h.opts.PruneEnabled).
		Msg("Harvester starting")

	defer func() {
		if err := h.sink.Flush(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to flush sink on stop")
		}
	}()

	if _, err := h.PollOnce(ctx); isFatal(err) {
		return err
	}

	pollTicker := time.NewTicker(h.opts.PollInterval)
	defer pollTicker.Stop()

	var pruneC <-chan time.Time
	if h.opts.PruneEnabled && len(h.opts.PruneRules) > 0 {
		if err := h.PruneOnce(ctx); isFatal(err) {
			return err
		}
		pruneTicker := time.NewTicker(h.opts.PruneInterval)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Harvester context cancelled")
			return ctx.Err()
		case <-h.stopCh:
			log.Info().Msg("Harvester stopped")
			return nil
		case <-pollTicker.C:
			if _, err := h.PollOnce(ctx); isFatal(err) {
				return err
			}
		case <-pruneC:
			if err := h.PruneOnce(ctx); isFatal(err) {
				return err
			}
		}
	}
}

// Stop ends Run after the current operation
func (h *Harvester) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}

// isFatal reports whether the session is unusable
func isFatal(err error) bool {
	return errors.Is(err, ftpclient.ErrConnect) || errors.Is(err, ftpclient.ErrAuth)
}
