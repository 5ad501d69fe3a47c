package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/bookmark"
	"github.com/SteelMorgan/rs2-log-harvester/internal/clickhouse"
	"github.com/SteelMorgan/rs2-log-harvester/internal/config"
	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/SteelMorgan/rs2-log-harvester/internal/harvest"
	"github.com/SteelMorgan/rs2-log-harvester/internal/observability"
	"github.com/SteelMorgan/rs2-log-harvester/internal/retry"
	"github.com/SteelMorgan/rs2-log-harvester/internal/writer"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	shutdownTracer func(context.Context) error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

// ensureConfig loads configuration once and sets up logging and tracing
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("failed to load configuration: %w", err)
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.LogLevel = *c.logLevelFlag
		}

		observability.InitLogger(cfg.LogLevel, cfg.LogFile)

		shutdown, err := observability.InitTracer(observability.TracerConfig{
			ServiceName:    "rs2-log-harvester",
			ServiceVersion: version,
			Endpoint:       cfg.TracingEndpoint,
			Protocol:       cfg.TracingProtocol,
			Enabled:        cfg.TracingEnabled,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize tracer")
		} else {
			c.shutdownTracer = shutdown
		}

		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) shutdown(ctx context.Context) error {
	if c.shutdownTracer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return c.shutdownTracer(ctx)
}

func (c *commandContext) retryConfig() retry.Config {
	cfg := c.config
	return retry.Config{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialDelay:    time.Duration(cfg.RetryInitialDelayMs) * time.Millisecond,
		MaxDelay:        time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		Multiplier:      cfg.RetryMultiplier,
		RetryableErrors: retry.DefaultConfig().RetryableErrors,
	}
}

// withSession opens an FTP session, runs fn and always closes the session
func (c *commandContext) withSession(ctx context.Context, fn func(ftpclient.Session) error) (err error) {
	cfg := c.config
	session, err := ftpclient.Open(ctx, ftpclient.Config{
		Host:     cfg.FTPHost,
		Port:     cfg.FTPPort,
		Username: cfg.FTPUsername,
		Password: cfg.FTPPassword,
		TLS:      cfg.FTPTLS,
		Insecure: cfg.FTPInsecure,
		Timeout:  cfg.FTPTimeout,
		Debug:    cfg.FTPDebug,
		Retry:    c.retryConfig(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close FTP session cleanly")
			err = errors.Join(err, cerr)
		}
	}()

	return fn(session)
}

func (c *commandContext) openStore(ctx context.Context) (bookmark.Store, error) {
	cfg := c.config
	store, err := bookmark.Open(ctx, bookmark.Config{
		Backend: cfg.BookmarkBackend,
		Path:    cfg.BookmarkPath,
		DSN:     cfg.BookmarkDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmark store: %w", err)
	}
	return store, nil
}

// newResolver loads the tracker from store and wires a resolver over session
func (c *commandContext) newResolver(ctx context.Context, session ftpclient.Session, store bookmark.Store) (*harvest.Resolver, error) {
	tracker, err := harvest.LoadTracker(ctx, store)
	if err != nil {
		return nil, err
	}
	log.Info().Int("bookmarks", tracker.Len()).Msg("Bookmarks loaded")
	return harvest.NewResolver(harvest.NewFetcher(session), tracker, store), nil
}

// openSink returns the configured line sink. Closing the sink also closes
// the ClickHouse connection behind it.
func (c *commandContext) openSink(ctx context.Context, out io.Writer, prefix bool) (writer.LineSink, error) {
	cfg := c.config
	switch cfg.Sink {
	case config.SinkClickHouse:
		client, err := clickhouse.Open(ctx, clickhouse.Options{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
			Retry:    c.retryConfig(),
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureSchema(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		sink := writer.NewClickHouseSink(client.Conn(), writer.BatchConfig{
			MaxSize:      cfg.ClickHouseBatchSize,
			FlushTimeout: cfg.ClickHouseFlushTimeout,
		})
		return &closingSink{LineSink: sink, closer: client}, nil
	default:
		sink := writer.NewStreamSink(out)
		sink.Prefix = prefix
		return sink, nil
	}
}

// closingSink closes an extra resource after the sink
type closingSink struct {
	writer.LineSink
	closer io.Closer
}

func (s *closingSink) Close() error {
	return errors.Join(s.LineSink.Close(), s.closer.Close())
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
