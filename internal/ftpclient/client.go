package ftpclient

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/retry"
	"github.com/rs/zerolog/log"
	"github.com/secsy/goftp"
)

// Config describes how to reach and log into the file server
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool // Explicit TLS (AUTH TLS), as FTPS servers expect
	Insecure bool // Skip certificate verification
	Timeout  time.Duration
	Debug    bool // Log the FTP conversation
	Retry    retry.Config
}

// Addr returns host:port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a Session over a single goftp raw connection
type Client struct {
	addr   string
	pool   io.Closer
	conn   goftp.RawConn
	closed bool
}

// Open connects and authenticates. Callers must Close the session on every
// exit path, typically with defer.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	gcfg := goftp.Config{
		User:               cfg.Username,
		Password:           cfg.Password,
		ConnectionsPerHost: 1,
		Timeout:            cfg.Timeout,
	}
	if cfg.TLS {
		gcfg.TLSConfig = &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.Insecure,
		}
		gcfg.TLSMode = goftp.TLSExplicit
	}
	if cfg.Debug {
		gcfg.Logger = log.Logger.With().Str("component", "goftp").Logger()
	}

	addr := cfg.Addr()
	pool, err := goftp.DialConfig(gcfg, addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	conn, err := retry.DoWithResult(ctx, cfg.Retry, func() (goftp.RawConn, error) {
		return pool.OpenRawConn()
	})
	if err != nil {
		pool.Close()
		if isAuthFailure(err) {
			return nil, &AuthError{User: cfg.Username, Err: err}
		}
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	c := newClient(addr, pool, conn)
	if _, err := c.command(ctx, 2, "TYPE I"); err != nil {
		c.Close()
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	log.Info().
		Str("addr", addr).
		Str("user", cfg.Username).
		Bool("tls", cfg.TLS).
		Msg("FTP session established")

	return c, nil
}

func newClient(addr string, pool io.Closer, conn goftp.RawConn) *Client {
	return &Client{addr: addr, pool: pool, conn: conn}
}

// command sends one control command and checks the reply class
// (1 = preliminary, 2 = completion, 3 = intermediate)
func (c *Client) command(ctx context.Context, class int, format string, args ...interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := commandName(format)
	code, msg, err := c.conn.SendCommand(format, args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if code/100 != class {
		return "", &ReplyError{Command: name, Code: code, Message: msg}
	}
	return msg, nil
}

// transfer runs a data command and copies the data connection into w
func (c *Client) transfer(ctx context.Context, w io.Writer, format string, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := commandName(format)
	getConn, err := c.conn.PrepareDataConn()
	if err != nil {
		return fmt.Errorf("%s: prepare data connection: %w", name, err)
	}

	if _, err := c.command(ctx, 1, format, args...); err != nil {
		return err
	}

	dc, err := getConn()
	if err != nil {
		return fmt.Errorf("%s: open data connection: %w", name, err)
	}
	_, copyErr := io.Copy(w, dc)
	closeErr := dc.Close()

	code, msg, err := c.conn.ReadResponse()
	if err != nil {
		return fmt.Errorf("%s: read completion: %w", name, err)
	}
	if code/100 != 2 {
		return &ReplyError{Command: name, Code: code, Message: msg}
	}
	if copyErr != nil {
		return fmt.Errorf("%s: copy data: %w", name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%s: close data connection: %w", name, closeErr)
	}
	return nil
}

// ChangeDir changes the working directory
func (c *Client) ChangeDir(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	_, err := c.command(ctx, 2, "CWD %s", path)
	return err
}

// NameList returns entry names, one per listing line
func (c *Client) NameList(ctx context.Context, path string) ([]string, error) {
	var buf bytes.Buffer
	if err := c.transfer(ctx, &buf, withPath("NLST", path)); err != nil {
		return nil, err
	}

	var names []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("NLST: %w", err)
	}
	return names, nil
}

// List returns the raw listing text
func (c *Client) List(ctx context.Context, path string) (string, error) {
	var buf bytes.Buffer
	if err := c.transfer(ctx, &buf, withPath("LIST", path)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Retrieve streams name into w
func (c *Client) Retrieve(ctx context.Context, name string, w io.Writer) error {
	return c.transfer(ctx, w, "RETR %s", name)
}

// Size returns the remote size of name
func (c *Client) Size(ctx context.Context, name string) (int64, error) {
	msg, err := c.command(ctx, 2, "SIZE %s", name)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(msg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("SIZE: invalid reply %q: %w", msg, err)
	}
	return size, nil
}

// Delete removes name
func (c *Client) Delete(ctx context.Context, name string) error {
	_, err := c.command(ctx, 2, "DELE %s", name)
	return err
}

// Close sends QUIT and closes the connection; every step runs even if an
// earlier one fails
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if _, _, err := c.conn.SendCommand("QUIT"); err != nil {
		errs = append(errs, fmt.Errorf("quit: %w", err))
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	if c.pool != nil {
		if err := c.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		log.Error().Err(err).Str("addr", c.addr).Msg("FTP session closed with errors")
	} else {
		log.Debug().Str("addr", c.addr).Msg("FTP session closed")
	}
	return err
}

// withPath renders a command with an optional path argument.
// The result is used as a format string, so % is escaped.
func withPath(cmd, path string) string {
	if path == "" {
		return cmd
	}
	return cmd + " " + strings.ReplaceAll(path, "%", "%%")
}

// commandName returns the verb of a command format, for error messages
func commandName(format string) string {
	if i := strings.IndexByte(format, ' '); i > 0 {
		return format[:i]
	}
	return format
}
