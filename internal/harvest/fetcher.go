package harvest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"
)

const (
	// LineTerminator separates lines in remote logs
	LineTerminator = "\r\n"

	// headerDelimiter separates the header label from its open time,
	// e.g. "Log: Log file open, 01/01/20 00:00:00"
	headerDelimiter = ", "

	// HeaderTimeLayout is day/month/two-digit year with a 24h clock; day, month
	// and hour may be written without a leading zero
	HeaderTimeLayout = "2/1/06 15:04:05"
)

// FetchedLog is the full current content of a remote log
type FetchedLog struct {
	OpenTime time.Time
	Lines    []string
}

// Fetcher retrieves remote logs and reads their header
type Fetcher struct {
	session ftpclient.Session
}

// NewFetcher creates a fetcher over an open session
func NewFetcher(session ftpclient.Session) *Fetcher {
	return &Fetcher{session: session}
}

// Fetch downloads path in full, decodes it as ISO-8859-1 and splits it into
// lines. The remote file is not modified.
func (f *Fetcher) Fetch(ctx context.Context, path string) (*FetchedLog, error) {
	var buf bytes.Buffer
	if err := f.session.Retrieve(ctx, path, &buf); err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", path, err)
	}

	lines, err := SplitLines(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	log.Debug().
		Str("path", path).
		Int("bytes", buf.Len()).
		Int("lines", len(lines)).
		Msg("Fetched remote log")

	openTime, err := ParseOpenTime(path, lines)
	if err != nil {
		return nil, err
	}

	return &FetchedLog{OpenTime: openTime, Lines: lines}, nil
}

// SplitLines decodes raw bytes as ISO-8859-1, which maps every byte to a
// rune, and splits on CR-LF
func SplitLines(raw []byte) ([]string, error) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(decoded), LineTerminator), nil
}

// ParseOpenTime reads the open time from the first line: the second
// ", "-separated field in HeaderTimeLayout
func ParseOpenTime(path string, lines []string) (time.Time, error) {
	if len(lines) == 0 {
		return time.Time{}, &MalformedHeaderError{Path: path, Reason: "file is empty"}
	}

	header := strings.TrimSpace(lines[0])
	if header == "" {
		return time.Time{}, &MalformedHeaderError{Path: path, Reason: "first line is empty"}
	}

	fields := strings.Split(header, headerDelimiter)
	if len(fields) < 2 {
		return time.Time{}, &MalformedHeaderError{Path: path, Header: header, Reason: "missing delimiter"}
	}

	openTime, err := time.Parse(HeaderTimeLayout, strings.TrimSpace(fields[1]))
	if err != nil {
		return time.Time{}, &MalformedHeaderError{Path: path, Header: header, Reason: "invalid open time", Err: err}
	}

	return openTime, nil
}
