package listing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
)

// TimestampLayout is the MS-DOS style listing time: month-day-year, 12h clock,
// AM/PM glued to the minutes (e.g. "01-05-20  01:00AM")
const TimestampLayout = "01-02-06  03:04PM"

// dirMarker replaces the size column for directories
const dirMarker = "<DIR>"

// Columns: timestamp token, size or <DIR>, name (may contain spaces)
var lineRegex = regexp.MustCompile(`^\s*([0-9]{2}-[0-9]{2}-[0-9]{2}\s{2}[0-9]{2}:[0-9]{2}\w{2})\s*(\d*|<DIR>)\s+(.*)$`)

// ParseWarning reports a listing line whose timestamp could not be parsed.
// It is never fatal: the line is skipped and parsing continues.
type ParseWarning struct {
	Line  string
	Token string
}

func (w *ParseWarning) Error() string {
	return fmt.Sprintf("unparsable listing timestamp %q in line %q", w.Token, w.Line)
}

// Parse turns a raw directory listing into entries.
// Lines that do not look like entries (headers, blanks) are skipped silently;
// entries with bad timestamps are skipped and reported as warnings.
func Parse(raw string) ([]domain.ListingEntry, []*ParseWarning) {
	var (
		entries  []domain.ListingEntry
		warnings []*ParseWarning
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		entry, warning, ok := ParseLine(line)
		if warning != nil {
			warnings = append(warnings, warning)
			continue
		}
		if ok {
			entries = append(entries, entry)
		}
	}

	return entries, warnings
}

// ParseLine parses one listing line. ok is false for lines that are not
// entries at all; warning is set when the line matched but its timestamp
// did not parse.
func ParseLine(line string) (entry domain.ListingEntry, warning *ParseWarning, ok bool) {
	m := lineRegex.FindStringSubmatch(line)
	if m == nil {
		return domain.ListingEntry{}, nil, false
	}

	token := strings.TrimSpace(m[1])
	modified, parsed := ParseTimestamp(token)
	if !parsed {
		return domain.ListingEntry{}, &ParseWarning{Line: line, Token: token}, false
	}

	entry = domain.ListingEntry{
		Name:       m[3],
		ModifiedAt: modified,
	}
	switch m[2] {
	case dirMarker:
		entry.IsDir = true
	case "":
	default:
		// \d* cannot fail to parse short of overflow
		if size, err := strconv.ParseInt(m[2], 10, 64); err == nil {
			entry.Size = size
		}
	}

	return entry, nil, true
}

// ParseTimestamp parses a listing timestamp token in two steps.
// Some servers print the midnight/noon hour as "00:" on a 12-hour clock;
// when the first attempt fails, "00:" is rewritten to "12:" and retried.
// Listings carry no zone; the token is read as the host's local time, which
// is the clock the prune cutoff is taken from.
func ParseTimestamp(token string) (time.Time, bool) {
	if t, err := time.ParseInLocation(TimestampLayout, token, time.Local); err == nil {
		return t, true
	}

	fixed := strings.Replace(token, "00:", "12:", 1)
	if fixed == token {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(TimestampLayout, fixed, time.Local); err == nil {
		return t, true
	}

	return time.Time{}, false
}
