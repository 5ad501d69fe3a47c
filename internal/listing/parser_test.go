package listing

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		want   time.Time
		wantOK bool
	}{
		{
			name:   "regular AM",
			token:  "01-05-20  01:00AM",
			want:   time.Date(2020, 1, 5, 1, 0, 0, 0, time.Local),
			wantOK: true,
		},
		{
			name:   "regular PM",
			token:  "12-31-19  11:59PM",
			want:   time.Date(2019, 12, 31, 23, 59, 0, 0, time.Local),
			wantOK: true,
		},
		{
			name:   "midnight rendered as 00 falls back to 12AM",
			token:  "01-01-20  00:15AM",
			want:   time.Date(2020, 1, 1, 0, 15, 0, 0, time.Local),
			wantOK: true,
		},
		{
			name:   "noon rendered as 00 falls back to 12PM",
			token:  "03-10-20  00:30PM",
			want:   time.Date(2020, 3, 10, 12, 30, 0, 0, time.Local),
			wantOK: true,
		},
		{
			name:   "hour out of range even after fallback",
			token:  "01-01-20  13:15AM",
			wantOK: false,
		},
		{
			name:   "invalid month",
			token:  "13-01-20  01:15AM",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.token)
			if ok != tt.wantOK {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.token, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	raw := "" +
		" Volume in drive C has no label.\r\n" +
		"\r\n" +
		"01-05-20  01:00AM                 1024 Launch.log\r\n" +
		"01-01-20  00:15AM                  512 Launch-backup-2020.01.01-00.15.00.log\r\n" +
		"01-04-20  10:20PM       <DIR>          backup\r\n" +
		"01-03-20  13:99PM                   10 broken.log\r\n" +
		"01-02-20  09:00AM                 2048 name with spaces.log\r\n"

	entries, warnings := Parse(raw)

	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if warnings[0].Token != "01-03-20  13:99PM" {
		t.Errorf("unexpected warning token %q", warnings[0].Token)
	}

	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d: %+v", len(entries), entries)
	}

	if entries[0].Name != "Launch.log" || entries[0].Size != 1024 {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Name != "Launch-backup-2020.01.01-00.15.00.log" {
		t.Errorf("fallback-parsed entry dropped or renamed: %+v", entries[1])
	}
	if !entries[1].ModifiedAt.Equal(time.Date(2020, 1, 1, 0, 15, 0, 0, time.Local)) {
		t.Errorf("unexpected fallback time %v", entries[1].ModifiedAt)
	}
	if !entries[2].IsDir || entries[2].Name != "backup" {
		t.Errorf("expected directory entry, got %+v", entries[2])
	}
	if entries[3].Name != "name with spaces.log" {
		t.Errorf("expected name with spaces, got %q", entries[3].Name)
	}
}

func TestParse_Empty(t *testing.T) {
	entries, warnings := Parse("")
	if len(entries) != 0 || len(warnings) != 0 {
		t.Errorf("expected nothing, got %v %v", entries, warnings)
	}
}

func TestParseTimestamp_HostZone(t *testing.T) {
	saved := time.Local
	t.Cleanup(func() { time.Local = saved })

	tests := []struct {
		name string
		zone *time.Location
	}{
		{name: "east of UTC", zone: time.FixedZone("UTC+3", 3*60*60)},
		{name: "west of UTC", zone: time.FixedZone("UTC-5", -5*60*60)},
		{name: "UTC", zone: time.UTC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			time.Local = tt.zone

			// A server on the same clock lists a file written ten minutes ago
			written := time.Now().Add(-10 * time.Minute).Truncate(time.Minute)
			token := written.In(tt.zone).Format(TimestampLayout)

			got, ok := ParseTimestamp(token)
			if !ok {
				t.Fatalf("ParseTimestamp(%q) failed", token)
			}
			if !got.Equal(written) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", token, got, written)
			}
			if !got.Before(time.Now()) {
				t.Errorf("a file written ten minutes ago parsed into the future: %v", got)
			}
		})
	}
}
