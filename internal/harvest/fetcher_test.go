package harvest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/testsupport"
)

func TestParseOpenTime(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "standard header",
			lines: []string{"Log: Log file open, 01/01/20 00:00:00"},
			want:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "day before month",
			lines: []string{"Log: Log file open, 25/12/19 18:30:05", "Init: engine"},
			want:  time.Date(2019, 12, 25, 18, 30, 5, 0, time.UTC),
		},
		{
			name:  "surrounding whitespace",
			lines: []string{"  Log: Log file open, 02/03/20 04:05:06  "},
			want:  time.Date(2020, 3, 2, 4, 5, 6, 0, time.UTC),
		},
		{
			name:  "unpadded fields",
			lines: []string{"Log: Log file open, 1/1/20 0:00:00"},
			want:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "mixed padding",
			lines: []string{"Log: Log file open, 5/11/20 9:07:03"},
			want:  time.Date(2020, 11, 5, 9, 7, 3, 0, time.UTC),
		},
		{name: "no lines", lines: nil, wantErr: true},
		{name: "empty first line", lines: []string{""}, wantErr: true},
		{name: "missing delimiter", lines: []string{"Log: Log file open 01/01/20 00:00:00"}, wantErr: true},
		{name: "garbled time", lines: []string{"Log: Log file open, yesterday"}, wantErr: true},
		{name: "month out of range", lines: []string{"Log: Log file open, 01/13/20 00:00:00"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOpenTime("Launch.log", tt.lines)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOpenTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var mhe *MalformedHeaderError
				if !errors.As(err, &mhe) || !errors.Is(err, ErrMalformedHeader) {
					t.Errorf("expected MalformedHeaderError, got %T %v", err, err)
				}
				return
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseOpenTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitLines_Latin1(t *testing.T) {
	raw := []byte("Log: Log file open, 01/01/20 00:00:00\r\nplayer \xe9\xff\x80\r\ntail")

	lines, err := SplitLines(raw)
	if err != nil {
		t.Fatalf("SplitLines() error = %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[1] != "player éÿ\u0080" {
		t.Errorf("bytes not preserved as latin-1 runes: %q", lines[1])
	}
}

func TestSplitLines_KeepsBareLF(t *testing.T) {
	lines, err := SplitLines([]byte("a\nb\r\nc"))
	if err != nil {
		t.Fatalf("SplitLines() error = %v", err)
	}
	if len(lines) != 2 || lines[0] != "a\nb" {
		t.Errorf("expected split on CR-LF only, got %q", lines)
	}
}

func TestFetcher_Fetch(t *testing.T) {
	session := testsupport.NewFakeSession()
	session.PutLog("Launch.log", "Log: Log file open, 01/01/20 00:00:00", "Init: one", "Init: two")

	fetched, err := NewFetcher(session).Fetch(context.Background(), "Launch.log")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(fetched.Lines) != 3 {
		t.Errorf("expected 3 lines, got %d", len(fetched.Lines))
	}
	if !fetched.OpenTime.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected open time %v", fetched.OpenTime)
	}
	if !session.Has("/", "Launch.log") {
		t.Error("fetch must not remove the remote file")
	}
}

func TestFetcher_RetrieveError(t *testing.T) {
	session := testsupport.NewFakeSession()

	_, err := NewFetcher(session).Fetch(context.Background(), "missing.log")
	if !errors.Is(err, testsupport.ErrNoSuchFile) {
		t.Errorf("expected transport error to propagate, got %v", err)
	}
}
