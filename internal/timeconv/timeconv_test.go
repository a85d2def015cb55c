package timeconv

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimezone(t *testing.T) {
	tests := []struct {
		in      string
		want    Timezone
		wantErr bool
	}{
		{"UTC", UTC, false},
		{"UTC+8", UTC8, false},
		{"Asia/Shanghai", UTC, true},
		{"utc", UTC, true},
		{"", UTC, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimezone(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimezone) {
					t.Fatalf("ParseTimezone(%q) err = %v, want ErrInvalidTimezone", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimezone(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseTimezone(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	utc, err := StrToUTC("2018-08-15 16:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if !utc.Equal(time.Date(2018, 8, 15, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("StrToUTC = %v", utc)
	}

	local, err := UTCToLocal("2018-08-15 16:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if local.Hour() != 0 || local.Day() != 16 {
		t.Errorf("UTCToLocal wall clock = %v, want 2018-08-16 00:00 +08", local)
	}
	if !local.Equal(utc) {
		t.Errorf("UTCToLocal changed the instant: %v != %v", local, utc)
	}

	back, err := LocalToUTC("2018-08-16 00:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(utc) || back.Location() != time.UTC {
		t.Errorf("LocalToUTC = %v, want %v", back, utc)
	}

	if _, err := StrToUTC("15/08/2018 16:00"); err == nil {
		t.Error("expected parse error for foreign layout")
	}
}

func TestTimezoneUnmarshalText(t *testing.T) {
	var tz Timezone
	if err := tz.UnmarshalText([]byte("UTC+8")); err != nil {
		t.Fatal(err)
	}
	if tz != UTC8 {
		t.Errorf("tz = %v, want UTC+8", tz)
	}
	if err := tz.UnmarshalText([]byte("CET")); !errors.Is(err, ErrInvalidTimezone) {
		t.Errorf("err = %v, want ErrInvalidTimezone", err)
	}
}
