package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"five minutes", "00:05:00", 5 * time.Minute, false},
		{"one second", "00:00:01", time.Second, false},
		{"hours carry", "02:30:15", 2*time.Hour + 30*time.Minute + 15*time.Second, false},
		{"large hours allowed", "99:00:00", 99 * time.Hour, false},
		{"zero total", "00:00:00", 0, true},
		{"minutes overflow", "00:60:00", 0, true},
		{"seconds overflow", "00:00:60", 0, true},
		{"two fields", "05:00", 0, true},
		{"four fields", "00:00:05:00", 0, true},
		{"negative", "00:-5:00", 0, true},
		{"not numbers", "aa:bb:cc", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBadTimestamp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:05:00", FormatDuration(5*time.Minute))
	assert.Equal(t, "01:00:01", FormatDuration(time.Hour+time.Second))
	assert.Equal(t, "00:00:00", FormatDuration(0))
	// Sub-second remainder truncates.
	assert.Equal(t, "00:30:00", FormatDuration(30*time.Minute+40*time.Millisecond))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My Clip", "My Clip"},
		{`a/b\c:d"e*f?g<h>i|j`, "abcdefghij"},
		{"  padded  ", "padded"},
		{"///", ""},
		{"ep.01 [1080p]", "ep.01 [1080p]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in))
	}
}

func TestMatchRecordRequest(t *testing.T) {
	url, ts, name, ok := MatchRecordRequest("https://cdn.example.com/live.m3u8 00:30:00 My Show")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/live.m3u8", url)
	assert.Equal(t, "00:30:00", ts)
	assert.Equal(t, "My Show", name)

	url, ts, name, ok = MatchRecordRequest("http://host/v 01:00:00")
	require.True(t, ok)
	assert.Equal(t, "http://host/v", url)
	assert.Equal(t, "01:00:00", ts)
	assert.Empty(t, name)

	// Surrounding whitespace is tolerated.
	_, _, _, ok = MatchRecordRequest("  http://host/v 00:05:00 x \n")
	assert.True(t, ok)

	for _, bad := range []string{
		"http://host/v",
		"http://host/v 0:05:00",
		"http://host/v 00:05",
		"ftp://host/v 00:05:00",
		"watch http://host/v 00:05:00",
		"/help",
		"",
	} {
		_, _, _, ok := MatchRecordRequest(bad)
		assert.False(t, ok, "input %q", bad)
	}
}

func TestPhasePredicates(t *testing.T) {
	assert.True(t, PhaseAdmitted.Cancellable())
	assert.True(t, PhaseCapturing.Cancellable())
	for _, p := range []TaskPhase{PhaseTagging, PhaseThumbnailing, PhaseDelivering, PhaseDone, PhaseError, PhaseCancelled} {
		assert.False(t, p.Cancellable(), "phase %s", p)
	}

	for _, p := range []TaskPhase{PhaseDone, PhaseError, PhaseCancelled} {
		assert.True(t, p.Terminal(), "phase %s", p)
	}
	for _, p := range []TaskPhase{PhaseAdmitted, PhaseCapturing, PhaseTagging, PhaseThumbnailing, PhaseDelivering} {
		assert.False(t, p.Terminal(), "phase %s", p)
	}
}

func TestVerificationRecordFreshness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := VerificationRecord{
		UserID:    7,
		Token:     "tok",
		Verified:  true,
		ExpiresAt: now.Add(time.Hour).Unix(),
	}

	assert.True(t, rec.CurrentlyVerified(now))
	assert.Equal(t, time.Hour, rec.Remaining(now))

	// Freshness is a pure function of the clock; at the boundary it flips.
	assert.False(t, rec.CurrentlyVerified(now.Add(time.Hour)))
	assert.Equal(t, time.Duration(0), rec.Remaining(now.Add(2*time.Hour)))

	rec.Verified = false
	assert.False(t, rec.CurrentlyVerified(now))
}
