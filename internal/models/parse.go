package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadTimestamp = errors.New("timestamp must be in hh:mm:ss format")

	unsafeChars = regexp.MustCompile(`[\\/:"*?<>|]+`)

	// A record request is exactly: URL, hh:mm:ss, optional filename.
	recordRequest = regexp.MustCompile(`^(https?://\S+) (\d{2}:\d{2}:\d{2})(?: (.+))?$`)
)

// ParseDuration parses an hh:mm:ss timestamp into a duration. Minutes and
// seconds must be below 60 and the total must be positive.
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, ErrBadTimestamp
	}

	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, ErrBadTimestamp
		}
		vals[i] = n
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, ErrBadTimestamp
	}

	total := vals[0]*3600 + vals[1]*60 + vals[2]
	if total == 0 {
		return 0, ErrBadTimestamp
	}
	return time.Duration(total) * time.Second, nil
}

// FormatDuration renders a duration as hh:mm:ss.
func FormatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// SanitizeFilename strips path-unsafe characters from a display filename.
func SanitizeFilename(name string) string {
	return strings.TrimSpace(unsafeChars.ReplaceAllString(name, ""))
}

// MatchRecordRequest recognizes the implicit record trigger: a message that
// is exactly a URL token, an hh:mm:ss token and an optional trailing
// filename.
func MatchRecordRequest(text string) (url, timestamp, filename string, ok bool) {
	m := recordRequest.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}
