package util

import (
    "fmt"
    "strconv"
    "strings"
    "time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0), true
    }
    return time.Time{}, false
}

// ParseClock parses a time of day such as "6:25:06" or "13:00" into an
// offset from midnight. "24:00" is accepted as the end of the day.
func ParseClock(s string) (time.Duration, error) {
    parts := strings.Split(strings.TrimSpace(s), ":")
    if len(parts) < 2 || len(parts) > 3 {
        return 0, fmt.Errorf("clock %q: want h:mm or h:mm:ss", s)
    }
    var v [3]int
    for i, p := range parts {
        n, err := strconv.Atoi(p)
        if err != nil || n < 0 {
            return 0, fmt.Errorf("clock %q: bad field %q", s, p)
        }
        v[i] = n
    }
    h, m, sec := v[0], v[1], v[2]
    if m > 59 || sec > 59 || h > 24 || (h == 24 && (m > 0 || sec > 0)) {
        return 0, fmt.Errorf("clock %q: out of range", s)
    }
    return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(d time.Duration) string {
    d = d.Truncate(time.Second)
    return fmt.Sprintf("%d:%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute), int(d%time.Minute/time.Second))
}
