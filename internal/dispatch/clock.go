package dispatch

import (
    "fmt"
    "strings"
)

// Clock is a time of day in minutes since midnight. All shift and window
// arithmetic runs on Clock values; dates never enter the core.
type Clock int

// String formats the clock as HH:MM.
func (c Clock) String() string {
    return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// ParseClock parses "HH:MM". Callers are expected to have validated the
// format upstream; a malformed value is a contract violation and fails
// the whole run rather than being papered over.
func ParseClock(s string) (Clock, error) {
    var h, m int
    if _, err := fmt.Sscanf(s, "%2d:%2d", &h, &m); err != nil {
        return 0, fmt.Errorf("parse clock %q: %w", s, err)
    }
    if h < 0 || h > 23 || m < 0 || m > 59 {
        return 0, fmt.Errorf("parse clock %q: out of range", s)
    }
    return Clock(h*60 + m), nil
}

// ParseWindow parses a "HH:MM-HH:MM" span into its start and end clocks.
func ParseWindow(s string) (start, end Clock, err error) {
    from, to, ok := strings.Cut(s, "-")
    if !ok {
        return 0, 0, fmt.Errorf("parse window %q: missing separator", s)
    }
    if start, err = ParseClock(from); err != nil {
        return 0, 0, err
    }
    if end, err = ParseClock(to); err != nil {
        return 0, 0, err
    }
    return start, end, nil
}
