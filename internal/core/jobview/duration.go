package jobview

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders a millisecond duration most significant unit first,
// e.g. "03h 25m 49s". Sub-second remainders only show below ten seconds.
// Negative input is treated as zero.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	minutes := (ms / 60_000) % 60
	seconds := (ms / 1000) % 60

	out := ""
	if hours <= 0 && minutes <= 0 && seconds < 10 {
		out = strconv.FormatInt(ms-1000*seconds, 10) + "ms"
	}
	if seconds > 0 {
		out = fmt.Sprintf("%02ds %s", seconds, out)
	}
	if minutes > 0 {
		out = fmt.Sprintf("%02dm %s", minutes, out)
	}
	if hours > 0 {
		out = fmt.Sprintf("%02dh %s", hours, out)
	}
	return strings.TrimSpace(out)
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseTimestamp reads a reporter timestamp: a datetime string or a unix
// epoch number (seconds, or milliseconds when implausibly large for seconds).
func ParseTimestamp(v *Value) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	switch v.Kind {
	case KindString:
		s := strings.TrimSpace(v.Text)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if f, ok := v.Float(); ok {
			return epoch(f), true
		}
	case KindNumber:
		if f, ok := v.Float(); ok {
			return epoch(f), true
		}
	}
	return time.Time{}, false
}

func epoch(f float64) time.Time {
	if f > 1e11 {
		return time.UnixMilli(int64(f))
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Elapsed formats the time between start and end. A missing end means the
// phase is still running and is measured against clock.
func Elapsed(start, end *Value, clock Clock) (string, bool) {
	from, ok := ParseTimestamp(start)
	if !ok {
		return "", false
	}
	var to time.Time
	if end == nil {
		to = clock.Now()
	} else if to, ok = ParseTimestamp(end); !ok {
		return "", false
	}
	return FormatDuration(to.Sub(from).Milliseconds()), true
}
