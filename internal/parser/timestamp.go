package parser

import (
	"strings"
	"time"
)

// parseTimestamp extracts the leading timestamp of a log line. Two formats
// are recognized: ISO-8601 as written by journald and dpkg
// ("2025-12-04 12:32:10" or "2025-12-04T12:32:10..."), and classic syslog
// ("Dec  4 12:32:10", year assumed current). The zero time is returned when
// no timestamp can be read.
func parseTimestamp(line string) time.Time {
	if line == "" {
		return time.Time{}
	}

	if line[0] >= '0' && line[0] <= '9' {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.Contains(fields[0], "T") {
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
				if ts, err := time.ParseInLocation(layout, fields[0], time.Local); err == nil {
					return ts
				}
			}
		}
		if len(fields) >= 2 {
			if ts, err := time.ParseInLocation("2006-01-02 15:04:05", fields[0]+" "+fields[1], time.Local); err == nil {
				return ts
			}
		}
		return time.Time{}
	}

	// Classic syslog: "Mon _2 15:04:05" with no year.
	if len(line) < 15 {
		return time.Time{}
	}
	ts, err := time.ParseInLocation("Jan _2 15:04:05", line[:15], time.Local)
	if err != nil {
		return time.Time{}
	}
	return ts.AddDate(time.Now().Year(), 0, 0)
}
