package logging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Line is one parsed run log line.
type Line struct {
	Time    time.Time
	Level   string
	Message string
	Fields  map[string]any
}

// ParseLine parses a line written by a logger from this package. Timestamps
// are interpreted in the local zone, as they are written.
func ParseLine(s string) (Line, error) {
	parts := strings.SplitN(strings.TrimRight(s, "\r\n"), Separator, 3)
	if len(parts) != 3 {
		return Line{}, fmt.Errorf("expected timestamp, level and message: %q", s)
	}
	ts, err := time.ParseInLocation(TimeLayout, parts[0], time.Local)
	if err != nil {
		return Line{}, fmt.Errorf("timestamp: %w", err)
	}

	line := Line{Time: ts, Level: parts[1], Message: parts[2]}
	if i := strings.LastIndex(parts[2], Separator+"{"); i >= 0 {
		fields := map[string]any{}
		if err := json.Unmarshal([]byte(parts[2][i+len(Separator):]), &fields); err == nil {
			line.Message = parts[2][:i]
			line.Fields = fields
		}
	}
	return line, nil
}
