package trace

import "strings"

// ParseSnapshot reads name/value pairs, any number per line. A trailing
// unpaired token is dropped. Every entry gets the same timestamp.
func ParseSnapshot(span, category, timestamp string) []SnapshotEntry {
	lines := dataLines(span)
	if len(lines) < 2 {
		return nil
	}
	var out []SnapshotEntry
	for _, line := range lines[1:] {
		parts := strings.Fields(line)
		for i := 0; i+1 < len(parts); i += 2 {
			out = append(out, SnapshotEntry{
				OrderNo:   len(out),
				Name:      parts[i],
				Data:      parts[i+1],
				Category:  category,
				Timestamp: timestamp,
			})
		}
	}
	return out
}
