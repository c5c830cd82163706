package trace

import (
	"strings"
	"time"
)

const noControlInfo = "无控制信息"

// parseControl turns the control span into an opaque key/value bag. Lines of
// the form "key: value", "key：value" or "key=value" become entries of their
// own; the raw span is always kept.
func parseControl(span string, now time.Time) map[string]string {
	info := map[string]string{
		"timestamp": now.Format(time.RFC3339),
		"version":   "1.0",
		"deviceId":  "unknown",
		"raw":       span,
	}
	lines := dataLines(span)
	summary := noControlInfo
	if len(lines) > 1 {
		summary = strings.Join(lines[1:min(len(lines), 5)], "\n")
	}
	info["summary"] = summary
	if len(lines) < 2 {
		return info
	}
	for _, line := range lines[1:] {
		k, v, ok := cutPair(line)
		if !ok {
			continue
		}
		if _, exists := info[k]; !exists {
			info[k] = v
		}
	}
	return info
}

func cutPair(line string) (string, string, bool) {
	for _, sep := range []string{"：", ":", "="} {
		if k, v, ok := strings.Cut(line, sep); ok {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k == "" {
				return "", "", false
			}
			return k, v, true
		}
	}
	return "", "", false
}
