package trace

import "strings"

// Section keywords as they appear in the dump.
const (
	KeywordControl   = "控制"
	KeywordBit       = "比特"
	KeywordPeriodicA = "数值25ms"
	KeywordPeriodicB = "数值50ms"
	KeywordSnapshot  = "快照"

	KeywordDriver    = "驱动"
	KeywordDriverEnd = "管理"

	KeywordBit5ms      = "比特5ms"
	KeywordBit10ms     = "比特10ms"
	KeywordBit50ms     = "比特50ms"
	KeywordNumeric5ms  = "数值5ms"
	KeywordNumeric10ms = "数值10ms"
	KeywordNumeric50ms = "数值50ms"
)

// PrimaryChain is the priority order of the top level sections.
var PrimaryChain = []string{
	KeywordControl,
	KeywordBit,
	KeywordPeriodicA,
	KeywordPeriodicB,
	KeywordSnapshot,
}

// DriverChain is the priority order inside the driver region.
var DriverChain = []string{
	KeywordBit5ms,
	KeywordBit10ms,
	KeywordBit50ms,
	KeywordNumeric5ms,
	KeywordNumeric10ms,
	KeywordNumeric50ms,
	KeywordSnapshot,
}

// Split cuts text into one span per keyword of chain. A span starts at the
// first occurrence of its keyword and runs until the nearest following
// occurrence of a later keyword in chain or of any terminator. Keywords of
// the same or higher priority inside a span do not end it. A missing keyword
// yields an empty span.
func Split(text string, chain []string, terminators ...string) []string {
	spans := make([]string, len(chain))
	for i, kw := range chain {
		start := strings.Index(text, kw)
		if start < 0 {
			continue
		}
		body := start + len(kw)
		end := len(text)
		stops := append(append([]string{}, chain[i+1:]...), terminators...)
		for _, stop := range stops {
			if n := strings.Index(text[body:], stop); n >= 0 && body+n < end {
				end = body + n
			}
		}
		spans[i] = text[start:end]
	}
	return spans
}

// DetectDriver returns the offset of the driver region. It starts at the
// first driver keyword whose nearest following section keyword is a driver
// sub section, so the word appearing in control prose is skipped.
func DetectDriver(text string) (int, bool) {
	for off := 0; off < len(text); {
		n := strings.Index(text[off:], KeywordDriver)
		if n < 0 {
			break
		}
		start := off + n
		off = start + len(KeywordDriver)
		if opensDriver(text[off:]) {
			return start, true
		}
	}
	return 0, false
}

// opensDriver reports whether the first section keyword in rest belongs to
// the driver region. On a shared offset the longer keyword wins, and
// 数值50ms counts as a driver keyword.
func opensDriver(rest string) bool {
	subs := DriverChain[:len(DriverChain)-1]
	best, bestLen, driver := -1, 0, false
	consider := func(kw string, isDriver bool) {
		i := strings.Index(rest, kw)
		if i < 0 {
			return
		}
		if best < 0 || i < best || (i == best && len(kw) > bestLen) || (i == best && len(kw) == bestLen && isDriver) {
			best, bestLen, driver = i, len(kw), isDriver
		}
	}
	for _, kw := range PrimaryChain {
		consider(kw, false)
	}
	for _, kw := range subs {
		consider(kw, true)
	}
	return driver
}

type primarySections struct {
	control, bit, periodicA, periodicB, snapshot string
}

func splitPrimary(text string) primarySections {
	s := Split(text, PrimaryChain)
	return primarySections{
		control:   s[0],
		bit:       s[1],
		periodicA: s[2],
		periodicB: s[3],
		snapshot:  s[4],
	}
}

type driverSections struct {
	bit5, bit10, bit50 string
	num5, num10, num50 string
	snapshot           string
}

func splitDriver(region string) driverSections {
	s := Split(region, DriverChain, KeywordDriverEnd)
	return driverSections{
		bit5:     s[0],
		bit10:    s[1],
		bit50:    s[2],
		num5:     s[3],
		num10:    s[4],
		num50:    s[5],
		snapshot: s[6],
	}
}

// dataLines returns the non blank lines of a span, trimmed.
func dataLines(span string) []string {
	var out []string
	for _, line := range strings.Split(span, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
