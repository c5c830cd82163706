package trace

import "strings"

const (
	DataType25ms = "25ms"
	DataType50ms = "50ms"

	DataType5ms  = "5ms"
	DataType10ms = "10ms"

	hexUnit = "hex"
)

// ParseNumeric parses a primary periodic section, one record per line.
// Rows that the dump splits over two lines are merged by the view layer, not
// here.
func ParseNumeric(span, dataType string) []NumericSignal {
	lines := dataLines(span)
	if len(lines) < 2 {
		return nil
	}
	out := make([]NumericSignal, 0, len(lines)-1)
	for _, line := range lines[1:] {
		parts := strings.Fields(line)
		out = append(out, NumericSignal{
			SignalName: parts[0],
			HexValues:  append([]string{}, parts[1:]...),
			DataType:   dataType,
			Unit:       hexUnit,
		})
	}
	return out
}

// SamplingHz maps a driver sampling period to its rate in Hz.
func SamplingHz(rate string) int {
	switch rate {
	case DataType5ms:
		return 200
	case DataType10ms:
		return 100
	default:
		return 20
	}
}

// parseDriverNumeric skips the section title and the column index row, then
// reads each record from two physical lines: the first carries the name and
// the first half of the values, the second the rest, optionally repeating
// the name.
func parseDriverNumeric(span, rate string) []NumericSignal {
	lines := dataLines(span)
	var out []NumericSignal
	for i := 2; i+1 < len(lines); i += 2 {
		first := strings.Fields(lines[i])
		second := strings.Fields(lines[i+1])
		if len(first) < 2 {
			continue
		}
		name := strings.TrimPrefix(first[0], InvertMarker)
		if len(second) > 0 && strings.TrimPrefix(second[0], InvertMarker) == name {
			second = second[1:]
		}
		values := make([]string, 0, driverQuota)
		values = append(values, first[1:]...)
		values = append(values, second...)
		for len(values) < driverQuota {
			values = append(values, driverPadToken)
		}
		out = append(out, NumericSignal{
			SignalName: name,
			HexValues:  values[:driverQuota:driverQuota],
			DataType:   rate,
			SamplingHz: SamplingHz(rate),
			Unit:       hexUnit,
		})
	}
	return out
}
