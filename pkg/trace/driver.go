package trace

import (
	"fmt"
	"regexp"
	"time"
)

const driverDeviceInfo = "driver"

var driverStampRe = regexp.MustCompile(`(\d{4}/\d{1,2}/\d{1,2}\s+星期[一二三四五六日]\s+[上下]午\s+\d{1,2}:\d{2}:\d{2})`)

// ParseDriver parses the driver region of text. It returns ErrDriverNotFound
// when text has no driver region.
func ParseDriver(text string, now time.Time) (*DriverTrace, error) {
	start, ok := DetectDriver(text)
	if !ok {
		return nil, ErrDriverNotFound
	}
	return parseDriverRegion(text[start:], now), nil
}

func parseDriverRegion(region string, now time.Time) *DriverTrace {
	s := splitDriver(region)
	return &DriverTrace{
		Timestamp:  driverTimestamp(region, now),
		DeviceInfo: driverDeviceInfo,
		Bit5ms:     parseBits(s.bit5, DataType5ms),
		Bit10ms:    parseBits(s.bit10, DataType10ms),
		Bit50ms:    parseBits(s.bit50, DataType50ms),
		Numeric5:   parseDriverNumeric(s.num5, DataType5ms),
		Numeric10:  parseDriverNumeric(s.num10, DataType10ms),
		Numeric50:  parseDriverNumeric(s.num50, DataType50ms),
		Snapshot:   ParseSnapshot(s.snapshot, DriverCategory, now.Format(time.RFC3339)),
	}
}

func driverTimestamp(region string, now time.Time) string {
	if m := driverStampRe.FindStringSubmatch(region); m != nil {
		return m[1]
	}
	return now.Format(time.RFC3339)
}

// safeParseDriver recovers from a panic in the driver parsers so a broken
// driver region never costs the rest of the document.
func safeParseDriver(region string, now time.Time) (drv *DriverTrace, err error) {
	defer func() {
		if r := recover(); r != nil {
			drv, err = nil, fmt.Errorf("driver parse: %v", r)
		}
	}()
	return parseDriverRegion(region, now), nil
}
