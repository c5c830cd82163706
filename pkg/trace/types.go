package trace

import (
	"fmt"
	"strings"
	"time"
)

const (
	InvertMarker = "*-"

	bitPadToken    = "00000000"
	driverPadToken = "0000"

	bitTokens    = 4
	driverQuota  = 32
	vectorLength = 32
)

const (
	Category       = "snapshot"
	DriverCategory = "driver_snapshot"
)

// Document is the parsed form of one trace file. It is never modified after
// Parse returns.
type Document struct {
	FileName      string            `json:"fileName"`
	FileSize      int64             `json:"fileSize"`
	LoadedAt      time.Time         `json:"loadedAt"`
	ParseDuration time.Duration     `json:"parseDuration"`
	Control       map[string]string `json:"controlInfo"`
	Bits          []BitSignal       `json:"bitSignals"`
	PeriodicA     []NumericSignal   `json:"periodicA"`
	PeriodicB     []NumericSignal   `json:"periodicB"`
	Snapshot      []SnapshotEntry   `json:"snapshotEntries"`
	Driver        *DriverTrace      `json:"driverTrace,omitempty"`
}

type BitSignal struct {
	OrderNo      int    `json:"orderNo"`
	SignalName   string `json:"signalName"`
	InvertFlag   string `json:"invertFlag,omitempty"`
	HexValue     string `json:"hexValue"`
	IsActive     bool   `json:"isActive"`
	Description  string `json:"description"`
	SamplingRate string `json:"samplingRate,omitempty"`
}

// Inverted reports whether the signal carried the inversion marker.
func (b BitSignal) Inverted() bool {
	return b.InvertFlag != ""
}

// Vector returns HexValue as exactly 32 hex characters, zero filled on the right.
func (b BitSignal) Vector() string {
	v := strings.Join(strings.Fields(b.HexValue), "")
	if len(v) >= vectorLength {
		return v[:vectorLength]
	}
	return v + strings.Repeat("0", vectorLength-len(v))
}

// Bits splits Vector into its 32 one-character cells.
func (b BitSignal) Bits() []string {
	v := b.Vector()
	out := make([]string, vectorLength)
	for i := range out {
		out[i] = v[i : i+1]
	}
	return out
}

type NumericSignal struct {
	SignalName string   `json:"signalName"`
	HexValues  []string `json:"hexValues"`
	DataType   string   `json:"dataType"`
	SamplingHz int      `json:"samplingRate,omitempty"`
	Unit       string   `json:"unit,omitempty"`
}

type SnapshotEntry struct {
	OrderNo     int    `json:"orderNo"`
	Name        string `json:"name"`
	Data        string `json:"data"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
}

type DriverTrace struct {
	Timestamp  string          `json:"timestamp"`
	DeviceInfo string          `json:"deviceInfo"`
	Bit5ms     []BitSignal     `json:"bit5msData"`
	Bit10ms    []BitSignal     `json:"bit10msData"`
	Bit50ms    []BitSignal     `json:"bit50msData"`
	Numeric5   []NumericSignal `json:"numeric5msData"`
	Numeric10  []NumericSignal `json:"numeric10msData"`
	Numeric50  []NumericSignal `json:"numeric50msData"`
	Snapshot   []SnapshotEntry `json:"snapshotData"`
}

// Bits returns the bit signals of all three rates, 5ms first.
func (d *DriverTrace) Bits() []BitSignal {
	out := make([]BitSignal, 0, len(d.Bit5ms)+len(d.Bit10ms)+len(d.Bit50ms))
	out = append(out, d.Bit5ms...)
	out = append(out, d.Bit10ms...)
	return append(out, d.Bit50ms...)
}

func (d *DriverTrace) Numeric() []NumericSignal {
	out := make([]NumericSignal, 0, len(d.Numeric5)+len(d.Numeric10)+len(d.Numeric50))
	out = append(out, d.Numeric5...)
	out = append(out, d.Numeric10...)
	return append(out, d.Numeric50...)
}

type SectionKind string

const (
	SectionBit            SectionKind = "bit"
	SectionPeriodicA      SectionKind = "25ms"
	SectionPeriodicB      SectionKind = "50ms"
	SectionSnapshot       SectionKind = "snapshot"
	SectionDriverBit5     SectionKind = "driver-bit-5ms"
	SectionDriverBit10    SectionKind = "driver-bit-10ms"
	SectionDriverBit50    SectionKind = "driver-bit-50ms"
	SectionDriverNum5     SectionKind = "driver-numeric-5ms"
	SectionDriverNum10    SectionKind = "driver-numeric-10ms"
	SectionDriverNum50    SectionKind = "driver-numeric-50ms"
	SectionDriverSnapshot SectionKind = "driver-snapshot"
)

var SectionKinds = []SectionKind{
	SectionBit,
	SectionPeriodicA,
	SectionPeriodicB,
	SectionSnapshot,
	SectionDriverBit5,
	SectionDriverBit10,
	SectionDriverBit50,
	SectionDriverNum5,
	SectionDriverNum10,
	SectionDriverNum50,
	SectionDriverSnapshot,
}

// Section returns the records of one section. Driver sections of a document
// without a driver trace are empty, not an error.
func (d *Document) Section(kind SectionKind) (any, error) {
	drv := d.Driver
	if drv == nil {
		drv = &DriverTrace{}
	}
	switch kind {
	case SectionBit:
		return d.Bits, nil
	case SectionPeriodicA:
		return d.PeriodicA, nil
	case SectionPeriodicB:
		return d.PeriodicB, nil
	case SectionSnapshot:
		return d.Snapshot, nil
	case SectionDriverBit5:
		return drv.Bit5ms, nil
	case SectionDriverBit10:
		return drv.Bit10ms, nil
	case SectionDriverBit50:
		return drv.Bit50ms, nil
	case SectionDriverNum5:
		return drv.Numeric5, nil
	case SectionDriverNum10:
		return drv.Numeric10, nil
	case SectionDriverNum50:
		return drv.Numeric50, nil
	case SectionDriverSnapshot:
		return drv.Snapshot, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSection, kind)
}

// SectionLen is the number of records in one section, 0 for unknown kinds.
func (d *Document) SectionLen(kind SectionKind) int {
	recs, err := d.Section(kind)
	if err != nil {
		return 0
	}
	switch v := recs.(type) {
	case []BitSignal:
		return len(v)
	case []NumericSignal:
		return len(v)
	case []SnapshotEntry:
		return len(v)
	}
	return 0
}
