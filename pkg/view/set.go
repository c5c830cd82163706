package view

import (
	"fmt"

	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/trace"
)

type Name string

const (
	Bit            Name = "bit"
	Data25ms       Name = "25ms"
	Data50ms       Name = "50ms"
	Snapshot       Name = "snapshot"
	DriverBit      Name = "driver-bit"
	DriverNumeric  Name = "driver-numeric"
	DriverSnapshot Name = "driver-snapshot"
)

var Names = []Name{Bit, Data25ms, Data50ms, Snapshot, DriverBit, DriverNumeric, DriverSnapshot}

func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Set holds every view of one document.
type Set struct {
	Bits           []trace.BitSignal     `json:"bits"`
	Data25ms       []NumericRow          `json:"data25ms"`
	Data50ms       []NumericRow          `json:"data50ms"`
	Snapshot       []trace.SnapshotEntry `json:"snapshot"`
	DriverBits     []trace.BitSignal     `json:"driverBits"`
	DriverNumeric  []trace.NumericSignal `json:"driverNumeric"`
	DriverSnapshot []trace.SnapshotEntry `json:"driverSnapshot"`
}

// Build derives all views of doc. Driver rows are not resolved, the config
// carries no driver tables.
func Build(doc *trace.Document, idx *auxtable.Index) *Set {
	s := &Set{
		Bits:     BitRows(doc.Bits, idx),
		Data25ms: Merge25ms(doc.PeriodicA, idx),
		Data50ms: Merge50ms(doc.PeriodicB, idx),
		Snapshot: SnapshotRows(doc.Snapshot, idx),
	}
	if d := doc.Driver; d != nil {
		s.DriverBits = d.Bits()
		s.DriverNumeric = d.Numeric()
		s.DriverSnapshot = d.Snapshot
	}
	return s
}

// Len returns the number of rows in view n.
func (s *Set) Len(n Name) int {
	switch n {
	case Bit:
		return len(s.Bits)
	case Data25ms:
		return len(s.Data25ms)
	case Data50ms:
		return len(s.Data50ms)
	case Snapshot:
		return len(s.Snapshot)
	case DriverBit:
		return len(s.DriverBits)
	case DriverNumeric:
		return len(s.DriverNumeric)
	case DriverSnapshot:
		return len(s.DriverSnapshot)
	}
	return 0
}
