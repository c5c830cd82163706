// Package view shapes a parsed trace into the rows the front end and the
// exporters show, with descriptions resolved against a config index.
package view

import (
	"regexp"
	"sort"
	"strings"

	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/trace"
)

const (
	Quota25ms = 32
	Quota50ms = 64

	pad25ms = "00000000"
	pad50ms = "00"
)

var unitRe = regexp.MustCompile(`\[([^\]]+)\]`)

type NumericRow struct {
	SignalName  string   `json:"signalName"`
	Description string   `json:"description"`
	HexValues   []string `json:"hexValues"`
	Unit        string   `json:"unit"`
}

// BitRows returns bits with Description resolved by position.
func BitRows(bits []trace.BitSignal, idx *auxtable.Index) []trace.BitSignal {
	out := make([]trace.BitSignal, len(bits))
	for i, b := range bits {
		b.Description = auxtable.Resolve(idx, b.SignalName, i, "")
		out[i] = b
	}
	return out
}

// Merge25ms drops the leading column index record and folds every signal
// with the first later record of the same name into one row of 32 values.
func Merge25ms(signals []trace.NumericSignal, idx *auxtable.Index) []NumericRow {
	rows := merge(signals, Quota25ms, pad25ms)
	for i := range rows {
		rows[i].Description = auxtable.Resolve(idx, rows[i].SignalName, auxtable.NoOrder, auxtable.Table25ms)
	}
	return rows
}

// Merge50ms is Merge25ms for the 50ms section with 64 values per row. Unit
// is taken from the bracketed part of the description.
func Merge50ms(signals []trace.NumericSignal, idx *auxtable.Index) []NumericRow {
	rows := merge(signals, Quota50ms, pad50ms)
	for i := range rows {
		desc := auxtable.Resolve(idx, rows[i].SignalName, auxtable.NoOrder, auxtable.TablePeriodic)
		rows[i].Description = desc
		rows[i].Unit = UnitOf(desc)
	}
	return rows
}

func merge(signals []trace.NumericSignal, quota int, padToken string) []NumericRow {
	if len(signals) < 2 {
		return nil
	}
	signals = signals[1:]
	seen := make(map[string]bool, len(signals))
	out := make([]NumericRow, 0, len(signals))
	for i, cur := range signals {
		if seen[cur.SignalName] {
			continue
		}
		seen[cur.SignalName] = true

		values := make([]string, 0, quota)
		values = append(values, cur.HexValues...)
		for _, next := range signals[i+1:] {
			if next.SignalName == cur.SignalName {
				values = append(values, next.HexValues...)
				break
			}
		}
		out = append(out, NumericRow{
			SignalName: cur.SignalName,
			HexValues:  fit(values, quota, padToken),
			Unit:       cur.Unit,
		})
	}
	return out
}

func fit(values []string, n int, padToken string) []string {
	if len(values) >= n {
		return values[:n:n]
	}
	for len(values) < n {
		values = append(values, padToken)
	}
	return values
}

// UnitOf returns the text between the first pair of square brackets in desc.
func UnitOf(desc string) string {
	if m := unitRe.FindStringSubmatch(desc); m != nil {
		return m[1]
	}
	return ""
}

// SnapshotRows resolves entries against the snapshot table and orders them
// by OrderNo.
func SnapshotRows(entries []trace.SnapshotEntry, idx *auxtable.Index) []trace.SnapshotEntry {
	out := make([]trace.SnapshotEntry, len(entries))
	for i, e := range entries {
		e.Description = auxtable.Resolve(idx, e.Name, e.OrderNo, auxtable.TableSnapshot)
		out[i] = e
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderNo < out[j].OrderNo
	})
	return out
}

type ActiveFilter int

const (
	AnyState ActiveFilter = iota
	OnlyActive
	OnlyInactive
)

// Query narrows a view. Empty fields match everything.
type Query struct {
	Term string
	// Channel keeps only rows with exactly this signal name.
	Channel string
	// HidePrefix drops rows whose name starts with it, ignoring case.
	HidePrefix string
	State      ActiveFilter
}

func (q Query) match(name, desc string) bool {
	if q.Channel != "" && name != q.Channel {
		return false
	}
	lname := strings.ToLower(name)
	if q.HidePrefix != "" && strings.HasPrefix(lname, strings.ToLower(q.HidePrefix)) {
		return false
	}
	if q.Term == "" {
		return true
	}
	term := strings.ToLower(q.Term)
	return strings.Contains(lname, term) || strings.Contains(strings.ToLower(desc), term)
}

func FilterBits(rows []trace.BitSignal, q Query) []trace.BitSignal {
	var out []trace.BitSignal
	for _, r := range rows {
		switch {
		case q.State == OnlyActive && !r.IsActive:
			continue
		case q.State == OnlyInactive && r.IsActive:
			continue
		}
		if q.match(r.SignalName, r.Description) {
			out = append(out, r)
		}
	}
	return out
}

func FilterNumeric(rows []NumericRow, q Query) []NumericRow {
	var out []NumericRow
	for _, r := range rows {
		if q.match(r.SignalName, r.Description) {
			out = append(out, r)
		}
	}
	return out
}

func FilterSnapshot(rows []trace.SnapshotEntry, q Query) []trace.SnapshotEntry {
	var out []trace.SnapshotEntry
	for _, r := range rows {
		if q.match(r.Name, r.Description) {
			out = append(out, r)
		}
	}
	return out
}

// Channels lists the distinct signal names of rows, sorted.
func Channels(rows []NumericRow) []string {
	seen := make(map[string]bool, len(rows))
	var out []string
	for _, r := range rows {
		if !seen[r.SignalName] {
			seen[r.SignalName] = true
			out = append(out, r.SignalName)
		}
	}
	sort.Strings(out)
	return out
}
