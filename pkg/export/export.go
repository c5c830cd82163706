// Package export writes views as CSV files or as one Excel workbook.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/roffe/elevtrace/pkg/trace"
	"github.com/roffe/elevtrace/pkg/view"
)

const (
	statusInverted    = "反转"
	statusNotInverted = "不反转"
	statusActive      = "激活"
	statusInactive    = "未激活"
	noDescription     = "-"
)

// FileName returns the download name of view n.
func FileName(n view.Name, now time.Time) string {
	switch n {
	case view.Bit:
		return "bit_data.csv"
	case view.Data25ms:
		return "25ms数据_" + now.UTC().Format("2006-01-02") + ".csv"
	case view.Data50ms:
		return "50ms_data.csv"
	case view.Snapshot:
		return "快照数据_" + now.Format("20060102_150405") + ".csv"
	case view.DriverBit:
		return "driver_bit_data.csv"
	case view.DriverNumeric:
		return "driver_numeric_data.csv"
	case view.DriverSnapshot:
		return "driver_snapshot_data.csv"
	}
	return string(n) + ".csv"
}

// WriteCSV writes view n of s, header first.
func WriteCSV(w io.Writer, s *view.Set, n view.Name) error {
	records, err := Records(s, n)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write %s csv: %w", n, err)
	}
	return nil
}

// Records renders view n of s as rows of cells, header first.
func Records(s *view.Set, n view.Name) ([][]string, error) {
	switch n {
	case view.Bit:
		return bitRecords(s.Bits), nil
	case view.Data25ms:
		return numericRecords(s.Data25ms, view.Quota25ms, "数据%d", "00000000"), nil
	case view.Data50ms:
		return numericRecords(s.Data50ms, view.Quota50ms, "#%d", ""), nil
	case view.Snapshot:
		return snapshotRecords(s.Snapshot), nil
	case view.DriverBit:
		return driverBitRecords(s.DriverBits), nil
	case view.DriverNumeric:
		return driverNumericRecords(s.DriverNumeric), nil
	case view.DriverSnapshot:
		return driverSnapshotRecords(s.DriverSnapshot), nil
	}
	return nil, fmt.Errorf("unknown view %q", n)
}

func numbered(format string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(format, i+1)
	}
	return out
}

func bitRecords(bits []trace.BitSignal) [][]string {
	header := []string{"NO顺序", "信号名", "信号解释"}
	header = append(header, numbered("位%d", 32)...)
	header = append(header, "状态")

	out := [][]string{header}
	for _, b := range bits {
		name := b.SignalName
		if b.InvertFlag != "" {
			name += " " + b.InvertFlag
		}
		desc := b.Description
		if desc == "" {
			desc = noDescription
		}
		status := statusNotInverted
		if b.IsActive {
			status = statusInverted
		}
		row := []string{strconv.Itoa(b.OrderNo), name, desc}
		row = append(row, b.Bits()...)
		out = append(out, append(row, status))
	}
	return out
}

func numericRecords(rows []view.NumericRow, quota int, column, padToken string) [][]string {
	header := []string{"信号名称", "信号解释"}
	header = append(header, numbered(column, quota)...)
	header = append(header, "单位")

	out := [][]string{header}
	for _, r := range rows {
		row := []string{r.SignalName, r.Description}
		for i := 0; i < quota; i++ {
			v := padToken
			if i < len(r.HexValues) && r.HexValues[i] != "" {
				v = r.HexValues[i]
			}
			row = append(row, v)
		}
		out = append(out, append(row, r.Unit))
	}
	return out
}

func snapshotRecords(entries []trace.SnapshotEntry) [][]string {
	out := [][]string{{"序号", "信号名", "数据值", "信号描述"}}
	for i, e := range entries {
		out = append(out, []string{strconv.Itoa(i + 1), e.Name, e.Data, e.Description})
	}
	return out
}

func driverBitRecords(bits []trace.BitSignal) [][]string {
	out := [][]string{{"序号", "采样频率", "采样率(Hz)", "信号名称", "反转标记", "32位数据", "激活状态"}}
	for _, b := range bits {
		status := statusInactive
		if b.IsActive {
			status = statusActive
		}
		out = append(out, []string{
			strconv.Itoa(b.OrderNo),
			b.SamplingRate,
			strconv.Itoa(trace.SamplingHz(b.SamplingRate)),
			b.SignalName,
			b.InvertFlag,
			b.HexValue,
			status,
		})
	}
	return out
}

func driverNumericRecords(signals []trace.NumericSignal) [][]string {
	width := 0
	for _, s := range signals {
		width = max(width, len(s.HexValues))
	}
	header := []string{"信号名称", "采样频率", "采样率(Hz)", "数据点数量"}
	header = append(header, numbered("#%d", width)...)

	out := [][]string{header}
	for _, s := range signals {
		row := []string{s.SignalName, s.DataType, strconv.Itoa(s.SamplingHz), strconv.Itoa(len(s.HexValues))}
		row = append(row, s.HexValues...)
		for i := len(s.HexValues); i < width; i++ {
			row = append(row, "")
		}
		out = append(out, row)
	}
	return out
}

func driverSnapshotRecords(entries []trace.SnapshotEntry) [][]string {
	out := [][]string{{"序号", "时间戳", "信号名称", "数据值", "分类"}}
	for _, e := range entries {
		// The first entry has no number in the exported sheet.
		order := ""
		if e.OrderNo != 0 {
			order = strconv.Itoa(e.OrderNo)
		}
		out = append(out, []string{order, e.Timestamp, e.Name, e.Data, e.Category})
	}
	return out
}
