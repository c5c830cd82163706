package auxtable

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	TableBit      = "0xD131数据内容"
	TablePeriodic = "50ms TRACE"
	TableSnapshot = "0xD132数据内容(SNATSHOT)"
	Table25ms     = "25ms TRACE"

	// Unknown is returned whenever no description can be found.
	Unknown = "未知信号"

	// NoOrder tells Resolve that no position is known.
	NoOrder = -1
)

var orderNoRe = regexp.MustCompile(`NO(\d+)`)

// Resolve returns the description of a signal. An empty tableCode is
// inferred from name. A position within the table wins over any name based
// match, so rows are expected to appear in config order.
func Resolve(idx *Index, name string, order int, tableCode string) string {
	if idx == nil || name == "" {
		return Unknown
	}
	if tableCode == "" {
		tableCode = inferTable(name)
	}
	items := idx.Table(tableCode)

	if order >= 0 && order < len(items) {
		if code := items[order].ItemCode; code != "" {
			return code
		}
		return Unknown
	}

	switch tableCode {
	case TablePeriodic:
		prefix := firstWord(name)
		for _, it := range items {
			if it.ItemCode != "" && firstWord(it.ItemCode) == prefix {
				return it.ItemCode
			}
		}
	case TableSnapshot, Table25ms:
		for _, it := range items {
			if it.ItemCode != "" && it.ItemName == name {
				return it.ItemCode
			}
		}
	case TableBit:
		m := orderNoRe.FindStringSubmatch(name)
		if m == nil {
			break
		}
		no, err := strconv.Atoi(m[1])
		if err != nil {
			break
		}
		for _, it := range items {
			if it.ItemCode != "" && it.OrderNo == no {
				return it.ItemCode
			}
		}
	}
	return Unknown
}

func inferTable(name string) string {
	if strings.Contains(name, "50ms") || strings.Contains(name, "TRACE") {
		return TablePeriodic
	}
	return TableBit
}

func firstWord(s string) string {
	w, _, _ := strings.Cut(s, " ")
	return w
}
