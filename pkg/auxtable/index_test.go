package auxtable

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const sampleXML = `<?xml version="1.0" encoding="utf-8"?>
<Root>
  <AuxSubTableItem libId="L1" tableCode="T1" orderNo="2" startPos="8" startCount="4" itemCode="C2" itemName="two" converterId="Bin" />
  <Group>
    <AuxSubTableItem libId="L1" tableCode="T1" orderNo="0" startPos="0" startCount="4" itemCode="C0" itemName="zero" converterId="Bin" converterParam="p" />
  </Group>
  <AuxSubTableItem libId="L1" tableCode="T2" orderNo="7x" startPos="" startCount="abc" itemCode="C0" itemName="dup" converterId="Hex" />
  <AuxSubTableItem tableCode="T1" orderNo="2" itemCode="C2b" />
</Root>
`

func TestParse(t *testing.T) {
	idx, err := Parse(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatal(err)
	}
	want := []Item{
		{LibID: "L1", TableCode: "T1", OrderNo: 2, StartPos: 8, StartCount: 4, ItemCode: "C2", ItemName: "two", ConverterID: "Bin"},
		{LibID: "L1", TableCode: "T1", OrderNo: 0, StartPos: 0, StartCount: 4, ItemCode: "C0", ItemName: "zero", ConverterID: "Bin", ConverterParam: "p"},
		{LibID: "L1", TableCode: "T2", OrderNo: 7, ItemCode: "C0", ItemName: "dup", ConverterID: "Hex"},
		{TableCode: "T1", OrderNo: 2, ItemCode: "C2b"},
	}
	if diff := cmp.Diff(want, idx.Items()); diff != "" {
		t.Errorf("Items() mismatch (-want +got):\n%s", diff)
	}

	var codes []string
	for _, it := range idx.Table("T1") {
		codes = append(codes, it.ItemCode)
	}
	if diff := cmp.Diff([]string{"C0", "C2", "C2b"}, codes); diff != "" {
		t.Errorf("Table(T1) order mismatch (-want +got):\n%s", diff)
	}
	if got := idx.Table("missing"); len(got) != 0 {
		t.Errorf("Table(missing) = %v", got)
	}

	it, ok := idx.ByItemCode("C0")
	if !ok || it.TableCode != "T1" {
		t.Errorf("ByItemCode(C0) = %+v, %v; want the first owner", it, ok)
	}
	if _, ok := idx.ByItemCode("nope"); ok {
		t.Error("ByItemCode(nope) found an item")
	}
	if diff := cmp.Diff([]string{"T1", "T2"}, idx.Tables()); diff != "" {
		t.Errorf("Tables() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unclosed", `<Root><AuxSubTableItem tableCode="T1">`},
		{"mismatched", `<Root></Other>`},
		{"empty", ``},
		{"prolog only", `<?xml version="1.0"?>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Parse(strings.NewReader(tt.in))
			var pe *ConfigParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %v, want *ConfigParseError", err)
			}
			if idx != nil {
				t.Error("Parse() returned an index with an error")
			}
		})
	}
}

func TestParseEmptyRoot(t *testing.T) {
	idx, err := Parse(strings.NewReader("\xEF\xBB\xBF<Root/>"))
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 0 || len(idx.Tables()) != 0 {
		t.Errorf("index not empty: %+v", idx.Stats())
	}
}

func TestParseDeclaredCharset(t *testing.T) {
	doc := `<?xml version="1.0" encoding="GB18030"?><Root><AuxSubTableItem tableCode="0xD131数据内容" itemCode="SN_29" itemName="安全开关" /></Root>`
	enc, err := simplifiedchinese.GB18030.NewEncoder().String(doc)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := Parse(strings.NewReader(enc))
	if err != nil {
		t.Fatal(err)
	}
	items := idx.Table(TableBit)
	if len(items) != 1 || items[0].ItemName != "安全开关" {
		t.Errorf("Table(bit) = %+v", items)
	}
}

func TestStats(t *testing.T) {
	var items []Item
	for i, n := range []int{1, 3, 2, 3, 5, 1, 4} {
		code := string(rune('A' + i))
		for j := 0; j < n; j++ {
			items = append(items, Item{TableCode: code, OrderNo: j})
		}
	}
	got := New(items).Stats()
	want := Stats{
		TotalItems: 19,
		TableCount: 7,
		TopTables: []TableCount{
			{TableCode: "E", Count: 5},
			{TableCode: "G", Count: 4},
			{TableCode: "B", Count: 3},
			{TableCode: "D", Count: 3},
			{TableCode: "C", Count: 2},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestAtoi(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12", 12},
		{" 7 ", 7},
		{"12abc", 12},
		{"-3", -3},
		{"+4", 4},
		{"abc", 0},
		{"", 0},
		{"-", 0},
		{"0x10", 0},
	}
	for _, tt := range tests {
		if got := atoi(tt.in); got != tt.want {
			t.Errorf("atoi(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
