// Package auxtable indexes the AuxSubTableItem signal configuration and
// resolves signal descriptions against it.
package auxtable

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

const itemElement = "AuxSubTableItem"

// Item is one AuxSubTableItem element.
type Item struct {
	LibID          string `xml:"libId,attr" json:"libId"`
	TableCode      string `xml:"tableCode,attr" json:"tableCode"`
	OrderNo        int    `xml:"-" json:"orderNo"`
	StartPos       int    `xml:"-" json:"startPos"`
	StartCount     int    `xml:"-" json:"startCount"`
	ItemCode       string `xml:"itemCode,attr" json:"itemCode"`
	ItemName       string `xml:"itemName,attr" json:"itemName"`
	ConverterID    string `xml:"converterId,attr" json:"converterId"`
	ConverterParam string `xml:"converterParam,attr" json:"converterParam,omitempty"`
}

// xmlItem carries the numeric attributes as text so that lenient parsing
// can be applied after decoding.
type xmlItem struct {
	Item
	OrderNo    string `xml:"orderNo,attr"`
	StartPos   string `xml:"startPos,attr"`
	StartCount string `xml:"startCount,attr"`
}

// Index is an immutable view of a parsed config.
type Index struct {
	items  []Item
	tables map[string][]Item
	codes  []string
	byCode map[string]Item
}

type TableCount struct {
	TableCode string `json:"tableCode"`
	Count     int    `json:"count"`
}

type Stats struct {
	TotalItems int          `json:"totalItems"`
	TableCount int          `json:"tableCount"`
	TopTables  []TableCount `json:"topTables"`
}

// Parse decodes every AuxSubTableItem element in r, at any depth. Encodings
// other than UTF-8 are honoured when the XML declaration names them.
func Parse(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}

	dec := xml.NewDecoder(br)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		items []Item
		root  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ConfigParseError{Err: err}
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		root = true
		if se.Name.Local != itemElement {
			continue
		}
		var xi xmlItem
		if err := dec.DecodeElement(&xi, &se); err != nil {
			return nil, &ConfigParseError{Err: err}
		}
		it := xi.Item
		it.OrderNo = atoi(xi.OrderNo)
		it.StartPos = atoi(xi.StartPos)
		it.StartCount = atoi(xi.StartCount)
		items = append(items, it)
	}
	if !root {
		return nil, &ConfigParseError{Err: errors.New("no root element")}
	}
	return New(items), nil
}

// New builds an index over items, which are kept in the given order.
func New(items []Item) *Index {
	idx := &Index{
		items:  items,
		tables: make(map[string][]Item),
		byCode: make(map[string]Item),
	}
	for _, it := range items {
		if _, ok := idx.tables[it.TableCode]; !ok {
			idx.codes = append(idx.codes, it.TableCode)
		}
		idx.tables[it.TableCode] = append(idx.tables[it.TableCode], it)
		if _, ok := idx.byCode[it.ItemCode]; !ok {
			idx.byCode[it.ItemCode] = it
		}
	}
	for _, t := range idx.tables {
		sort.SliceStable(t, func(i, j int) bool {
			return t[i].OrderNo < t[j].OrderNo
		})
	}
	return idx
}

// Items returns all items in document order.
func (idx *Index) Items() []Item {
	return idx.items
}

func (idx *Index) Len() int {
	return len(idx.items)
}

// Table returns the items of one table sorted by OrderNo. Items with equal
// OrderNo keep their document order.
func (idx *Index) Table(code string) []Item {
	return idx.tables[code]
}

// ByItemCode returns the first item carrying code.
func (idx *Index) ByItemCode(code string) (Item, bool) {
	it, ok := idx.byCode[code]
	return it, ok
}

// Tables returns the table codes in order of first appearance.
func (idx *Index) Tables() []string {
	return idx.codes
}

// Stats summarises the index with the five largest tables.
func (idx *Index) Stats() Stats {
	top := make([]TableCount, 0, len(idx.codes))
	for _, code := range idx.codes {
		top = append(top, TableCount{TableCode: code, Count: len(idx.tables[code])})
	}
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Count > top[j].Count
	})
	if len(top) > 5 {
		top = top[:5]
	}
	return Stats{
		TotalItems: len(idx.items),
		TableCount: len(idx.codes),
		TopTables:  top,
	}
}

// atoi reads an optionally signed run of leading digits and ignores the
// rest. Anything without leading digits is 0.
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
