package trace

import (
	"regexp"
	"strings"
)

// Token offset of the second signal name on a two-signal line.
const secondSignalIndex = 5

var signalNameRe = regexp.MustCompile(`^\*?-?[A-Za-z][A-Za-z0-9_.]*$`)

// ParseBits parses a bit section. The first non blank line is the section
// header.
func ParseBits(span string) []BitSignal {
	return parseBits(span, "")
}

func parseBits(span, rate string) []BitSignal {
	lines := dataLines(span)
	if len(lines) < 2 {
		return nil
	}
	signals := make([]BitSignal, 0, len(lines)-1)
	add := func(name string, hex []string) {
		s := newBitSignal(len(signals), name, hex)
		s.SamplingRate = rate
		signals = append(signals, s)
	}
	for _, line := range lines[1:] {
		parts := strings.Fields(line)
		switch {
		case len(parts) >= 10 && looksLikeSignalName(parts[secondSignalIndex]):
			add(parts[0], parts[1:secondSignalIndex])
			add(parts[secondSignalIndex], parts[secondSignalIndex+1:secondSignalIndex+1+bitTokens])
		case len(parts) >= 2:
			add(parts[0], parts[1:])
		}
	}
	return signals
}

func looksLikeSignalName(tok string) bool {
	if strings.HasPrefix(tok, InvertMarker) {
		return true
	}
	return signalNameRe.MatchString(tok)
}

func newBitSignal(orderNo int, name string, hex []string) BitSignal {
	var flag string
	if strings.HasPrefix(name, InvertMarker) {
		flag = InvertMarker
		name = strings.TrimPrefix(name, InvertMarker)
	}
	tokens := make([]string, len(hex), max(len(hex), bitTokens))
	copy(tokens, hex)
	for len(tokens) < bitTokens {
		tokens = append(tokens, bitPadToken)
	}
	return BitSignal{
		OrderNo:    orderNo,
		SignalName: name,
		InvertFlag: flag,
		HexValue:   strings.Join(tokens, " "),
		IsActive:   anyNonZero(tokens),
	}
}

// anyNonZero reports whether any token, read as hex, is nonzero. Characters
// that are not hex digits are ignored.
func anyNonZero(tokens []string) bool {
	for _, tok := range tokens {
		for _, c := range tok {
			switch {
			case c >= '1' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
				return true
			}
		}
	}
	return false
}
