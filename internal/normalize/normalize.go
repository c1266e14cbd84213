// Package normalize repairs raw OCR output into the fixed display format
// expected for each region data type.
//
// The repairs are positional heuristics for the usual failure modes of the
// scoreboard font: thin glyphs (colon, period) and the trailing "k" get
// dropped or misread. Input that does not match one of those shapes passes
// through unrepaired. Nothing here returns an error.
package normalize

import (
	"strings"

	"github.com/hoovercj/streamABLE/internal/regions"
)

// Sink receives a diagnostic entry whenever a value is rewritten.
// (*logging.Logger).Info satisfies it.
type Sink func(msg string, keysAndValues ...interface{})

// Normalizer applies per-type repairs. The zero value is ready to use and
// discards diagnostics.
type Normalizer struct {
	sink Sink
}

// New creates a Normalizer reporting rewrites to sink. A nil sink discards them.
func New(sink Sink) *Normalizer {
	return &Normalizer{sink: sink}
}

type repairFunc func(n *Normalizer, s string) string

var repairs = map[regions.DataType]repairFunc{
	regions.DataTypeTime: (*Normalizer).repairTime,
	regions.DataTypeGold: (*Normalizer).repairGold,
}

// Process trims raw and repairs it according to t. Types without a repair
// rule (number, text, unknown) return the trimmed input.
func (n *Normalizer) Process(raw string, t regions.DataType) string {
	result := strings.TrimSpace(raw)
	if repair, ok := repairs[t]; ok {
		return repair(n, result)
	}
	return result
}

// Process normalizes raw with a Normalizer that discards diagnostics
func Process(raw string, t regions.DataType) string {
	var n Normalizer
	return n.Process(raw, t)
}

// repairTime restores the colon of an M:SS or MM:SS clock.
func (n *Normalizer) repairTime(result string) string {
	if strings.Contains(result, ":") {
		return result
	}

	n.report(result, regions.DataTypeTime)
	length := runeLen(result)
	if length > 4 {
		// colon was read as a digit
		return replaceAt(result, length-3, ':')
	}
	// colon was dropped
	return insertAt(result, length-2, ':')
}

// repairGold restores the "<digits>.<digit>k" shape. The decimal point is
// placed relative to the string after the "k" has been appended.
func (n *Normalizer) repairGold(result string) string {
	if !strings.HasSuffix(result, "k") {
		n.report(result, regions.DataTypeGold)
		result += "k"
	}

	if !strings.Contains(result, ".") {
		n.report(result, regions.DataTypeGold)
		return insertAt(result, runeLen(result)-2, '.')
	}

	return result
}

func (n *Normalizer) report(result string, t regions.DataType) {
	if n == nil || n.sink == nil {
		return
	}
	n.sink("Replacing result", "result", result, "type", string(t))
}

func runeLen(s string) int {
	return len([]rune(s))
}

// replaceAt overwrites the rune at index. Out of range indices are clamped.
func replaceAt(s string, index int, r rune) string {
	runes := []rune(s)
	index = clamp(index, 0, len(runes))
	if index == len(runes) {
		return string(append(runes, r))
	}
	runes[index] = r
	return string(runes)
}

// insertAt inserts r before the rune at index. Out of range indices are clamped.
func insertAt(s string, index int, r rune) string {
	runes := []rune(s)
	index = clamp(index, 0, len(runes))
	out := make([]rune, 0, len(runes)+1)
	out = append(out, runes[:index]...)
	out = append(out, r)
	out = append(out, runes[index:]...)
	return string(out)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
