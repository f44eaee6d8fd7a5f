package hemlock

import (
	"fmt"
	"sort"
)

// Location is a single point in source text: a byte cursor plus the
// 1-based line/column it falls on.
type Location struct {
	Line   int32
	Column int32
	Cursor int32
}

// Span is a half-open region of source text, used as the position
// field on every token and AST node.
type Span struct {
	Start Location
	End   Location
}

func NewSpan(start, end Location) Span {
	return Span{Start: start, End: end}
}

func (s Span) String() string {
	if s.Start.Line == s.End.Line && s.Start.Column == s.End.Column {
		return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
	}
	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("%d:%d..%d", s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%d:%d..%d:%d", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

// Contains reports whether other is entirely within s, by cursor offset.
func (s Span) Contains(other Span) bool {
	return other.Start.Cursor >= s.Start.Cursor && other.End.Cursor <= s.End.Cursor
}

// LineIndex allows fast conversion from byte cursor offsets to
// line/column pairs.
//
// It stores the start byte offset of each line (0-based). Given a
// cursor, it finds the line by binary searching line starts (O(log
// lines)) and computes the column as (bytes since lineStart + 1).
//
// Construction is O(n) over the input and is intended to be cached
// per source file.
type LineIndex struct {
	input     []byte
	lineStart []int
}

func NewLineIndex(input []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range input {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{input: input, lineStart: lineStart}
}

func (li *LineIndex) LocationAt(cursor int) Location {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(li.input) {
		cursor = len(li.input)
	}
	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	lineStart := li.lineStart[lineIdx]
	return Location{
		Line:   int32(lineIdx + 1),
		Column: int32(cursor-lineStart) + 1,
		Cursor: int32(cursor),
	}
}

func (li *LineIndex) Span(start, end int) Span {
	return Span{Start: li.LocationAt(start), End: li.LocationAt(end)}
}

// LineText returns the full source line containing cursor, without
// its trailing newline. Used by the diagnostic renderer.
func (li *LineIndex) LineText(cursor int) string {
	loc := li.LocationAt(cursor)
	start := li.lineStart[loc.Line-1]
	end := len(li.input)
	if int(loc.Line) < len(li.lineStart) {
		end = li.lineStart[loc.Line] - 1
	}
	if end < start {
		end = start
	}
	return string(li.input[start:end])
}
