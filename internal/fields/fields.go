// Package fields turns labelled, line-oriented model output back into
// records.
//
// A record is a fixed sequence of lines joined by "\n". Each line is either
// a header ("Company Address:") or a field ("- Street: 1 Main St"). Leading
// horizontal whitespace on a line is ignored, CRLF line endings are accepted,
// and a record ends at a blank line or at the end of the text. The last
// field's value may span several lines up to that terminator.
package fields

import (
	"regexp"
	"strings"
)

// Line is one line of a schema. A Line with an empty Key is a header.
type Line struct {
	Key   string
	Label string
}

func Header(label string) Line      { return Line{Label: label} }
func Field(key, label string) Line { return Line{Key: key, Label: label} }

// Record maps field keys to values. Absent keys read as "".
type Record map[string]string

// Empty reports whether every value in the record is blank.
func (r Record) Empty() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Schema is a compiled record layout.
type Schema struct {
	lines []Line
	keys  []string
	re    *regexp.Regexp
}

// NewSchema compiles lines into a single dot-all pattern that must match the
// whole record. It panics if no field lines are given.
func NewSchema(lines ...Line) *Schema {
	s := &Schema{lines: lines}

	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		label := regexp.QuoteMeta(l.Label)
		if l.Key == "" {
			parts = append(parts, `^[ \t]*`+label+`[ \t]*`)
			continue
		}
		s.keys = append(s.keys, l.Key)
		parts = append(parts, `^[ \t]*`+label+`:(.*?)`)
	}
	if len(s.keys) == 0 {
		panic("fields: schema has no fields")
	}

	s.re = regexp.MustCompile(`(?ms)` + strings.Join(parts, `\n`) + `(?:\n[ \t]*$|\z)`)
	return s
}

// Keys returns the field keys in schema order.
func (s *Schema) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Parse returns the first record in text. If nothing matches it returns an
// empty record; parse failures are data, not errors.
func (s *Schema) Parse(text string) Record {
	m := s.re.FindStringSubmatch(normalize(text))
	if m == nil {
		return Record{}
	}
	return s.record(m)
}

// ParseAll returns every non-overlapping record in text, in order.
func (s *Schema) ParseAll(text string) []Record {
	matches := s.re.FindAllStringSubmatch(normalize(text), -1)
	out := make([]Record, 0, len(matches))
	for _, m := range matches {
		out = append(out, s.record(m))
	}
	return out
}

// Format writes r back out in the schema's layout. Values must not contain a
// blank line for the result to parse back to r.
func (s *Schema) Format(r Record) string {
	var b strings.Builder
	for i, l := range s.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Label)
		if l.Key != "" {
			b.WriteString(": ")
			b.WriteString(r[l.Key])
		}
	}
	return b.String()
}

func (s *Schema) record(m []string) Record {
	r := make(Record, len(s.keys))
	for i, key := range s.keys {
		r[key] = strings.TrimSpace(m[i+1])
	}
	return r
}

func normalize(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}
