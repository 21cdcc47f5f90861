package core

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Dialect describes the delimiter conventions of a tabular file.
type Dialect struct {
	Name      string
	Delimiter rune
	Comment   rune // 0 disables comment lines
}

var dialects = map[string]Dialect{
	"excel":     {Name: "excel", Delimiter: ','},
	"excel-tab": {Name: "excel-tab", Delimiter: '\t'},
	"unix":      {Name: "unix", Delimiter: ','},
}

// SniffDialect is the placeholder name for auto-detection.
const SniffDialect = "sniff"

// sniffCandidates are the delimiters sniff considers.
var sniffCandidates = []rune{',', '\t', ';', '|'}

// Dialects returns the names of the built-in dialects, sorted.
func Dialects() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupDialect returns the named dialect. An empty name or "sniff" returns
// the zero Dialect, which tells the parser to detect the delimiter.
func LookupDialect(name string) (Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == SniffDialect {
		return Dialect{}, nil
	}
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unknown dialect %q: must be one of %s", name, strings.Join(Dialects(), ", "))
	}
	return d, nil
}

func (d Dialect) detect() bool { return d.Delimiter == 0 }

// configure applies the dialect to a csv.Reader.
func (d Dialect) configure(r *csv.Reader) {
	r.Comma = d.Delimiter
	r.Comment = d.Comment
	r.FieldsPerRecord = -1 // Field count is checked per kind with a typed error
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
}

// sniffSampleLines is how many non-empty leading lines sniff compares.
const sniffSampleLines = 20

// sniff picks the candidate delimiter that occurs outside quotes the same
// non-zero number of times on every sampled line. Input with no non-empty
// line reads as excel. No fitting candidate, or several, is a DialectError.
func sniff(br *bufio.Reader) (Dialect, error) {
	// A short file yields fewer bytes and io.EOF, which is fine here.
	buf, _ := br.Peek(sniffPeekLimit)

	lines := sampleLines(buf, len(buf) == sniffPeekLimit)
	if len(lines) == 0 {
		return dialects["excel"], nil
	}

	var fit []rune
	for _, c := range sniffCandidates {
		if consistentCount(lines, c) {
			fit = append(fit, c)
		}
	}
	if len(fit) != 1 {
		return Dialect{}, &DialectError{Candidates: fit, Lines: len(lines)}
	}

	switch fit[0] {
	case ',':
		return dialects["excel"], nil
	case '\t':
		return dialects["excel-tab"], nil
	default:
		return Dialect{Name: "sniffed", Delimiter: fit[0]}, nil
	}
}

// sampleLines returns up to sniffSampleLines non-empty lines of buf. When buf
// was cut at the peek limit its last, partial line is dropped.
func sampleLines(buf []byte, truncated bool) [][]byte {
	parts := bytes.Split(buf, []byte("\n"))
	if truncated && len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	var lines [][]byte
	for _, l := range parts {
		if len(bytes.TrimSpace(l)) == 0 {
			continue
		}
		lines = append(lines, l)
		if len(lines) == sniffSampleLines {
			break
		}
	}
	return lines
}

func consistentCount(lines [][]byte, c rune) bool {
	want := countUnquoted(lines[0], c)
	if want == 0 {
		return false
	}
	for _, l := range lines[1:] {
		if countUnquoted(l, c) != want {
			return false
		}
	}
	return true
}

func countUnquoted(line []byte, c rune) int {
	n, quoted := 0, false
	for _, r := range string(line) {
		switch {
		case r == '"':
			quoted = !quoted
		case r == c && !quoted:
			n++
		}
	}
	return n
}

// sniffPeekLimit bounds how much of the file is inspected for the delimiter.
const sniffPeekLimit = 64 * 1024

// newBufferedSource wraps r for sniffing. bufio.Reader peeks at most its size.
func newBufferedSource(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, sniffPeekLimit)
}

// openCSV wraps r in the streaming readers, detects the dialect if needed and
// returns a configured csv.Reader together with the byte counter.
func openCSV(r io.Reader, d Dialect) (*csv.Reader, *countingReader, Dialect, error) {
	src := wrapSource(r)
	br := newBufferedSource(src)
	if d.detect() {
		var err error
		if d, err = sniff(br); err != nil {
			return nil, nil, Dialect{}, err
		}
	}
	cr := csv.NewReader(br)
	d.configure(cr)
	return cr, src, d, nil
}
