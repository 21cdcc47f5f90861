package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Parser turns delimited rows into Records of a single kind.
//
// It is a lazy, finite, single-pass sequence: call Next until it returns
// io.EOF. Once consumed it cannot be restarted. Parsing has no side effects;
// persistence happens in the Loader.
type Parser struct {
	spec    KindSpec
	dialect Dialect
	src     *countingReader
	csv     *csv.Reader
	line    int
	last    []string
	done    bool
}

// NewParser prepares a parser for rows of kind read from r.
// A zero Dialect detects the delimiter from the leading lines and fails with
// a DialectError when they do not settle on exactly one.
func NewParser(r io.Reader, kind Kind, dialect Dialect) (*Parser, error) {
	spec, ok := LookupKind(kind)
	if !ok {
		return nil, &UnknownKindError{Name: string(kind), Supported: Kinds()}
	}

	cr, src, dialect, err := openCSV(r, dialect)
	if err != nil {
		return nil, err
	}
	return &Parser{
		spec:    spec,
		dialect: dialect,
		src:     src,
		csv:     cr,
	}, nil
}

// Kind returns the kind of records this parser produces.
func (p *Parser) Kind() Kind { return p.spec.Kind }

// Dialect returns the dialect in use, after detection.
func (p *Parser) Dialect() Dialect { return p.dialect }

// BytesRead returns the number of source bytes consumed so far.
func (p *Parser) BytesRead() int64 { return p.src.bytes }

// Line returns the source line of the last row returned by Next.
func (p *Parser) Line() int { return p.line }

// LastRow returns the raw fields of the last row read, for error reports.
func (p *Parser) LastRow() []string { return p.last }

// Next returns the next record, or io.EOF when the input is exhausted.
// Rows with only blank cells are skipped.
func (p *Parser) Next() (Record, error) {
	if p.done {
		return Record{}, io.EOF
	}

	for {
		row, err := p.csv.Read()
		if err == io.EOF {
			p.done = true
			return Record{}, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				p.line = pe.StartLine
				return Record{}, &MalformedRowError{Kind: p.spec.Kind, Line: pe.StartLine, Reason: pe.Err.Error()}
			}
			return Record{}, fmt.Errorf("read %s rows: %w", p.spec.Kind, err)
		}

		p.line, _ = p.csv.FieldPos(0)
		p.last = row

		if isEmptyRow(row) {
			continue
		}

		return p.toRecord(row)
	}
}

func (p *Parser) toRecord(row []string) (Record, error) {
	want := len(p.spec.Columns)
	if len(row) != want {
		return Record{}, &MalformedRowError{Kind: p.spec.Kind, Line: p.line, Want: want, Got: len(row)}
	}

	fields := make([]string, want)
	for i, cell := range row {
		fields[i] = CleanCell(cell)
		if fields[i] == "" {
			return Record{}, &MalformedRowError{
				Kind: p.spec.Kind, Line: p.line, Want: want, Got: len(row),
				Reason: fmt.Sprintf("empty %s", p.spec.Columns[i]),
			}
		}
	}

	rec := Record{Kind: p.spec.Kind, Line: p.line}
	if p.spec.HasParent() {
		rec.ParentKey, fields = p.spec.NormalizeCode(fields[0]), fields[1:]
	}
	rec.ISOCode = p.spec.NormalizeCode(fields[0])
	rec.Name = norm.NFC.String(fields[1])

	if p.spec.HasMetric() {
		metric, ok := parseFlag(fields[2])
		if !ok {
			return Record{}, &MalformedRowError{
				Kind: p.spec.Kind, Line: p.line, Want: want, Got: len(row),
				Reason: fmt.Sprintf("is_metric %q is not a yes/no value", fields[2]),
			}
		}
		rec.Metric = metric
	}

	return rec, nil
}

// parseFlag reads spreadsheet booleans: true/false, yes/no, y/n, 1/0.
func parseFlag(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, the Excel formula prefix (="...") and stray double quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"`))
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
