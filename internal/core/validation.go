package core

// validation.go provides header and cell validation for header-based CSV input
// such as price observation files.
//
// Validation happens at two levels:
//  1. Header validation: ensures required columns are present
//  2. Row validation: checks each cell against its FieldSpec (type, format, enum values)
//
// Ingestion is fail-fast, so a row reports only its first problem.

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldType represents the expected data type for a CSV field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldDate
	FieldEnum
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldNumeric:
		return "number"
	case FieldDate:
		return "date"
	case FieldEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// FieldSpec describes one column of a header-based CSV file.
type FieldSpec struct {
	Name       string              // Column header name, matched case-insensitively
	Type       FieldType           // Expected data type
	Required   bool                // Column must exist and cells must be non-empty
	EnumValues []string            // Valid values for FieldEnum
	Normalizer func(string) string // Optional transformation applied before checks
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// ValidationError represents a single invalid cell or header.
type ValidationError struct {
	Field   string
	Value   string
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// numericRegex validates a number after symbols and separators are removed.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var dateLayouts = []string{
	time.DateOnly, "2006/01/02", "2006.01.02", "20060102",
	"02.01.2006", "2 Jan 2006", "Jan 2, 2006",
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		idx[strings.ToLower(CleanCell(h))] = i
	}
	return idx
}

// ValidateHeaders checks that all required columns exist and returns their index.
func ValidateHeaders(headers []string, specs []FieldSpec) (HeaderIndex, error) {
	idx := MakeHeaderIndex(headers)
	var missing []string
	for _, spec := range specs {
		if !spec.Required {
			continue
		}
		if _, ok := idx[strings.ToLower(spec.Name)]; !ok {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Line: 1, Message: "missing required columns: " + strings.Join(missing, ", ")}
	}
	return idx, nil
}

// ValidateCell checks a non-empty cell against spec.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil
	}
	switch spec.Type {
	case FieldNumeric:
		if _, err := ParseDecimal(value); err != nil {
			return fmt.Errorf("invalid number format")
		}
	case FieldDate:
		if _, err := ParseDate(value); err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD)")
		}
	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, value) {
				return nil
			}
		}
		return fmt.Errorf("value must be one of: %s", strings.Join(spec.EnumValues, ", "))
	}
	return nil
}

// RowValidator validates rows against a set of field specs.
type RowValidator struct {
	specs []FieldSpec
	idx   HeaderIndex
}

// NewRowValidator returns a validator for rows laid out per idx.
func NewRowValidator(specs []FieldSpec, idx HeaderIndex) *RowValidator {
	return &RowValidator{specs: specs, idx: idx}
}

// Cell returns the cleaned, normalized value of the named column.
func (v *RowValidator) Cell(row []string, name string) string {
	pos, ok := v.idx[strings.ToLower(name)]
	if !ok || pos >= len(row) {
		return ""
	}
	raw := CleanCell(row[pos])
	for _, spec := range v.specs {
		if strings.EqualFold(spec.Name, name) && spec.Normalizer != nil && raw != "" {
			return spec.Normalizer(raw)
		}
	}
	return raw
}

// ValidateRow returns the first *ValidationError in row, or nil.
func (v *RowValidator) ValidateRow(line int, row []string) error {
	for _, spec := range v.specs {
		pos, ok := v.idx[strings.ToLower(spec.Name)]
		if !ok || pos >= len(row) {
			if spec.Required {
				return &ValidationError{Field: spec.Name, Line: line, Message: "missing required column"}
			}
			continue
		}

		raw := v.Cell(row, spec.Name)
		if raw == "" {
			if spec.Required {
				return &ValidationError{Field: spec.Name, Line: line, Message: "required field is empty"}
			}
			continue
		}
		if err := ValidateCell(raw, spec); err != nil {
			return &ValidationError{Field: spec.Name, Value: raw, Line: line, Message: err.Error()}
		}
	}
	return nil
}

// ParseDecimal parses a numeric cell. Currency symbols and thousands
// separators are removed and accounting negatives "(1.5)" are accepted.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)
	if negative {
		s = "-" + s
	}
	if !numericRegex.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q", s)
	}
	return decimal.NewFromString(s)
}

// ParseDate parses a date cell into midnight UTC. Ambiguous US/EU slash
// formats are not accepted.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
