package core

// errors.go defines the pipeline's error taxonomy.
//
// Every error here indicates malformed input or a data-integrity condition.
// None of them is retried: the run stops and the caller fixes the input.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by gateways when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrAmbiguousKey is returned by gateways when a natural key matches more than one record.
var ErrAmbiguousKey = errors.New("natural key matches more than one record")

// MalformedRowError reports a row whose field count does not match its kind.
type MalformedRowError struct {
	Kind   Kind
	Line   int
	Want   int
	Got    int
	Reason string // Set when the count is right but a field is unusable
}

func (e *MalformedRowError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed %s row at line %d: %s", e.Kind, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed %s row at line %d: expected %d fields, got %d", e.Kind, e.Line, e.Want, e.Got)
}

// UnknownKindError reports a class name outside the registered kinds.
type UnknownKindError struct {
	Name      string
	Supported []Kind
}

func (e *UnknownKindError) Error() string {
	names := make([]string, len(e.Supported))
	for i, k := range e.Supported {
		names[i] = string(k)
	}
	return fmt.Sprintf("unknown kind %q: classname must be one of the following: %s", e.Name, strings.Join(names, ","))
}

// DialectError reports input whose delimiter could not be detected: either no
// candidate splits every sampled line the same way, or several do.
type DialectError struct {
	Candidates []rune
	Lines      int
}

func (e *DialectError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("cannot detect delimiter: no candidate occurs the same number of times on the first %d lines", e.Lines)
	}
	quoted := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		quoted[i] = strconv.QuoteRune(c)
	}
	return fmt.Sprintf("cannot detect delimiter: %s all fit the first %d lines", strings.Join(quoted, ", "), e.Lines)
}

// ParentNotFoundError reports a State or City whose parent natural key was never loaded.
type ParentNotFoundError struct {
	Kind       Kind // Kind of the child record
	ParentKind Kind
	Key        string
	Line       int
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("%s at line %d: parent %s %q not found", e.Kind, e.Line, e.ParentKind, e.Key)
}

// AmbiguousParentError reports a parent natural key shared by several records.
type AmbiguousParentError struct {
	Kind       Kind
	ParentKind Kind
	Key        string
	Line       int
}

func (e *AmbiguousParentError) Error() string {
	return fmt.Sprintf("%s at line %d: parent %s %q matches more than one record", e.Kind, e.Line, e.ParentKind, e.Key)
}

// DuplicateKeyError reports a create that would violate a uniqueness rule.
type DuplicateKeyError struct {
	Entity string
	Key    string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: %s %q already exists", e.Entity, e.Key)
}

// NoConversionPathError reports a missing direct unit conversion.
type NoConversionPathError struct {
	Unit   string
	ToUnit string
}

func (e *NoConversionPathError) Error() string {
	return fmt.Sprintf("no conversion path from %q to %q", e.Unit, e.ToUnit)
}

// NoRateForDateError reports that no rate range contains the requested date.
type NoRateForDateError struct {
	From string
	To   string
	Date time.Time
}

func (e *NoRateForDateError) Error() string {
	return fmt.Sprintf("no rate for %s->%s on %s", e.From, e.To, e.Date.Format(time.DateOnly))
}

// AmbiguousRateError reports overlapping rate ranges that both contain the date.
type AmbiguousRateError struct {
	From    string
	To      string
	Date    time.Time
	Matches int
}

func (e *AmbiguousRateError) Error() string {
	return fmt.Sprintf("ambiguous rate for %s->%s on %s: %d overlapping ranges",
		e.From, e.To, e.Date.Format(time.DateOnly), e.Matches)
}

// InvariantError reports a write that would break a conversion-table invariant.
type InvariantError struct {
	Field string
	Value string
	Rule  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s %s (got %s)", e.Field, e.Rule, e.Value)
}

func nonPositive(field string, v decimal.Decimal) error {
	return &InvariantError{Field: field, Value: v.String(), Rule: "must be positive"}
}

// RowError wraps the first failing row of a run.
type RowError struct {
	Line int
	Row  []string
	Err  error
}

func (e *RowError) Error() string {
	if len(e.Row) > 0 {
		return fmt.Sprintf("line %d %v: %v", e.Line, e.Row, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
