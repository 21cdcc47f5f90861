package core

// error_messages.go maps technical errors to coded user messages.
//
// Typed pipeline errors are matched with errors.As first. Anything else falls
// back to case-insensitive pattern matching on the error text, which catches
// database driver errors without importing the driver here. The first match
// wins, so specific patterns come before general ones.
//
// Row errors (ROW001-ROW099):
//
//	ROW001 - Malformed row: field count or field content is wrong for the kind
//	ROW002 - Unknown kind: class name is not a registered kind
//	ROW003 - Invalid value: a price row cell failed validation
//	ROW004 - Undetectable delimiter: pass the dialect explicitly
//
// Reference errors (REF001-REF099):
//
//	REF001 - Parent not found: load parents before children
//	REF002 - Ambiguous parent: the parent code exists under several owners
//	REF003 - Duplicate: the record already exists
//
// Conversion errors (CNV001-CNV099):
//
//	CNV001 - No conversion path: add a direct conversion row
//	CNV002 - No rate for date: add a rate covering the date
//	CNV003 - Ambiguous rate: rate ranges overlap
//	CNV004 - Invariant violation: factor/rate must be positive, ranges ordered,
//	         units registered and of one unit type
//
// Database errors (DB001-DB099) and ERR000 as the fallback.

import (
	"context"
	"errors"
	"strings"
)

// UserMessage is a user-facing description of an error.
type UserMessage struct {
	Code    string
	Message string
	Action  string
}

type errorPattern struct {
	patterns []string
	msg      UserMessage
}

var dbPatterns = []errorPattern{
	{[]string{"duplicate key", "unique constraint", "violates unique"}, UserMessage{
		Code: "DB001", Message: "A record with this key already exists",
		Action: "Remove the duplicate rows and rerun"}},
	{[]string{"foreign key constraint", "violates foreign key"}, UserMessage{
		Code: "DB002", Message: "Referenced record does not exist",
		Action: "Ensure parent records are loaded first"}},
	{[]string{"connection refused"}, UserMessage{
		Code: "DB003", Message: "Unable to connect to database",
		Action: "Check DATABASE_URL and that the database is running"}},
	{[]string{"connection reset"}, UserMessage{
		Code: "DB004", Message: "Database connection was interrupted",
		Action: "Please try again"}},
	{[]string{"deadlock", "could not obtain lock", "lock timeout"}, UserMessage{
		Code: "DB005", Message: "Conversion tables are locked by another run",
		Action: "Wait for the other run to finish and try again"}},
	{[]string{"timeout", "deadline exceeded"}, UserMessage{
		Code: "DB006", Message: "Operation timed out",
		Action: "Try again later or raise the timeout"}},
}

var defaultMessage = UserMessage{
	Code:    "ERR000",
	Message: "An unexpected error occurred",
	Action:  "Check the log output for details",
}

// MapError returns the user message for err. A nil error maps to the zero message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		malformed   *MalformedRowError
		unknownKind *UnknownKindError
		invalid     *ValidationError
		parent      *ParentNotFoundError
		ambParent   *AmbiguousParentError
		dup         *DuplicateKeyError
		noPath      *NoConversionPathError
		noRate      *NoRateForDateError
		ambRate     *AmbiguousRateError
		invariant   *InvariantError
		dialect     *DialectError
	)

	switch {
	case errors.As(err, &malformed):
		return UserMessage{Code: "ROW001", Message: "Row has the wrong shape for its kind",
			Action: "Check the column count and order for this kind"}
	case errors.As(err, &unknownKind):
		return UserMessage{Code: "ROW002", Message: "Unknown kind",
			Action: "Use one of: " + kindList()}
	case errors.As(err, &dialect):
		return UserMessage{Code: "ROW004", Message: "Delimiter could not be detected",
			Action: "Pass the dialect explicitly: " + strings.Join(Dialects(), ", ")}
	case errors.As(err, &invalid):
		return UserMessage{Code: "ROW003", Message: "Row contains an invalid value",
			Action: "Fix the named field and rerun"}
	case errors.As(err, &parent):
		return UserMessage{Code: "REF001", Message: "Parent record not found",
			Action: "Load " + string(parent.ParentKind) + " rows before " + string(parent.Kind) + " rows"}
	case errors.As(err, &ambParent):
		return UserMessage{Code: "REF002", Message: "Parent code matches more than one record",
			Action: "Make the parent ISO code unique"}
	case errors.As(err, &dup):
		return UserMessage{Code: "REF003", Message: "Record already exists",
			Action: "Remove rows that were loaded by an earlier run"}
	case errors.As(err, &noPath):
		return UserMessage{Code: "CNV001", Message: "No direct unit conversion",
			Action: "Add a conversion row from " + noPath.Unit + " to " + noPath.ToUnit}
	case errors.As(err, &noRate):
		return UserMessage{Code: "CNV002", Message: "No currency rate for the date",
			Action: "Add a rate range covering the date"}
	case errors.As(err, &ambRate):
		return UserMessage{Code: "CNV003", Message: "Currency rate ranges overlap",
			Action: "Fix the overlapping rate ranges"}
	case errors.As(err, &invariant):
		return UserMessage{Code: "CNV004", Message: "Conversion value rejected",
			Action: "Correct the " + invariant.Field + " value and retry"}
	case errors.Is(err, context.Canceled):
		return UserMessage{Code: "RUN001", Message: "Run was cancelled",
			Action: "Rerun when ready"}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range dbPatterns {
		for _, pattern := range p.patterns {
			if strings.Contains(lower, pattern) {
				return p.msg
			}
		}
	}

	return defaultMessage
}

func kindList() string {
	kinds := Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
