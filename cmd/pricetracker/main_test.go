package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/pricetracker/internal/core"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", errors.New("boom"), exitFailure},
		{"usage", withCode(exitUsage, errors.New("accepts at most 3 arg(s)")), exitUsage},
		{"wrapped usage", fmt.Errorf("outer: %w", withCode(exitUsage, errors.New("bad"))), exitUsage},
		{"unknown kind", &core.UnknownKindError{Name: "Planet"}, exitFailure},
		{"unknown command", errors.New(`unknown command "nope" for "pricetracker"`), exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
	assert.NoError(t, withCode(exitUsage, nil))
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"too many uploadfile args", []string{"uploadfile", "Country", "a.csv", "excel", "extra"}},
		{"missing addrate args", []string{"addrate", "EUR", "USD"}},
		{"uploadprices without path", []string{"uploadprices"}},
		{"unknown flag", []string{"normalize", "--bogus"}},
		{"unknown command", []string{"frobnicate"}},
		{"convert unit arity", []string{"convert", "unit", "1", "kg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(tt.args...)
			assert.Equal(t, exitUsage, code, stderr)
			assert.Contains(t, stderr, "Error: ")
			assert.Contains(t, stderr, "--help")
		})
	}
}

func TestRun_Help(t *testing.T) {
	code, stdout, _ := runCLI("--help")
	assert.Equal(t, exitOK, code)
	for _, name := range []string{"createuser", "uploadfile", "uploadprices", "addunitconv", "addrate", "convert", "normalize", "migrate", "serve"} {
		assert.Contains(t, stdout, name)
	}
}

func TestRun_ConfigFailure(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	code, _, stderr := runCLI("migrate")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "DATABASE_URL")
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, &core.NoConversionPathError{Unit: "lb", ToUnit: "kg"}, exitFailure)
	assert.Contains(t, buf.String(), `Error: no conversion path from "lb" to "kg"`)
	assert.Contains(t, buf.String(), "CNV001: No direct unit conversion. Add a conversion row from lb to kg")

	buf.Reset()
	printError(&buf, errors.New("boom"), exitFailure)
	assert.Equal(t, "Error: boom\n", buf.String())
}
