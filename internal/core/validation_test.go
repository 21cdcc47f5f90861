package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2.50", "2.5", false},
		{"$1,234.56", "1234.56", false},
		{"€3", "3", false},
		{"£0.99", "0.99", false},
		{"(15.25)", "-15.25", false},
		{"-7", "-7", false},
		{".5", "0.5", false},
		{"1e3", "1000", false},
		{"", "", true},
		{"abc", "", true},
		{"1.2.3", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecimal(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimal(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	valid := []string{"2024-03-05", "2024/03/05", "2024.03.05", "20240305", "05.03.2024", "5 Mar 2024", "Mar 5, 2024"}
	for _, in := range valid {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"03/05/2024", "05/03/2024", "yesterday", ""} {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("ParseDate(%q) expected error", in)
		}
	}
}

func TestValidateHeaders(t *testing.T) {
	idx, err := ValidateHeaders([]string{"Kind", " Date ", "COUNTRY", "price", "currency", "quantity", "unit"}, PriceFieldSpecs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx["country"] != 2 || idx["date"] != 1 {
		t.Errorf("index = %v", idx)
	}

	_, err = ValidateHeaders([]string{"kind", "date", "country"}, PriceFieldSpecs)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if ve.Line != 1 || !strings.Contains(ve.Message, "price, currency, quantity, unit") {
		t.Errorf("got %+v", ve)
	}
}

func TestValidateCell(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		spec    FieldSpec
		wantErr bool
	}{
		{"empty passes", "", FieldSpec{Type: FieldNumeric}, false},
		{"number", "12.5", FieldSpec{Type: FieldNumeric}, false},
		{"bad number", "twelve", FieldSpec{Type: FieldNumeric}, true},
		{"date", "2024-01-31", FieldSpec{Type: FieldDate}, false},
		{"bad date", "31/01/2024", FieldSpec{Type: FieldDate}, true},
		{"enum any case", "FOOD", FieldSpec{Type: FieldEnum, EnumValues: []string{"food"}}, false},
		{"enum miss", "toys", FieldSpec{Type: FieldEnum, EnumValues: []string{"food"}}, true},
		{"text", "anything", FieldSpec{Type: FieldText}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCell(tt.value, tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCell(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestRowValidator(t *testing.T) {
	idx := MakeHeaderIndex(PriceColumns)
	v := NewRowValidator(PriceFieldSpecs, idx)

	row := []string{"Food", "2024-01-05", "us", "", " sf ", "$2.50", "usd", "1", "kg"}
	if err := v.ValidateRow(2, row); err != nil {
		t.Fatalf("ValidateRow() error = %v", err)
	}
	if got := v.Cell(row, "country"); got != "US" {
		t.Errorf("Cell(country) = %q, want US", got)
	}
	if got := v.Cell(row, "kind"); got != "food" {
		t.Errorf("Cell(kind) = %q, want food", got)
	}
	if got := v.Cell(row, "city"); got != "SF" {
		t.Errorf("Cell(city) = %q, want SF", got)
	}
	if got := v.Cell(row, "missing"); got != "" {
		t.Errorf("Cell(missing) = %q, want empty", got)
	}

	tests := []struct {
		name  string
		row   []string
		field string
	}{
		{"empty required", []string{"food", "2024-01-05", "", "", "", "1", "USD", "1", "kg"}, "country"},
		{"bad enum", []string{"toys", "2024-01-05", "US", "", "", "1", "USD", "1", "kg"}, "kind"},
		{"bad number", []string{"food", "2024-01-05", "US", "", "", "cheap", "USD", "1", "kg"}, "price"},
		{"short row", []string{"food", "2024-01-05", "US"}, "price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRow(5, tt.row)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if ve.Field != tt.field || ve.Line != 5 {
				t.Errorf("got %+v, want field %q line 5", ve, tt.field)
			}
		})
	}
}

func TestFieldTypeString(t *testing.T) {
	if FieldDate.String() != "date" || FieldType(99).String() != "unknown" {
		t.Error("unexpected FieldType names")
	}
}
