package handler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/pricetracker/internal/account"
	"github.com/JonMunkholm/pricetracker/internal/config"
	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/JonMunkholm/pricetracker/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Ingest:    config.IngestConfig{Actor: "system", Timeout: time.Minute},
		Normalize: config.NormalizeConfig{Currency: "USD", Units: []string{"kg", "l"}, Workers: 2, Timeout: time.Minute},
		Account:   config.AccountConfig{BcryptCost: bcrypt.MinCost, MinPasswordLength: 8},
	}
}

func newHandler(t *testing.T, input string) (*Handler, *store.Memory, *bytes.Buffer) {
	t.Helper()
	gw := store.NewMemory(core.NewAuditor("test"))
	var out bytes.Buffer
	return New(gw, nil, testConfig(), strings.NewReader(input), &out), gw, &out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// uploadUnits loads kg and g as mass and l as volume through uploadfile.
func uploadUnits(t *testing.T, h *Handler) {
	t.Helper()
	types := writeFile(t, "unit_types.csv", "mass,Mass\nvolume,Volume\n")
	units := writeFile(t, "units.csv", "mass,kg,Kilogram,yes\nmass,g,Gram,yes\nvolume,l,Litre,yes\n")
	_, err := h.UploadFile(context.Background(), []string{"UnitType", types, ""})
	require.NoError(t, err)
	_, err = h.UploadFile(context.Background(), []string{"unit", units, ""})
	require.NoError(t, err)
}

func TestUploadFile(t *testing.T) {
	h, gw, out := newHandler(t, "")
	path := writeFile(t, "countries.csv", "US,United States\nMX,Mexico\n")

	sum, err := h.UploadFile(context.Background(), []string{"country", path, "excel"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, core.KindCountry, sum.Kind)
	assert.Len(t, gw.References(core.KindCountry), 2)
	assert.Contains(t, out.String(), "Uploaded 2 Country records")
}

func TestUploadFile_PromptsForMissingArgs(t *testing.T) {
	path := writeFile(t, "languages.tsv", "es\tSpanish\nen\tEnglish\n")
	h, gw, out := newHandler(t, "Language\n"+path+"\n\n")

	sum, err := h.UploadFile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Created)
	assert.Len(t, gw.References(core.KindLanguage), 2)

	prompts := out.String()
	assert.Contains(t, prompts, "kind: ")
	assert.Contains(t, prompts, "path: ")
	assert.Contains(t, prompts, "dialect [excel excel-tab unix sniff]: ")
}

func TestUploadFile_OnlyDialectPrompted(t *testing.T) {
	path := writeFile(t, "countries.csv", "US,United States\n")
	h, _, out := newHandler(t, "sniff\n")

	_, err := h.UploadFile(context.Background(), []string{"Country", path})
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "kind: ")
	assert.Contains(t, out.String(), "dialect [")
}

func TestUploadFile_InvalidKind(t *testing.T) {
	h, gw, _ := newHandler(t, "")
	path := writeFile(t, "prices.csv", "x,y\n")

	_, err := h.UploadFile(context.Background(), []string{"Planet", path, ""})
	var uke *core.UnknownKindError
	require.ErrorAs(t, err, &uke)
	assert.Contains(t, err.Error(), "Country,Language,State,City")
	assert.Empty(t, gw.References(core.KindCountry))
}

func TestUploadFile_RunError(t *testing.T) {
	h, _, _ := newHandler(t, "")
	countries := writeFile(t, "countries.csv", "US,United States\n")
	_, err := h.UploadFile(context.Background(), []string{"Country", countries, ""})
	require.NoError(t, err)

	states := writeFile(t, "states.csv", "US,CA,California\nXX,ON,Ontario\n")
	_, err = h.UploadFile(context.Background(), []string{"State", states, ""})

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, core.KindState, re.Kind)
	assert.Equal(t, 2, re.Line)
	assert.Equal(t, "REF001", re.Code)
	assert.Contains(t, re.Error(), "State upload failed at line 2 [REF001]")

	var pnf *core.ParentNotFoundError
	assert.ErrorAs(t, err, &pnf)
}

func TestUploadFile_UndetectableDelimiter(t *testing.T) {
	h, gw, _ := newHandler(t, "")
	path := writeFile(t, "countries.txt", "US\tUnited States, Inc\n")

	_, err := h.UploadFile(context.Background(), []string{"Country", path, ""})
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ROW004", re.Code)
	assert.Empty(t, gw.References(core.KindCountry))

	_, err = h.UploadFile(context.Background(), []string{"Country", path, "excel-tab"})
	require.NoError(t, err)
	countries := gw.References(core.KindCountry)
	require.Len(t, countries, 1)
	assert.Equal(t, "United States, Inc", countries[0].Name)
}

func TestUploadFile_Errors(t *testing.T) {
	h, _, _ := newHandler(t, "")

	_, err := h.UploadFile(context.Background(), []string{"Country", filepath.Join(t.TempDir(), "missing.csv"), ""})
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeFile(t, "countries.csv", "US,United States\n")
	_, err = h.UploadFile(context.Background(), []string{"Country", path, "fancy"})
	assert.ErrorContains(t, err, `unknown dialect "fancy"`)

	_, err = h.UploadFile(context.Background(), []string{"Country"})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestUploadPrices(t *testing.T) {
	h, gw, out := newHandler(t, "")
	countries := writeFile(t, "countries.csv", "US,United States\n")
	_, err := h.UploadFile(context.Background(), []string{"Country", countries, ""})
	require.NoError(t, err)

	prices := writeFile(t, "prices.csv",
		"kind,date,country,state,city,price,currency,quantity,unit\n"+
			"food,2024-01-05,US,,,2.50,USD,500,g\n")
	sum, err := h.UploadPrices(context.Background(), prices, "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Created)
	assert.Contains(t, out.String(), "Uploaded 1 price observations")

	list, err := gw.ListPriceObservations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "g", list[0].Unit)

	bad := writeFile(t, "bad.csv",
		"kind,date,country,state,city,price,currency,quantity,unit\n"+
			"food,2024-01-05,FR,,,2.50,EUR,1,kg\n")
	_, err = h.UploadPrices(context.Background(), bad, "")
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, core.KindPrice, re.Kind)
	assert.Equal(t, 2, re.Line)
	assert.Equal(t, "REF001", re.Code)
}

func TestUploadPrices_LowerCaseCountry(t *testing.T) {
	h, gw, _ := newHandler(t, "")
	countries := writeFile(t, "countries.csv", "us,United States\n")
	_, err := h.UploadFile(context.Background(), []string{"Country", countries, ""})
	require.NoError(t, err)

	prices := writeFile(t, "prices.csv",
		"kind,date,country,state,city,price,currency,quantity,unit\n"+
			"food,2024-01-10,us,,,2,USD,1,kg\n")
	sum, err := h.UploadPrices(context.Background(), prices, "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Created)

	list, err := gw.ListPriceObservations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "US", list[0].Country)
}

func TestConversionCommands(t *testing.T) {
	h, _, out := newHandler(t, "")
	ctx := context.Background()
	uploadUnits(t, h)

	_, err := h.AddUnitConversion(ctx, "kg", "g", "1000")
	require.NoError(t, err)
	got, err := h.ConvertUnit(ctx, "2.5", "kg", "g")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(2500)), "got %s", got)

	_, err = h.AddRate(ctx, "eur", "usd", "1.10", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	got, err = h.ConvertCurrency(ctx, "10", "EUR", "usd", "2024-01-15")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(11)), "got %s", got)

	assert.Contains(t, out.String(), "2.5 kg = 2500 g")
	assert.Contains(t, out.String(), "on 2024-01-15")
}

func TestConversionCommands_Errors(t *testing.T) {
	h, _, _ := newHandler(t, "")
	ctx := context.Background()
	uploadUnits(t, h)

	tests := []struct {
		name string
		run  func() error
		code string
	}{
		{"zero factor", func() error { _, err := h.AddUnitConversion(ctx, "kg", "g", "0"); return err }, "CNV004"},
		{"same unit", func() error { _, err := h.AddUnitConversion(ctx, "kg", "kg", "1"); return err }, "CNV004"},
		{"bad factor", func() error { _, err := h.AddUnitConversion(ctx, "kg", "g", "lots"); return err }, "ROW003"},
		{"unregistered unit", func() error { _, err := h.AddUnitConversion(ctx, "lb", "kg", "0.45"); return err }, "CNV004"},
		{"mass to volume", func() error { _, err := h.AddUnitConversion(ctx, "kg", "l", "1"); return err }, "CNV004"},
		{"negative rate", func() error {
			_, err := h.AddRate(ctx, "EUR", "USD", "-1", "2024-01-01", "2024-01-31")
			return err
		}, "CNV004"},
		{"ambiguous date", func() error {
			_, err := h.AddRate(ctx, "EUR", "USD", "1", "01/02/2024", "2024-01-31")
			return err
		}, "ROW003"},
		{"no path", func() error { _, err := h.ConvertUnit(ctx, "1", "lb", "kg"); return err }, "CNV001"},
		{"no rate", func() error { _, err := h.ConvertCurrency(ctx, "1", "GBP", "USD", "2024-01-01"); return err }, "CNV002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Equal(t, tt.code, core.MapError(err).Code, "error: %v", err)
		})
	}
}

func TestNormalize(t *testing.T) {
	h, gw, out := newHandler(t, "")
	ctx := context.Background()
	uploadUnits(t, h)

	countries := writeFile(t, "countries.csv", "DE,Germany\n")
	_, err := h.UploadFile(ctx, []string{"Country", countries, ""})
	require.NoError(t, err)
	prices := writeFile(t, "prices.csv",
		"kind,date,country,state,city,price,currency,quantity,unit\n"+
			"food,2024-01-05,DE,,,2.00,EUR,500,g\n")
	_, err = h.UploadPrices(ctx, prices, "")
	require.NoError(t, err)

	_, err = h.AddUnitConversion(ctx, "g", "kg", "0.001")
	require.NoError(t, err)
	_, err = h.AddRate(ctx, "EUR", "USD", "1.10", "2024-01-01", "2024-01-31")
	require.NoError(t, err)

	result, err := h.Normalize(ctx, core.Target{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Observations)
	assert.Equal(t, 1, result.Normalized)
	assert.Contains(t, out.String(), "Normalized 1 of 1 observations into USD [kg l]")

	list, err := gw.ListPriceObservations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Canonical)
	c := list[0].Canonical
	assert.Equal(t, "USD", c.Currency)
	assert.Equal(t, "kg", c.Unit)
	assert.True(t, c.Price.Equal(decimal.RequireFromString("2.2")), "price %s", c.Price)
	assert.True(t, c.Quantity.Equal(decimal.RequireFromString("0.5")), "quantity %s", c.Quantity)

	_, err = h.Normalize(ctx, core.Target{Currency: "gbp"})
	var noRate *core.NoRateForDateError
	assert.ErrorAs(t, err, &noRate)
}

func TestCreateUser(t *testing.T) {
	h, _, out := newHandler(t, "ana@Example.com\ncorrect horse\nana\n")

	u, err := h.CreateUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, "ana", u.Username)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsStaff)
	assert.False(t, u.IsSuperuser)
	assert.True(t, u.CheckPassword("correct horse"))
	assert.Equal(t, "test", u.Audit.CreatedBy)

	prompts := out.String()
	assert.True(t, strings.Index(prompts, "email: ") < strings.Index(prompts, "password: "))
	assert.True(t, strings.Index(prompts, "password: ") < strings.Index(prompts, "username: "))
	assert.Contains(t, prompts, "User created")
}

func TestCreateUser_Rejected(t *testing.T) {
	h, gw, _ := newHandler(t, "not-an-email\ncorrect horse\nana\n")
	_, err := h.CreateUser(context.Background())
	var fe *account.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Email", fe.Field)

	h = New(gw, nil, testConfig(), strings.NewReader("a@b.co\ncorrect horse\nana\nc@d.co\ncorrect horse\nana\n"), &bytes.Buffer{})
	_, err = h.CreateUser(context.Background())
	require.NoError(t, err)
	_, err = h.CreateUser(context.Background())
	var dup *core.DuplicateKeyError
	assert.ErrorAs(t, err, &dup)

	h, _, _ = newHandler(t, "a@b.co\n")
	_, err = h.CreateUser(context.Background())
	assert.True(t, errors.Is(err, ErrNoInput))
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("  first  \nlast"), &out)

	got, err := p.Ask("one")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = p.Ask("two")
	require.NoError(t, err)
	assert.Equal(t, "last", got, "final line without newline")

	_, err = p.Ask("three")
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Equal(t, "one: two: three: ", out.String())
}
