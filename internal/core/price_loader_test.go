package core_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/JonMunkholm/pricetracker/internal/store"
)

const priceHeader = "kind,date,country,state,city,price,currency,quantity,unit\n"

func gatewayWithCountries(t *testing.T, isos ...string) *store.Memory {
	t.Helper()
	gw := newGateway()
	var b strings.Builder
	for _, iso := range isos {
		b.WriteString(iso + "," + iso + " name\n")
	}
	_, err := runLoad(t, gw, nil, core.KindCountry, b.String())
	require.NoError(t, err)
	return gw
}

func TestPriceLoader_Run(t *testing.T) {
	gw := gatewayWithCountries(t, "US", "DE")
	rec := newCountingRecorder()

	input := priceHeader +
		"Food,2024-01-05,us,ca,sf,$2.50,usd,500,g\n" +
		"\n" +
		"gasoline,2024/01/06,DE,,,1.85,EUR,1,l\n"

	sum, err := core.NewPriceLoader(gw, rec).Run(context.Background(), strings.NewReader(input), core.Dialect{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, core.KindPrice, sum.Kind)
	assert.Equal(t, int64(len(input)), sum.Bytes)
	assert.Equal(t, 2, rec.created[core.KindPrice])

	list, err := gw.ListPriceObservations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	first := list[0]
	assert.Equal(t, core.PriceFood, first.Kind)
	assert.True(t, first.Date.Equal(day("2024-01-05")))
	assert.Equal(t, "US", first.Country)
	assert.Equal(t, "CA", first.State)
	assert.Equal(t, "SF", first.City)
	assert.True(t, first.Price.Equal(dec("2.5")))
	assert.Equal(t, "USD", first.Currency)
	assert.True(t, first.Quantity.Equal(dec("500")))
	assert.Equal(t, "g", first.Unit)
	assert.Nil(t, first.Canonical)

	assert.Equal(t, core.PriceGasoline, list[1].Kind)
	assert.Empty(t, list[1].State)
}

func TestPriceLoader_Semicolons(t *testing.T) {
	gw := gatewayWithCountries(t, "FR")
	input := "kind;date;country;price;currency;quantity;unit\nfood;2024-01-05;FR;3,10;EUR;1;kg\n"

	_, err := core.NewPriceLoader(gw, nil).Run(context.Background(), strings.NewReader(input), core.Dialect{})
	require.NoError(t, err)

	list, err := gw.ListPriceObservations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Price.Equal(dec("310")), "comma is a thousands separator, got %s", list[0].Price)
}

func TestPriceLoader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
		line  int
	}{
		{"empty file", "", "ROW003", 1},
		{"missing columns", "kind,date,country\nfood,2024-01-05,US\n", "ROW003", 1},
		{"unknown country", priceHeader + "food,2024-01-05,XX,,,1,USD,1,kg\n", "REF001", 2},
		{"bad date", priceHeader + "food,2024-01-05,US,,,1,USD,1,kg\nfood,01/02/2024,US,,,1,USD,1,kg\n", "ROW003", 3},
		{"unknown price kind", priceHeader + "toys,2024-01-05,US,,,1,USD,1,kg\n", "ROW003", 2},
		{"negative price", priceHeader + "food,2024-01-05,US,,,(1.00),USD,1,kg\n", "CNV004", 2},
		{"zero quantity", priceHeader + "food,2024-01-05,US,,,1,USD,0,kg\n", "CNV004", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := gatewayWithCountries(t, "US")
			rec := newCountingRecorder()

			_, err := core.NewPriceLoader(gw, rec).Run(context.Background(), strings.NewReader(tt.input), core.Dialect{})
			require.Error(t, err)
			assert.Equal(t, tt.code, core.MapError(err).Code, "error: %v", err)
			assert.Equal(t, 1, rec.failures[tt.code])

			var rowErr *core.RowError
			require.ErrorAs(t, err, &rowErr)
			assert.Equal(t, tt.line, rowErr.Line)
		})
	}
}

func TestPriceLoader_UnknownCountryIsPriceParentError(t *testing.T) {
	gw := gatewayWithCountries(t, "US")
	input := priceHeader + "food,2024-01-05,US,,,1,USD,1,kg\nfood,2024-01-05,XX,,,1,USD,1,kg\n"

	_, err := core.NewPriceLoader(gw, nil).Run(context.Background(), strings.NewReader(input), core.Dialect{})
	var pnf *core.ParentNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, core.KindPrice, pnf.Kind)
	assert.Equal(t, core.KindCountry, pnf.ParentKind)
	assert.Equal(t, "XX", pnf.Key)

	list, err := gw.ListPriceObservations(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1, "rows before the failure stay stored")
}

func TestPriceLoader_Cancelled(t *testing.T) {
	gw := gatewayWithCountries(t, "US")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := core.NewPriceLoader(gw, nil).Run(ctx, strings.NewReader(priceHeader+"food,2024-01-05,US,,,1,USD,1,kg\n"), core.Dialect{})
	assert.ErrorIs(t, err, context.Canceled)
}
