package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/JonMunkholm/pricetracker/internal/store"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seededGateway holds kg<->g, l->ml, two EUR->USD ranges and one USD->EUR range.
func seededGateway(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	gw := newGateway()
	loadUnits(t, gw)

	for _, c := range []core.UnitConversion{
		{Unit: "kg", ToUnit: "g", Factor: dec("1000")},
		{Unit: "g", ToUnit: "kg", Factor: dec("0.001")},
		{Unit: "l", ToUnit: "ml", Factor: dec("1000")},
	} {
		_, err := gw.AddUnitConversion(ctx, c)
		require.NoError(t, err)
	}
	for _, r := range []core.CurrencyConversion{
		{From: "EUR", To: "USD", DateFrom: day("2024-01-01"), DateTo: day("2024-01-31"), Rate: dec("1.10")},
		{From: "EUR", To: "USD", DateFrom: day("2024-02-01"), DateTo: day("2024-02-29"), Rate: dec("1.08")},
		{From: "USD", To: "EUR", DateFrom: day("2024-01-01"), DateTo: day("2024-01-31"), Rate: dec("0.90")},
	} {
		_, err := gw.AddCurrencyConversion(ctx, r)
		require.NoError(t, err)
	}
	return gw
}

func TestNormalizer_ConvertUnit(t *testing.T) {
	ctx := context.Background()
	n := core.NewNormalizer(seededGateway(t), nil, 0)

	got, err := n.ConvertUnit(ctx, dec("2.5"), "kg", "g")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("2500")), "got %s", got)

	back, err := n.ConvertUnit(ctx, got, "g", "kg")
	require.NoError(t, err)
	assert.True(t, back.Equal(dec("2.5")), "round trip got %s", back)

	same, err := n.ConvertUnit(ctx, dec("7"), "pcs", "pcs")
	require.NoError(t, err)
	assert.True(t, same.Equal(dec("7")))

	_, err = n.ConvertUnit(ctx, dec("1"), "ml", "l")
	var npe *core.NoConversionPathError
	require.ErrorAs(t, err, &npe, "inverse is not implied")
	assert.Equal(t, "ml", npe.Unit)
	assert.Equal(t, "l", npe.ToUnit)

	_, err = n.ConvertUnit(ctx, dec("1"), "kg", "ml")
	require.ErrorAs(t, err, &npe, "no multi-hop search")
}

func TestNormalizer_ConvertCurrency(t *testing.T) {
	ctx := context.Background()
	gw := seededGateway(t)
	n := core.NewNormalizer(gw, nil, 0)

	tests := []struct {
		name string
		date time.Time
		want string
	}{
		{"first range", day("2024-01-15"), "11"},
		{"inclusive end", day("2024-01-31"), "11"},
		{"second range", day("2024-02-01"), "10.8"},
		{"time of day ignored", day("2024-02-10").Add(18 * time.Hour), "10.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.ConvertCurrency(ctx, dec("10"), "EUR", "USD", tt.date)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s, want %s", got, tt.want)
		})
	}

	same, err := n.ConvertCurrency(ctx, dec("3"), "JPY", "JPY", day("1999-01-01"))
	require.NoError(t, err)
	assert.True(t, same.Equal(dec("3")))

	_, err = n.ConvertCurrency(ctx, dec("10"), "EUR", "USD", day("2024-03-01"))
	var nre *core.NoRateForDateError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, "CNV002", core.MapError(err).Code)

	_, err = gw.AddCurrencyConversion(ctx, core.CurrencyConversion{
		From: "EUR", To: "USD", DateFrom: day("2024-01-20"), DateTo: day("2024-02-05"), Rate: dec("1.09"),
	})
	require.NoError(t, err, "overlap is accepted on write")

	_, err = n.ConvertCurrency(ctx, dec("10"), "EUR", "USD", day("2024-01-25"))
	var are *core.AmbiguousRateError
	require.ErrorAs(t, err, &are)
	assert.Equal(t, 2, are.Matches)

	got, err := n.ConvertCurrency(ctx, dec("10"), "EUR", "USD", day("2024-01-10"))
	require.NoError(t, err, "dates outside the overlap still convert")
	assert.True(t, got.Equal(dec("11")))
}

func TestNormalizer_Normalize(t *testing.T) {
	ctx := context.Background()
	n := core.NewNormalizer(seededGateway(t), nil, 0)

	obs := core.PriceObservation{
		Kind: core.PriceFood, Date: day("2024-01-10"), Country: "DE",
		Price: dec("2"), Currency: "EUR", Quantity: dec("500"), Unit: "g",
	}

	tests := []struct {
		name     string
		target   core.Target
		price    string
		currency string
		quantity string
		unit     string
	}{
		{"currency and unit", core.Target{Currency: "USD", Units: []string{"kg", "l"}}, "2.2", "USD", "0.5", "kg"},
		{"keep currency", core.Target{Units: []string{"kg"}}, "2", "EUR", "0.5", "kg"},
		{"keep unit", core.Target{Currency: "USD"}, "2.2", "USD", "500", "g"},
		{"own unit listed", core.Target{Units: []string{"l", "g"}}, "2", "EUR", "500", "g"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := n.Normalize(ctx, obs, tt.target)
			require.NoError(t, err)
			assert.True(t, c.Price.Equal(dec(tt.price)), "price %s", c.Price)
			assert.Equal(t, tt.currency, c.Currency)
			assert.True(t, c.Quantity.Equal(dec(tt.quantity)), "quantity %s", c.Quantity)
			assert.Equal(t, tt.unit, c.Unit)
		})
	}

	_, err := n.Normalize(ctx, obs, core.Target{Units: []string{"l", "m2"}})
	var npe *core.NoConversionPathError
	require.ErrorAs(t, err, &npe)
	assert.Equal(t, "l|m2", npe.ToUnit)
}

func addObservations(t *testing.T, gw core.PriceStore, obs ...core.PriceObservation) {
	t.Helper()
	for _, o := range obs {
		_, err := gw.AddPriceObservation(context.Background(), o)
		require.NoError(t, err)
	}
}

func TestNormalizer_RunPass(t *testing.T) {
	ctx := core.ContextWithActor(context.Background(), "normalizer")
	gw := seededGateway(t)
	rec := newCountingRecorder()

	addObservations(t, gw,
		core.PriceObservation{Kind: core.PriceFood, Date: day("2024-01-10"), Country: "DE", Price: dec("2"), Currency: "EUR", Quantity: dec("500"), Unit: "g"},
		core.PriceObservation{Kind: core.PriceFood, Date: day("2024-02-10"), Country: "DE", Price: dec("5"), Currency: "EUR", Quantity: dec("2"), Unit: "kg"},
		core.PriceObservation{Kind: core.PriceFood, Date: day("2024-02-10"), Country: "US", Price: dec("4"), Currency: "USD", Quantity: dec("1"), Unit: "kg"},
	)

	res, err := core.NewNormalizer(gw, rec, 2).RunPass(ctx, core.Target{Currency: "USD", Units: []string{"kg"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Observations)
	assert.Equal(t, 3, res.Normalized)
	assert.Equal(t, 3, res.Units)
	assert.Equal(t, 3, res.Rates)
	assert.Equal(t, 1, rec.passes)

	list, err := gw.ListPriceObservations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	want := []struct{ price, quantity string }{{"2.2", "0.5"}, {"5.4", "2"}, {"4", "1"}}
	for i, obs := range list {
		require.NotNil(t, obs.Canonical, "observation %d", i)
		assert.True(t, obs.Canonical.Price.Equal(dec(want[i].price)), "observation %d price %s", i, obs.Canonical.Price)
		assert.True(t, obs.Canonical.Quantity.Equal(dec(want[i].quantity)), "observation %d quantity %s", i, obs.Canonical.Quantity)
		assert.Equal(t, "USD", obs.Canonical.Currency)
		assert.Equal(t, "kg", obs.Canonical.Unit)
		assert.Equal(t, "normalizer", obs.Audit.UpdatedBy)
		assert.Equal(t, "test", obs.Audit.CreatedBy)
	}
}

func TestNormalizer_RunPassFailsFast(t *testing.T) {
	gw := seededGateway(t)
	addObservations(t, gw,
		core.PriceObservation{Kind: core.PriceGasoline, Date: day("2024-01-10"), Country: "US", Price: dec("3"), Currency: "USD", Quantity: dec("1"), Unit: "gal"},
	)

	res, err := core.NewNormalizer(gw, nil, 1).RunPass(context.Background(), core.Target{Currency: "USD", Units: []string{"l"}})
	var npe *core.NoConversionPathError
	require.ErrorAs(t, err, &npe)
	assert.Equal(t, "gal", npe.Unit)
	assert.Equal(t, 0, res.Normalized)

	list, err := gw.ListPriceObservations(context.Background())
	require.NoError(t, err)
	assert.Nil(t, list[0].Canonical)
}

func TestNormalizer_RunPassEmpty(t *testing.T) {
	res, err := core.NewNormalizer(newGateway(), nil, 4).RunPass(context.Background(), core.Target{Currency: "USD"})
	require.NoError(t, err)
	assert.Zero(t, res.Observations)
	assert.Zero(t, res.Normalized)
}

func TestNormalizer_RunPassCancelled(t *testing.T) {
	gw := seededGateway(t)
	addObservations(t, gw,
		core.PriceObservation{Kind: core.PriceFood, Date: day("2024-01-10"), Country: "US", Price: dec("1"), Currency: "USD", Quantity: dec("1"), Unit: "kg"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := core.NewNormalizer(gw, nil, 1).RunPass(ctx, core.Target{})
	assert.ErrorIs(t, err, context.Canceled)
}
