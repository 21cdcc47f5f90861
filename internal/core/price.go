package core

import (
	"fmt"
	"sort"
	"strings"
)

// PriceKind identifies what a price observation measures.
type PriceKind string

const (
	PriceFood        PriceKind = "food"
	PriceHousing     PriceKind = "housing"
	PriceGasoline    PriceKind = "gasoline"
	PriceTransport   PriceKind = "transport"
	PriceMedicine    PriceKind = "medicine"
	PriceElectricity PriceKind = "electricity"
	PriceGas         PriceKind = "gas"
	PriceWater       PriceKind = "water"
	PriceInternet    PriceKind = "internet"
)

func (k PriceKind) String() string { return string(k) }

// Measure names the quantity field a price kind is recorded against.
type Measure string

const (
	MeasureWeight      Measure = "weight"
	MeasureVolume      Measure = "volume"
	MeasureDistance    Measure = "distance"
	MeasureConsumption Measure = "consumption"
	MeasureArea        Measure = "area"
	MeasureCount       Measure = "count"
)

// PriceKindInfo is the static classification of a price kind.
type PriceKindInfo struct {
	Category    string
	Subcategory string
	Measure     Measure
}

var priceKinds = map[PriceKind]PriceKindInfo{
	PriceFood:        {Category: "Food", Subcategory: "Groceries", Measure: MeasureWeight},
	PriceMedicine:    {Category: "Health", Subcategory: "Medicine", Measure: MeasureCount},
	PriceHousing:     {Category: "Housing", Subcategory: "Rent", Measure: MeasureArea},
	PriceGasoline:    {Category: "Transport", Subcategory: "Fuel", Measure: MeasureVolume},
	PriceTransport:   {Category: "Transport", Subcategory: "Public transport", Measure: MeasureDistance},
	PriceElectricity: {Category: "Utilities", Subcategory: "Electricity", Measure: MeasureConsumption},
	PriceGas:         {Category: "Utilities", Subcategory: "Gas", Measure: MeasureConsumption},
	PriceWater:       {Category: "Utilities", Subcategory: "Water", Measure: MeasureVolume},
	PriceInternet:    {Category: "Utilities", Subcategory: "Internet", Measure: MeasureConsumption},
}

// PriceKinds returns all price kinds sorted by name.
func PriceKinds() []PriceKind {
	out := make([]PriceKind, 0, len(priceKinds))
	for k := range priceKinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PriceKindNames returns PriceKinds as strings, for enum validation.
func PriceKindNames() []string {
	kinds := PriceKinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// LookupPriceKind returns the classification of k.
func LookupPriceKind(k PriceKind) (PriceKindInfo, bool) {
	info, ok := priceKinds[k]
	return info, ok
}

// ParsePriceKind maps a case-insensitive name to a PriceKind.
func ParsePriceKind(name string) (PriceKind, error) {
	k := PriceKind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := priceKinds[k]; !ok {
		return "", fmt.Errorf("unknown price kind %q: must be one of %s", name, strings.Join(PriceKindNames(), ", "))
	}
	return k, nil
}
