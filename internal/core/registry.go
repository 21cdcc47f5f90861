package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// KindSpec fixes the row layout of a reference kind.
type KindSpec struct {
	Kind    Kind
	Columns []string // Ordered field names of a row
	Parent  Kind     // Owning kind, empty for root kinds
	Order   int      // Load order: parents have lower values than children

	// UpperCase folds iso codes and parent keys to upper case on parse.
	UpperCase bool
	// UniqueCode makes iso_code unique across parents, not only within one.
	UniqueCode bool
}

// HasParent reports whether records of this kind must resolve a parent.
func (s KindSpec) HasParent() bool { return s.Parent != "" }

// HasMetric reports whether rows of this kind end with an is_metric column.
func (s KindSpec) HasMetric() bool {
	return len(s.Columns) > 0 && s.Columns[len(s.Columns)-1] == "is_metric"
}

// NormalizeCode applies the kind's case rule to an iso code or parent key.
func (s KindSpec) NormalizeCode(code string) string {
	if s.UpperCase {
		return strings.ToUpper(code)
	}
	return code
}

var (
	kindRegistry   = make(map[Kind]KindSpec)
	kindRegistryMu sync.RWMutex
)

func init() {
	RegisterKind(KindSpec{Kind: KindCountry, Columns: []string{"iso_code", "name"}, Order: 0, UpperCase: true})
	RegisterKind(KindSpec{Kind: KindLanguage, Columns: []string{"iso_code", "name"}, Order: 0})
	RegisterKind(KindSpec{Kind: KindState, Columns: []string{"country_iso_code", "iso_code", "name"}, Parent: KindCountry, Order: 1, UpperCase: true})
	RegisterKind(KindSpec{Kind: KindCity, Columns: []string{"state_iso_code", "iso_code", "name"}, Parent: KindState, Order: 2, UpperCase: true})

	// Unit codes are case sensitive (mg, Mg).
	RegisterKind(KindSpec{Kind: KindUnitType, Columns: []string{"code", "name"}, Order: 3})
	RegisterKind(KindSpec{Kind: KindUnit, Columns: []string{"unit_type_code", "iso_code", "name", "is_metric"}, Parent: KindUnitType, Order: 4, UniqueCode: true})
}

// RegisterKind adds a kind to the registry.
// Panics if the kind is already registered or its parent is unknown.
func RegisterKind(spec KindSpec) {
	kindRegistryMu.Lock()
	defer kindRegistryMu.Unlock()

	if _, exists := kindRegistry[spec.Kind]; exists {
		panic(fmt.Sprintf("kind already registered: %s", spec.Kind))
	}
	if spec.Parent != "" {
		if _, ok := kindRegistry[spec.Parent]; !ok {
			panic(fmt.Sprintf("kind %s registered before its parent %s", spec.Kind, spec.Parent))
		}
	}

	kindRegistry[spec.Kind] = spec
}

// LookupKind returns the spec for a kind.
func LookupKind(k Kind) (KindSpec, bool) {
	kindRegistryMu.RLock()
	defer kindRegistryMu.RUnlock()

	spec, ok := kindRegistry[k]
	return spec, ok
}

// ParseKind converts a caller-supplied class name into a registered Kind.
// Matching is case-insensitive; anything else is an UnknownKindError.
func ParseKind(name string) (Kind, error) {
	name = strings.TrimSpace(name)

	kindRegistryMu.RLock()
	defer kindRegistryMu.RUnlock()

	for k := range kindRegistry {
		if strings.EqualFold(string(k), name) {
			return k, nil
		}
	}
	return "", &UnknownKindError{Name: name, Supported: sortedKindsLocked()}
}

// Kinds returns all registered kinds sorted by load order, then name.
func Kinds() []Kind {
	kindRegistryMu.RLock()
	defer kindRegistryMu.RUnlock()
	return sortedKindsLocked()
}

func sortedKindsLocked() []Kind {
	specs := make([]KindSpec, 0, len(kindRegistry))
	for _, s := range kindRegistry {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Order != specs[j].Order {
			return specs[i].Order < specs[j].Order
		}
		return specs[i].Kind < specs[j].Kind
	})

	kinds := make([]Kind, len(specs))
	for i, s := range specs {
		kinds[i] = s.Kind
	}
	return kinds
}
