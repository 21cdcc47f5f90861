// Package store implements the persistence gateway on PostgreSQL and in memory.
//
// Both implementations enforce the same uniqueness scopes:
//
//	Country, Language  iso_code
//	State              (country, iso_code)
//	City               (state, iso_code)
//	UnitType           code
//	Unit               iso_code, across unit types
//	UnitConversion     (unit, to_unit), both registered Units of one UnitType
//	User               email (case-insensitive), username
//
// and stamp audit fields through a single core.Auditor.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/pricetracker/internal/account"
	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type scopedKey struct {
	kind   core.Kind
	parent uuid.UUID
	iso    string
}

type naturalKey struct {
	kind core.Kind
	iso  string
}

type unitKey struct{ unit, toUnit string }

// Memory is an in-process gateway. Reference, price and user data share one
// lock; the conversion tables have their own so a snapshot read never waits
// on ingestion.
type Memory struct {
	auditor core.Auditor

	mu      sync.RWMutex
	refs    map[uuid.UUID]core.ReferenceEntity
	scoped  map[scopedKey]uuid.UUID
	natural map[naturalKey][]uuid.UUID
	prices  map[uuid.UUID]core.PriceObservation
	order   []uuid.UUID
	users   map[uuid.UUID]account.User
	emails  map[string]uuid.UUID
	names   map[string]uuid.UUID

	convMu sync.RWMutex
	units  map[unitKey]core.UnitConversion
	rates  []core.CurrencyConversion
}

var (
	_ core.Gateway  = (*Memory)(nil)
	_ account.Store = (*Memory)(nil)
)

// NewMemory returns an empty in-memory gateway.
func NewMemory(auditor core.Auditor) *Memory {
	return &Memory{
		auditor: auditor,
		refs:    make(map[uuid.UUID]core.ReferenceEntity),
		scoped:  make(map[scopedKey]uuid.UUID),
		natural: make(map[naturalKey][]uuid.UUID),
		prices:  make(map[uuid.UUID]core.PriceObservation),
		users:   make(map[uuid.UUID]account.User),
		emails:  make(map[string]uuid.UUID),
		names:   make(map[string]uuid.UUID),
		units:   make(map[unitKey]core.UnitConversion),
	}
}

// FindByNaturalKey implements core.ReferenceStore.
func (m *Memory) FindByNaturalKey(ctx context.Context, kind core.Kind, isoCode string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.natural[naturalKey{kind, isoCode}]
	switch len(ids) {
	case 0:
		return uuid.Nil, core.ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return uuid.Nil, core.ErrAmbiguousKey
	}
}

// Create implements core.ReferenceStore.
func (m *Memory) Create(ctx context.Context, rec core.ResolvedRecord) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	spec, ok := core.LookupKind(rec.Kind)
	if !ok {
		return uuid.Nil, &core.UnknownKindError{Name: string(rec.Kind), Supported: core.Kinds()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if spec.HasParent() {
		parent, ok := m.refs[rec.ParentID]
		if !ok || parent.Kind != spec.Parent {
			return uuid.Nil, fmt.Errorf("insert %s %q: violates foreign key constraint on %s %s",
				rec.Kind, rec.ISOCode, spec.Parent, rec.ParentID)
		}
	}

	key := scopedKey{rec.Kind, rec.ParentID, rec.ISOCode}
	if _, taken := m.scoped[key]; taken {
		return uuid.Nil, &core.DuplicateKeyError{Entity: rec.Kind.String(), Key: scopeLabel(rec)}
	}
	nk := naturalKey{rec.Kind, rec.ISOCode}
	if spec.UniqueCode && len(m.natural[nk]) > 0 {
		return uuid.Nil, &core.DuplicateKeyError{Entity: rec.Kind.String(), Key: rec.ISOCode}
	}

	ent := core.ReferenceEntity{
		ID:       uuid.New(),
		Kind:     rec.Kind,
		ISOCode:  rec.ISOCode,
		Name:     rec.Name,
		ParentID: rec.ParentID,
		Metric:   rec.Metric,
		Audit:    m.auditor.Created(ctx),
	}
	m.refs[ent.ID] = ent
	m.scoped[key] = ent.ID
	m.natural[nk] = append(m.natural[nk], ent.ID)
	return ent.ID, nil
}

// Reference returns a stored reference entity by id.
func (m *Memory) Reference(id uuid.UUID) (core.ReferenceEntity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, ok := m.refs[id]
	return ent, ok
}

// References returns every stored entity of kind, ordered by iso code.
func (m *Memory) References(kind core.Kind) []core.ReferenceEntity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.ReferenceEntity
	for _, ent := range m.refs {
		if ent.Kind == kind {
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISOCode < out[j].ISOCode })
	return out
}

// FindConversion implements core.ConversionStore.
func (m *Memory) FindConversion(ctx context.Context, unit, toUnit string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}
	m.convMu.RLock()
	defer m.convMu.RUnlock()
	c, ok := m.units[unitKey{unit, toUnit}]
	if !ok {
		return decimal.Decimal{}, core.ErrNotFound
	}
	return c.Factor, nil
}

// FindRates implements core.ConversionStore.
func (m *Memory) FindRates(ctx context.Context, from, to string, date time.Time) ([]core.CurrencyConversion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.convMu.RLock()
	defer m.convMu.RUnlock()
	var out []core.CurrencyConversion
	for _, r := range m.rates {
		if r.From == from && r.To == to && r.Covers(date) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateFrom.Before(out[j].DateFrom) })
	return out, nil
}

// AddUnitConversion implements core.ConversionStore.
func (m *Memory) AddUnitConversion(ctx context.Context, c core.UnitConversion) (uuid.UUID, error) {
	if err := core.ValidateUnitConversion(c); err != nil {
		return uuid.Nil, err
	}
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if err := core.ValidateUnitTypes(c, m.unitTypes(c.Unit, c.ToUnit)); err != nil {
		return uuid.Nil, err
	}
	m.convMu.Lock()
	defer m.convMu.Unlock()

	key := unitKey{c.Unit, c.ToUnit}
	if _, taken := m.units[key]; taken {
		return uuid.Nil, &core.DuplicateKeyError{Entity: "UnitConversion", Key: c.Unit + "->" + c.ToUnit}
	}
	c.ID = uuid.New()
	c.Audit = m.auditor.Created(ctx)
	m.units[key] = c
	return c.ID, nil
}

// unitTypes maps each registered unit among codes to its unit type code.
func (m *Memory) unitTypes(codes ...string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(codes))
	for _, code := range codes {
		ids := m.natural[naturalKey{core.KindUnit, code}]
		if len(ids) != 1 {
			continue
		}
		if ut, ok := m.refs[m.refs[ids[0]].ParentID]; ok {
			out[code] = ut.ISOCode
		}
	}
	return out
}

// AddCurrencyConversion implements core.ConversionStore.
func (m *Memory) AddCurrencyConversion(ctx context.Context, c core.CurrencyConversion) (uuid.UUID, error) {
	if err := core.ValidateCurrencyConversion(c); err != nil {
		return uuid.Nil, err
	}
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	m.convMu.Lock()
	defer m.convMu.Unlock()

	c.ID = uuid.New()
	c.DateFrom, c.DateTo = core.DateOnly(c.DateFrom), core.DateOnly(c.DateTo)
	c.Audit = m.auditor.Created(ctx)
	m.rates = append(m.rates, c)
	return c.ID, nil
}

// LoadConversions implements core.ConversionStore.
func (m *Memory) LoadConversions(ctx context.Context) (*core.ConversionSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.convMu.RLock()
	defer m.convMu.RUnlock()

	units := make([]core.UnitConversion, 0, len(m.units))
	for _, u := range m.units {
		units = append(units, u)
	}
	return core.NewConversionSet(units, m.rates), nil
}

// AddPriceObservation implements core.PriceStore.
func (m *Memory) AddPriceObservation(ctx context.Context, obs core.PriceObservation) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	obs.ID = uuid.New()
	obs.Date = core.DateOnly(obs.Date)
	obs.Audit = m.auditor.Created(ctx)
	obs.Canonical = nil
	m.prices[obs.ID] = obs
	m.order = append(m.order, obs.ID)
	return obs.ID, nil
}

// ListPriceObservations implements core.PriceStore, in insertion order.
func (m *Memory) ListPriceObservations(ctx context.Context) ([]core.PriceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.PriceObservation, 0, len(m.order))
	for _, id := range m.order {
		obs := m.prices[id]
		if obs.Canonical != nil {
			c := *obs.Canonical
			obs.Canonical = &c
		}
		out = append(out, obs)
	}
	return out, nil
}

// SaveCanonical implements core.PriceStore.
func (m *Memory) SaveCanonical(ctx context.Context, id uuid.UUID, c core.Canonical) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	obs, ok := m.prices[id]
	if !ok {
		return fmt.Errorf("price observation %s: %w", id, core.ErrNotFound)
	}
	obs.Canonical = &c
	obs.Audit = m.auditor.Updated(ctx, obs.Audit)
	m.prices[id] = obs
	return nil
}

// CreateUser implements account.Store.
func (m *Memory) CreateUser(ctx context.Context, u *account.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, taken := m.emails[email]; taken {
		return &core.DuplicateKeyError{Entity: "User", Key: u.Email}
	}
	if _, taken := m.names[u.Username]; taken {
		return &core.DuplicateKeyError{Entity: "User", Key: u.Username}
	}

	u.ID = uuid.New()
	u.Audit = m.auditor.Created(ctx)
	m.users[u.ID] = *u
	m.emails[email] = u.ID
	m.names[u.Username] = u.ID
	return nil
}

func scopeLabel(rec core.ResolvedRecord) string {
	if rec.ParentKey != "" {
		return rec.ParentKey + "/" + rec.ISOCode
	}
	return rec.ISOCode
}
