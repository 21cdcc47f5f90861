package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// stubStore answers natural-key lookups from a fixed table.
type stubStore struct {
	ids map[Kind]map[string]uuid.UUID
	err error
}

func (s *stubStore) FindByNaturalKey(_ context.Context, kind Kind, iso string) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	id, ok := s.ids[kind][iso]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}

func (s *stubStore) Create(context.Context, ResolvedRecord) (uuid.UUID, error) {
	return uuid.New(), nil
}

func TestResolver_Resolve(t *testing.T) {
	us, ca := uuid.New(), uuid.New()
	store := &stubStore{ids: map[Kind]map[string]uuid.UUID{
		KindCountry: {"US": us},
		KindState:   {"CA": ca},
	}}
	r := NewResolver(store)
	ctx := context.Background()

	tests := []struct {
		name   string
		rec    Record
		parent uuid.UUID
	}{
		{"country passes through", Record{Kind: KindCountry, ISOCode: "US", Name: "United States"}, uuid.Nil},
		{"language passes through", Record{Kind: KindLanguage, ISOCode: "es", Name: "Spanish"}, uuid.Nil},
		{"state resolves country", Record{Kind: KindState, ISOCode: "CA", Name: "California", ParentKey: "US"}, us},
		{"city resolves state", Record{Kind: KindCity, ISOCode: "SF", Name: "San Francisco", ParentKey: "CA"}, ca},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.rec)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.ParentID != tt.parent || got.Record != tt.rec {
				t.Errorf("Resolve() = %+v", got)
			}
		})
	}
}

func TestResolver_Errors(t *testing.T) {
	ctx := context.Background()
	empty := &stubStore{}

	_, err := NewResolver(empty).Resolve(ctx, Record{Kind: KindState, ISOCode: "CA", Name: "California", ParentKey: "XX", Line: 3})
	var pnf *ParentNotFoundError
	if !errors.As(err, &pnf) {
		t.Fatalf("got %v, want ParentNotFoundError", err)
	}
	if pnf.Key != "XX" || pnf.ParentKind != KindCountry || pnf.Line != 3 {
		t.Errorf("got %+v", pnf)
	}

	amb := &stubStore{err: ErrAmbiguousKey}
	_, err = NewResolver(amb).Resolve(ctx, Record{Kind: KindCity, ISOCode: "SF", Name: "San Francisco", ParentKey: "CA"})
	var ape *AmbiguousParentError
	if !errors.As(err, &ape) {
		t.Fatalf("got %v, want AmbiguousParentError", err)
	}

	boom := errors.New("connection reset")
	_, err = NewResolver(&stubStore{err: boom}).Resolve(ctx, Record{Kind: KindCity, ISOCode: "SF", Name: "x", ParentKey: "CA"})
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped store error", err)
	}

	_, err = NewResolver(empty).Resolve(ctx, Record{Kind: KindCountry, ISOCode: "US", Name: "x", ParentKey: "NA"})
	var mre *MalformedRowError
	if !errors.As(err, &mre) {
		t.Errorf("root kind with parent key: got %v, want MalformedRowError", err)
	}

	_, err = NewResolver(empty).Resolve(ctx, Record{Kind: KindState, ISOCode: "CA", Name: "x"})
	if !errors.As(err, &mre) {
		t.Errorf("child without parent key: got %v, want MalformedRowError", err)
	}

	_, err = NewResolver(empty).Resolve(ctx, Record{Kind: "Planet"})
	var uke *UnknownKindError
	if !errors.As(err, &uke) {
		t.Errorf("got %v, want UnknownKindError", err)
	}
}
