package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Resolver attaches parent identities to State, City and Unit records.
type Resolver struct {
	store ReferenceStore
}

// NewResolver returns a resolver that looks parents up in store.
func NewResolver(store ReferenceStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns rec with ParentID populated.
//
// Root kinds pass through untouched and must not carry a parent key. A missing
// parent is a ParentNotFoundError; it is never defaulted or skipped, because
// parents are expected to be loaded by an earlier run.
func (r *Resolver) Resolve(ctx context.Context, rec Record) (ResolvedRecord, error) {
	spec, ok := LookupKind(rec.Kind)
	if !ok {
		return ResolvedRecord{}, &UnknownKindError{Name: string(rec.Kind), Supported: Kinds()}
	}

	if !spec.HasParent() {
		if rec.ParentKey != "" {
			return ResolvedRecord{}, &MalformedRowError{
				Kind: rec.Kind, Line: rec.Line,
				Reason: fmt.Sprintf("%s has no parent but parent key %q was given", rec.Kind, rec.ParentKey),
			}
		}
		return ResolvedRecord{Record: rec}, nil
	}

	if rec.ParentKey == "" {
		return ResolvedRecord{}, &MalformedRowError{
			Kind: rec.Kind, Line: rec.Line,
			Reason: fmt.Sprintf("missing %s key", spec.Parent),
		}
	}

	id, err := r.store.FindByNaturalKey(ctx, spec.Parent, rec.ParentKey)
	switch {
	case errors.Is(err, ErrNotFound):
		return ResolvedRecord{}, &ParentNotFoundError{Kind: rec.Kind, ParentKind: spec.Parent, Key: rec.ParentKey, Line: rec.Line}
	case errors.Is(err, ErrAmbiguousKey):
		return ResolvedRecord{}, &AmbiguousParentError{Kind: rec.Kind, ParentKind: spec.Parent, Key: rec.ParentKey, Line: rec.Line}
	case err != nil:
		return ResolvedRecord{}, fmt.Errorf("resolve %s %q: %w", spec.Parent, rec.ParentKey, err)
	case id == uuid.Nil:
		return ResolvedRecord{}, &ParentNotFoundError{Kind: rec.Kind, ParentKind: spec.Parent, Key: rec.ParentKey, Line: rec.Line}
	}

	return ResolvedRecord{Record: rec, ParentID: id}, nil
}
