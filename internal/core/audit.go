package core

import (
	"context"
	"time"
)

// SystemActor is stamped when neither the context nor the Auditor names an actor.
const SystemActor = "system"

// Auditor is the single stamping policy for every gateway write.
// Gateways call Created on insert and Updated on every later change.
type Auditor struct {
	DefaultActor string
	Now          func() time.Time
}

// NewAuditor returns an Auditor with a wall clock.
func NewAuditor(defaultActor string) Auditor {
	return Auditor{DefaultActor: defaultActor, Now: time.Now}
}

func (a Auditor) actor(ctx context.Context) string {
	if v := ActorFromContext(ctx); v != "" {
		return v
	}
	if a.DefaultActor != "" {
		return a.DefaultActor
	}
	return SystemActor
}

func (a Auditor) now() time.Time {
	if a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now().UTC()
}

// Created returns the stamp for a new row: creator and updater are the same.
func (a Auditor) Created(ctx context.Context) Audit {
	who, at := a.actor(ctx), a.now()
	return Audit{CreatedBy: who, UpdatedBy: who, CreatedAt: at, UpdatedAt: at}
}

// Updated returns prev with the updater and update time replaced.
// The creator stamp is never changed.
func (a Auditor) Updated(ctx context.Context, prev Audit) Audit {
	prev.UpdatedBy = a.actor(ctx)
	prev.UpdatedAt = a.now()
	return prev
}
