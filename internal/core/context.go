package core

import "context"

type contextKey string

const ctxKeyActor contextKey = "audit_actor"

// ContextWithActor records who is performing writes, for audit stamping.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, actor)
}

// ActorFromContext extracts the actor set by ContextWithActor.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyActor).(string); ok {
		return v
	}
	return ""
}
