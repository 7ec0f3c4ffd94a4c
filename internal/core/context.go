package core

import "context"

type contextKey string

const actorIDContextKey contextKey = "actorID"

// ContextWithActorID tags ctx with the executing actor.
func ContextWithActorID(ctx context.Context, actorID int) context.Context {
	return context.WithValue(ctx, actorIDContextKey, actorID)
}

// ActorIDFromContext returns the actor tagged on ctx, or 0.
func ActorIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(actorIDContextKey).(int); ok {
		return id
	}
	return 0
}
