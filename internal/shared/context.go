package shared

import "context"

type contextKey string

const actorContextKey contextKey = "actor"

// ContextWithActor stores the acting user id for audit and step-up checks.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey, userID)
}

// ActorFromContext returns the acting user id, zero when unauthenticated.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey).(int64)
	return id
}
