package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user identifier supplied by the
// boundary layer. The core records it in audit fields and nothing else.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user identifier, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
