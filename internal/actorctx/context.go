package actorctx

import (
	"context"
	"strings"
)

// ActorSystem is the recorded actor when no caller identity is supplied.
const ActorSystem = "system"

type actorContextKey struct{}

// WithActor stores the initiating actor identity in the context.
func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor identity, defaulting to "system".
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ActorSystem
	}
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return ActorSystem
}
