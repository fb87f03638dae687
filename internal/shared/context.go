package shared

import "context"

// Actor identifies the caller of a mutating operation for audit attribution.
// Identity itself is resolved upstream; the core only carries it.
type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Valid reports whether the actor carries an identity.
func (a Actor) Valid() bool {
	return a.ID > 0
}

// RequireActor returns ErrMissingActor when the actor is empty.
func RequireActor(a Actor) error {
	if !a.Valid() {
		return ErrMissingActor
	}
	return nil
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.Valid()
}
