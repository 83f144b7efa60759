package domain

import "context"

// Actor is the identity resolved by the authentication layer. The ledger
// trusts it as given.
type Actor struct {
	TenantID string
	ActorID  string
	Role     string
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor carried by ctx. A missing tenant is an error:
// every ledger key is tenant scoped.
func ActorFrom(ctx context.Context) (Actor, error) {
	a, _ := ctx.Value(actorKey{}).(Actor)
	if a.TenantID == "" {
		return Actor{}, ErrNoTenant
	}
	return a, nil
}
