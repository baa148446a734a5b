package composables

import (
	"context"
	"errors"

	"github.com/realvista/backend/pkg/constants"
	"github.com/realvista/backend/pkg/types"
)

var ErrNoActor = errors.New("no actor found in context")

// WithActor returns a new context carrying the authenticated actor.
// Controllers stash it; services still take the actor as an explicit argument.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actor)
}

func UseActor(ctx context.Context) (types.Actor, error) {
	actor, ok := ctx.Value(constants.ActorKey).(types.Actor)
	if !ok {
		return types.Actor{}, ErrNoActor
	}
	return actor, nil
}
