package actorctx

import (
	"context"

	"github.com/geocoder89/authhub/internal/auth"
)

type ctxKey struct{}

// WithIdentity attaches the verified caller to ctx for code below the transport layer.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	v, ok := ctx.Value(ctxKey{}).(auth.Identity)

	return v, ok && v.ID != ""
}

func AccountIDFrom(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.ID, ok
}
