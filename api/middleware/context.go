package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// IdentityFromContext returns the wallet identity captured for the request.
func IdentityFromContext(ctx context.Context) types.Identity {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxIdentity).(types.Identity); ok {
		return v
	}
	return ""
}

// WithIdentity injects the wallet identity into the context.
func WithIdentity(ctx context.Context, identity types.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, identity)
}

// IdentitySource reports the wallet identity currently connected.
type IdentitySource interface {
	CurrentIdentity() (types.Identity, bool)
}

// WalletContext captures the identity connected when the request arrived so
// handlers and idempotency scopes see one consistent value.
func WalletContext(wallet IdentitySource, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if wallet == nil {
				next.ServeHTTP(w, r)
				return
			}
			identity, ok := wallet.CurrentIdentity()
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithIdentity(r.Context(), identity)
			if logg != nil {
				ctx = logg.WithIdentity(ctx, identity.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
