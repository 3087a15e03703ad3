package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/ledgermart/api/responses"
	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	pkgredis "github.com/angelmondragon/ledgermart/pkg/redis"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 128
	purchaseReplayTTL    = 7 * 24 * time.Hour
)

// acceptedPurchase is what a retry needs to answer exactly like the request
// that created the intent.
type acceptedPurchase struct {
	ItemID   string          `json:"item_id"`
	Buyer    string          `json:"buyer"`
	Location string          `json:"location,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// PurchaseIdempotency remembers accepted purchases per wallet identity and
// Idempotency-Key, so a retried POST gets the original 202 and status URL
// instead of a second intent. Only accepted purchases are remembered: a buyer
// turned away with 428 can connect a wallet and retry under the same key.
func PurchaseIdempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case key == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(key) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long").
					WithDetails(map[string]any{"max": maxIdempotencyKeyLen}))
				return
			}

			itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
			buyer := IdentityFromContext(ctx)
			storeKey := store.IdempotencyKey(purchaseScope(buyer), key)

			stored, err := store.Get(ctx, storeKey)
			if err != nil && !errors.Is(err, redis.Nil) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if stored != "" {
				var accepted acceptedPurchase
				if err := json.Unmarshal([]byte(stored), &accepted); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if accepted.ItemID != itemID {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for another item").
						WithDetails(map[string]any{"item_id": accepted.ItemID}))
					return
				}
				replayAccepted(w, &accepted)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)
			if rec.status != http.StatusAccepted {
				return
			}

			accepted := acceptedPurchase{
				ItemID:   itemID,
				Buyer:    buyer.String(),
				Location: rec.Header().Get("Location"),
			}
			if rec.body.Len() > 0 && json.Valid(rec.body.Bytes()) {
				accepted.Body = json.RawMessage(rec.body.Bytes())
			}
			payload, err := json.Marshal(accepted)
			if err != nil {
				logg.Error(ctx, "marshal idempotency record", err)
				return
			}
			if _, err := store.SetNX(ctx, storeKey, string(payload), purchaseReplayTTL); err != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func purchaseScope(buyer types.Identity) string {
	if buyer == "" {
		return "purchase|anonymous"
	}
	return "purchase|" + strings.ToLower(buyer.String())
}

func replayAccepted(w http.ResponseWriter, accepted *acceptedPurchase) {
	w.Header().Set("Content-Type", "application/json")
	if accepted.Location != "" {
		w.Header().Set("Location", accepted.Location)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(http.StatusAccepted)
	if len(accepted.Body) > 0 {
		_, _ = w.Write(accepted.Body)
	}
}
