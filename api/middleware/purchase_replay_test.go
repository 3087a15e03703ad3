package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

const replayBuyer = types.Identity("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2")

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func purchaseRequest(itemID, key string, buyer types.Identity) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+itemID+"/purchase", nil)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rc := chi.NewRouteContext()
	rc.URLParams.Add("itemId", itemID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if buyer != "" {
		ctx = WithIdentity(ctx, buyer)
	}
	return req.WithContext(ctx)
}

// acceptingHandler mimics the purchase controller: a 202 with the status URL.
func acceptingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		statusURL := fmt.Sprintf("/api/v1/purchases/intent-%d", *calls)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Location", statusURL)
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprintf(w, `{"data":{"status_url":%q}}`, statusURL)
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestPurchaseIdempotencyRequiresKey(t *testing.T) {
	var calls int
	handler := PurchaseIdempotency(newFakeStore(), nil)(acceptingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, purchaseRequest("3", "", replayBuyer))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, purchaseRequest("3", strings.Repeat("k", maxIdempotencyKeyLen+1), replayBuyer))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, calls)
}

func TestPurchaseIdempotencyReplaysAcceptedIntent(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := PurchaseIdempotency(store, nil)(acceptingHandler(&calls))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, purchaseRequest("3", "abc", replayBuyer))
	require.Equal(t, http.StatusAccepted, first.Code)

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, purchaseRequest("3", "abc", replayBuyer))

	assert.Equal(t, 1, calls, "a retry must not start a second intent")
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "/api/v1/purchases/intent-1", replay.Header().Get("Location"))
	assert.Equal(t, "true", replay.Header().Get(replayedHeader))
	assert.Empty(t, first.Header().Get(replayedHeader))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	var stored acceptedPurchase
	require.Len(t, store.data, 1)
	for key, value := range store.data {
		assert.Contains(t, key, "purchase|"+strings.ToLower(replayBuyer.String()))
		require.NoError(t, json.Unmarshal([]byte(value), &stored))
	}
	assert.Equal(t, "3", stored.ItemID)
	assert.Equal(t, replayBuyer.String(), stored.Buyer)
}

func TestPurchaseIdempotencyScopesByIdentity(t *testing.T) {
	var calls int
	handler := PurchaseIdempotency(newFakeStore(), nil)(acceptingHandler(&calls))

	for _, buyer := range []types.Identity{replayBuyer, "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"} {
		handler.ServeHTTP(httptest.NewRecorder(), purchaseRequest("3", "same", buyer))
	}

	assert.Equal(t, 2, calls)
}

func TestPurchaseIdempotencyRejectsKeyReuseForAnotherItem(t *testing.T) {
	var calls int
	handler := PurchaseIdempotency(newFakeStore(), nil)(acceptingHandler(&calls))

	handler.ServeHTTP(httptest.NewRecorder(), purchaseRequest("3", "xyz", replayBuyer))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, purchaseRequest("4", "xyz", replayBuyer))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
	assert.Equal(t, 1, calls)
}

func TestPurchaseIdempotencyKeepsRejectionsRetryable(t *testing.T) {
	store := newFakeStore()
	statuses := []int{http.StatusPreconditionRequired, http.StatusServiceUnavailable}
	var calls int
	handler := PurchaseIdempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := statuses[calls]
		calls++
		w.WriteHeader(status)
	}))

	for range statuses {
		handler.ServeHTTP(httptest.NewRecorder(), purchaseRequest("3", "retry-me", replayBuyer))
	}

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}
