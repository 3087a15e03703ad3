package controllers

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/internal/purchase"
	"github.com/angelmondragon/ledgermart/pkg/db/models"
	"github.com/angelmondragon/ledgermart/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/pagination"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

type stubWallet struct {
	identity types.Identity
	prompted int
}

func (w *stubWallet) CurrentIdentity() (types.Identity, bool) {
	return w.identity, w.identity != ""
}

func (w *stubWallet) PromptConnect(context.Context) {
	w.prompted++
}

type settledHandle struct {
	hash string
}

func (h settledHandle) Hash() string { return h.hash }

func (h settledHandle) AwaitConfirmation(context.Context, uint64) error { return nil }

type stubLedger struct {
	granted *big.Int
}

func (l *stubLedger) Grant(_ context.Context, _ types.Identity, amount *big.Int) (purchase.TransactionHandle, error) {
	l.granted = new(big.Int).Set(amount)
	return settledHandle{hash: "0xallow"}, nil
}

func (l *stubLedger) Submit(context.Context, types.Identity, items.ID) (purchase.TransactionHandle, error) {
	return settledHandle{hash: "0xbuy"}, nil
}

type nopRevalidator struct{}

func (nopRevalidator) Revalidate(context.Context, items.ID) error { return nil }

type outcomeChan chan purchase.Outcome

func (c outcomeChan) OnOutcome(_ context.Context, outcome purchase.Outcome) {
	c <- outcome
}

func newTestOrchestrator(t *testing.T, wallet *stubWallet, ledger *stubLedger) (*purchase.Orchestrator, outcomeChan) {
	t.Helper()
	outcomes := make(outcomeChan, 4)
	orch, err := purchase.NewOrchestrator(purchase.Dependencies{
		Wallet:      wallet,
		Granter:     ledger,
		Submitter:   ledger,
		Revalidator: nopRevalidator{},
		Notifier:    outcomes,
	})
	require.NoError(t, err)
	return orch, outcomes
}

func TestPurchaseStartAcceptsAndRunsInBackground(t *testing.T) {
	reader := &stubItemReader{items: map[items.ID]*items.Item{4: sampleItem(4, sellerIdentity)}}
	ledger := &stubLedger{}
	orch, outcomes := newTestOrchestrator(t, &stubWallet{identity: buyerIdentity}, ledger)
	handler := PurchaseStart(reader, orch, testLedgerConfig, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withItemParam(httptest.NewRequest(http.MethodPost, "/api/v1/items/4/purchase", nil), "4"))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var env struct {
		Data purchaseAcceptedResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "4", env.Data.ItemID)
	assert.Equal(t, buyerIdentity.String(), env.Data.Buyer)
	assert.Equal(t, "2500000000000000000", env.Data.Amount)
	assert.Equal(t, "2.5 cUSD", env.Data.AmountDisplay)
	assert.Equal(t, "/api/v1/purchases/"+env.Data.IntentID, env.Data.StatusURL)
	assert.Equal(t, env.Data.StatusURL, rec.Header().Get("Location"))

	select {
	case outcome := <-outcomes:
		assert.True(t, outcome.Succeeded())
		assert.Equal(t, env.Data.IntentID, outcome.IntentID.String())
		assert.Equal(t, "0xbuy", outcome.PurchaseTx)
	case <-time.After(2 * time.Second):
		t.Fatal("purchase did not finish")
	}
	assert.Equal(t, "2500000000000000000", ledger.granted.String())
}

func TestPurchaseStartFailFastOutcomes(t *testing.T) {
	reader := &stubItemReader{items: map[items.ID]*items.Item{
		4: sampleItem(4, sellerIdentity),
	}}

	t.Run("no wallet", func(t *testing.T) {
		wallet := &stubWallet{}
		orch, outcomes := newTestOrchestrator(t, wallet, &stubLedger{})
		rec := httptest.NewRecorder()
		PurchaseStart(reader, orch, testLedgerConfig, nil).ServeHTTP(rec, withItemParam(httptest.NewRequest(http.MethodPost, "/", nil), "4"))

		assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
		assert.Equal(t, 1, wallet.prompted)
		assert.Equal(t, enums.PurchaseReasonNoIdentity, (<-outcomes).Reason)
	})

	t.Run("owner", func(t *testing.T) {
		orch, outcomes := newTestOrchestrator(t, &stubWallet{identity: sellerIdentity}, &stubLedger{})
		rec := httptest.NewRecorder()
		PurchaseStart(reader, orch, testLedgerConfig, nil).ServeHTTP(rec, withItemParam(httptest.NewRequest(http.MethodPost, "/", nil), "4"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, enums.PurchaseReasonSelfPurchaseRejected, (<-outcomes).Reason)
	})

	t.Run("deleted item", func(t *testing.T) {
		orch, _ := newTestOrchestrator(t, &stubWallet{identity: buyerIdentity}, &stubLedger{})
		rec := httptest.NewRecorder()
		PurchaseStart(reader, orch, testLedgerConfig, nil).ServeHTTP(rec, withItemParam(httptest.NewRequest(http.MethodPost, "/", nil), "8"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

type stubJournal struct {
	record *purchase.IntentRecord
	list   *purchase.IntentList
	err    error

	gotParams pagination.Params
}

func (s *stubJournal) Get(context.Context, uuid.UUID) (*purchase.IntentRecord, error) {
	return s.record, s.err
}

func (s *stubJournal) ListForItem(_ context.Context, _ items.ID, params pagination.Params) (*purchase.IntentList, error) {
	s.gotParams = params
	return s.list, s.err
}

func journaledIntent() models.PurchaseIntent {
	status := enums.PurchaseStatusFailed
	reason := enums.PurchaseReasonPurchaseRejected
	allowance := "0xallow"
	return models.PurchaseIntent{
		ID:                   uuid.New(),
		ItemID:               4,
		Buyer:                buyerIdentity.String(),
		Amount:               decimal.RequireFromString("2500000000000000000"),
		Phase:                enums.PurchasePhaseFailed,
		Status:               &status,
		FailureReason:        &reason,
		AllowanceTx:          &allowance,
		AllowanceOutstanding: true,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
}

func TestPurchaseStatusReturnsJournal(t *testing.T) {
	intent := journaledIntent()
	hash := "0xallow"
	journal := &stubJournal{record: &purchase.IntentRecord{
		Intent: intent,
		Events: []models.PurchaseEvent{
			{ID: uuid.New(), IntentID: intent.ID, Phase: enums.PurchasePhaseAwaitingAllowance},
			{ID: uuid.New(), IntentID: intent.ID, Phase: enums.PurchasePhaseAwaitingAllowanceConfirmation, TxHash: &hash},
		},
	}}

	rc := chi.NewRouteContext()
	rc.URLParams.Add("intentId", intent.ID.String())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/purchases/"+intent.ID.String(), nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	rec := httptest.NewRecorder()
	PurchaseStatus(journal, testLedgerConfig, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data purchaseIntentResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, intent.ID.String(), env.Data.ID)
	assert.Equal(t, "2.5 cUSD", env.Data.AmountDisplay)
	require.NotNil(t, env.Data.FailureReason)
	assert.Equal(t, "purchase_rejected", *env.Data.FailureReason)
	assert.True(t, env.Data.AllowanceOutstanding)
	require.Len(t, env.Data.Events, 2)
	assert.Equal(t, "0xallow", *env.Data.Events[1].TxHash)
}

func TestPurchaseStatusErrors(t *testing.T) {
	journal := &stubJournal{err: pkgerrors.New(pkgerrors.CodeNotFound, "purchase intent not found")}

	rc := chi.NewRouteContext()
	rc.URLParams.Add("intentId", "not-a-uuid")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	rec := httptest.NewRecorder()
	PurchaseStatus(journal, testLedgerConfig, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rc = chi.NewRouteContext()
	rc.URLParams.Add("intentId", uuid.NewString())
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	rec = httptest.NewRecorder()
	PurchaseStatus(journal, testLedgerConfig, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchaseHistoryPassesCursor(t *testing.T) {
	journal := &stubJournal{list: &purchase.IntentList{
		Intents:    []models.PurchaseIntent{journaledIntent()},
		NextCursor: "next",
	}}

	req := withItemParam(httptest.NewRequest(http.MethodGet, "/api/v1/items/4/purchases?limit=1&cursor=abc", nil), "4")
	rec := httptest.NewRecorder()
	PurchaseHistory(journal, testLedgerConfig, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pagination.Params{Limit: 1, Cursor: "abc"}, journal.gotParams)

	var env struct {
		Data purchaseListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Len(t, env.Data.Intents, 1)
	assert.Equal(t, "next", env.Data.NextCursor)
}
