package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/ledgermart/api/responses"
	"github.com/angelmondragon/ledgermart/api/validators"
	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/internal/purchase"
	"github.com/angelmondragon/ledgermart/pkg/config"
	"github.com/angelmondragon/ledgermart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/money"
	"github.com/angelmondragon/ledgermart/pkg/pagination"
)

// PurchaseStarter splits a purchase into its synchronous checks and the
// ledger protocol that follows.
type PurchaseStarter interface {
	Begin(ctx context.Context, itemID items.ID, current *items.Item) (*purchase.Intent, *purchase.Outcome)
	Run(ctx context.Context, intent *purchase.Intent) purchase.Outcome
}

// PurchaseJournal answers status and history queries.
type PurchaseJournal interface {
	Get(ctx context.Context, id uuid.UUID) (*purchase.IntentRecord, error)
	ListForItem(ctx context.Context, itemID items.ID, params pagination.Params) (*purchase.IntentList, error)
}

type purchaseAcceptedResponse struct {
	IntentID      string    `json:"intent_id"`
	ItemID        string    `json:"item_id"`
	Buyer         string    `json:"buyer"`
	Amount        string    `json:"amount"`
	AmountDisplay string    `json:"amount_display"`
	Phase         string    `json:"phase"`
	StatusURL     string    `json:"status_url"`
	CreatedAt     time.Time `json:"created_at"`
}

type purchaseEventResponse struct {
	Phase     string    `json:"phase"`
	TxHash    *string   `json:"tx_hash,omitempty"`
	Detail    *string   `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type purchaseIntentResponse struct {
	ID                   string                  `json:"id"`
	ItemID               string                  `json:"item_id"`
	Buyer                string                  `json:"buyer"`
	Amount               string                  `json:"amount"`
	AmountDisplay        string                  `json:"amount_display"`
	Phase                string                  `json:"phase"`
	Status               *string                 `json:"status,omitempty"`
	FailureReason        *string                 `json:"failure_reason,omitempty"`
	AllowanceTx          *string                 `json:"allowance_tx,omitempty"`
	PurchaseTx           *string                 `json:"purchase_tx,omitempty"`
	AllowanceOutstanding bool                    `json:"allowance_outstanding"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
	CompletedAt          *time.Time              `json:"completed_at,omitempty"`
	Events               []purchaseEventResponse `json:"events,omitempty"`
}

type purchaseListResponse struct {
	Intents    []purchaseIntentResponse `json:"intents"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// PurchaseStart validates the attempt synchronously and leaves the ledger
// protocol running in the background. Clients poll the returned status URL.
func PurchaseStart(reader ItemReader, starter PurchaseStarter, cfg config.LedgerConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || starter == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		id, err := parseItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current, err := reader.Item(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, outcome := starter.Begin(r.Context(), id, current)
		if outcome != nil {
			responses.WriteError(r.Context(), logg, w, outcome.Err())
			return
		}

		snap := intent.Snapshot()
		statusURL := "/api/v1/purchases/" + snap.ID.String()
		runCtx := context.WithoutCancel(r.Context())
		if logg != nil {
			runCtx = logg.WithIntentID(runCtx, snap.ID.String())
		}
		go starter.Run(runCtx, intent)

		w.Header().Set("Location", statusURL)
		responses.WriteSuccessStatus(w, http.StatusAccepted, purchaseAcceptedResponse{
			IntentID:      snap.ID.String(),
			ItemID:        snap.ItemID.String(),
			Buyer:         snap.Buyer.String(),
			Amount:        snap.Amount.String(),
			AmountDisplay: money.WithSymbol(snap.Amount, cfg.TokenDecimals, cfg.TokenSymbol),
			Phase:         snap.Phase.String(),
			StatusURL:     statusURL,
			CreatedAt:     snap.CreatedAt,
		})
	}
}

// PurchaseStatus returns a journaled intent with its event trail.
func PurchaseStatus(journal PurchaseJournal, cfg config.LedgerConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if journal == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase journal unavailable"))
			return
		}

		intentID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "intentId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid intent id"))
			return
		}

		record, err := journal.Get(r.Context(), intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := newPurchaseIntentResponse(record.Intent, cfg)
		resp.Events = make([]purchaseEventResponse, 0, len(record.Events))
		for _, event := range record.Events {
			resp.Events = append(resp.Events, purchaseEventResponse{
				Phase:     event.Phase.String(),
				TxHash:    event.TxHash,
				Detail:    event.Detail,
				CreatedAt: event.CreatedAt,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

// PurchaseHistory pages an item's purchase attempts, newest first.
func PurchaseHistory(journal PurchaseJournal, cfg config.LedgerConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if journal == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase journal unavailable"))
			return
		}

		id, err := parseItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParseHistoryPage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := journal.ListForItem(r.Context(), id, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := purchaseListResponse{
			Intents:    make([]purchaseIntentResponse, 0, len(list.Intents)),
			NextCursor: list.NextCursor,
		}
		for _, intent := range list.Intents {
			resp.Intents = append(resp.Intents, newPurchaseIntentResponse(intent, cfg))
		}
		responses.WriteSuccess(w, resp)
	}
}

func newPurchaseIntentResponse(row models.PurchaseIntent, cfg config.LedgerConfig) purchaseIntentResponse {
	amount := money.ToUnits(row.Amount)
	resp := purchaseIntentResponse{
		ID:                   row.ID.String(),
		ItemID:               items.ID(row.ItemID).String(),
		Buyer:                row.Buyer,
		Amount:               amount.String(),
		AmountDisplay:        money.WithSymbol(amount, cfg.TokenDecimals, cfg.TokenSymbol),
		Phase:                row.Phase.String(),
		AllowanceTx:          row.AllowanceTx,
		PurchaseTx:           row.PurchaseTx,
		AllowanceOutstanding: row.AllowanceOutstanding,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
		CompletedAt:          row.CompletedAt,
	}
	if row.Status != nil {
		status := row.Status.String()
		resp.Status = &status
	}
	if row.FailureReason != nil {
		reason := string(*row.FailureReason)
		resp.FailureReason = &reason
	}
	return resp
}
