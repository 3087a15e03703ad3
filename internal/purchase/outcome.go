package purchase

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

// Outcome is the terminal result of one purchase attempt. IntentID is zero
// when the attempt failed its preconditions.
type Outcome struct {
	IntentID             uuid.UUID
	ItemID               items.ID
	Buyer                types.Identity
	Status               enums.PurchaseStatus
	Reason               enums.PurchaseFailureReason
	AllowanceTx          string
	PurchaseTx           string
	AllowanceOutstanding bool
	Cause                error
	StartedAt            time.Time
	FinishedAt           time.Time
}

func (o Outcome) Succeeded() bool {
	return o.Status == enums.PurchaseStatusSucceeded
}

// Duration is the wall time between intent creation and the outcome.
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.Before(o.StartedAt) {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Err maps a non-successful outcome to a typed error for transport layers.
func (o Outcome) Err() error {
	if o.Succeeded() {
		return nil
	}

	var err *pkgerrors.Error
	switch {
	case errors.Is(o.Cause, ErrCancelled):
		err = pkgerrors.Wrap(pkgerrors.CodeConflict, o.Cause, "purchase was cancelled before reaching the ledger")
	default:
		err = reasonError(o.Reason, o.Cause)
	}
	if err == nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, o.Cause, "purchase failed")
	}

	details := map[string]any{"reason": o.Reason, "status": o.Status}
	if o.AllowanceOutstanding {
		details["allowance_outstanding"] = true
	}
	return err.WithDetails(details)
}

func reasonError(reason enums.PurchaseFailureReason, cause error) *pkgerrors.Error {
	switch reason {
	case enums.PurchaseReasonNotReady:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "item is not loaded")
	case enums.PurchaseReasonNoIdentity:
		return pkgerrors.New(pkgerrors.CodeWalletNotConnected, "connect a wallet to purchase")
	case enums.PurchaseReasonSelfPurchaseRejected:
		return pkgerrors.New(pkgerrors.CodeForbidden, "owners cannot purchase their own item")
	case enums.PurchaseReasonAlreadyInProgress:
		return pkgerrors.New(pkgerrors.CodeConflict, "a purchase for this item is already in progress")
	case enums.PurchaseReasonAllowanceRejected, enums.PurchaseReasonPurchaseRejected:
		return pkgerrors.Wrap(pkgerrors.CodeLedgerRejected, cause, "ledger rejected the transaction")
	case enums.PurchaseReasonAllowanceNotConfirmed, enums.PurchaseReasonPurchaseNotConfirmed:
		return pkgerrors.Wrap(pkgerrors.CodeLedgerUnconfirmed, cause, "transaction was not confirmed")
	default:
		return nil
	}
}
