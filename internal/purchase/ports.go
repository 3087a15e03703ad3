package purchase

import (
	"context"
	"math/big"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

// DefaultConfirmations is the depth a purchase transaction must reach.
const DefaultConfirmations uint64 = 1

// allowanceConfirmations is the depth the allowance must reach before the
// purchase is submitted.
const allowanceConfirmations uint64 = 1

// TransactionHandle tracks one submitted ledger transaction.
type TransactionHandle interface {
	Hash() string
	AwaitConfirmation(ctx context.Context, minConfirmations uint64) error
}

// AllowanceGranter authorizes the marketplace to spend the buyer's tokens.
type AllowanceGranter interface {
	Grant(ctx context.Context, from types.Identity, amount *big.Int) (TransactionHandle, error)
}

// PurchaseSubmitter submits the marketplace purchase.
type PurchaseSubmitter interface {
	Submit(ctx context.Context, from types.Identity, itemID items.ID) (TransactionHandle, error)
}

// WalletSession exposes the connected identity.
type WalletSession interface {
	CurrentIdentity() (types.Identity, bool)
	PromptConnect(ctx context.Context)
}

// Revalidator refreshes the local snapshot of an item after it changed on the ledger.
type Revalidator interface {
	Revalidate(ctx context.Context, id items.ID) error
}

// Notifier receives every terminal outcome.
type Notifier interface {
	OnOutcome(ctx context.Context, outcome Outcome)
}

// Recorder observes intent lifecycle transitions.
type Recorder interface {
	IntentCreated(ctx context.Context, intent IntentSnapshot)
	PhaseChanged(ctx context.Context, intent IntentSnapshot, txHash string)
	IntentFinished(ctx context.Context, intent IntentSnapshot, outcome Outcome)
}

// Notifiers fans one outcome out to several notifiers in order.
type Notifiers []Notifier

func (n Notifiers) OnOutcome(ctx context.Context, outcome Outcome) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.OnOutcome(ctx, outcome)
		}
	}
}

// Recorders fans lifecycle transitions out to several recorders in order.
type Recorders []Recorder

func (r Recorders) IntentCreated(ctx context.Context, intent IntentSnapshot) {
	for _, rec := range r {
		if rec != nil {
			rec.IntentCreated(ctx, intent)
		}
	}
}

func (r Recorders) PhaseChanged(ctx context.Context, intent IntentSnapshot, txHash string) {
	for _, rec := range r {
		if rec != nil {
			rec.PhaseChanged(ctx, intent, txHash)
		}
	}
}

func (r Recorders) IntentFinished(ctx context.Context, intent IntentSnapshot, outcome Outcome) {
	for _, rec := range r {
		if rec != nil {
			rec.IntentFinished(ctx, intent, outcome)
		}
	}
}
