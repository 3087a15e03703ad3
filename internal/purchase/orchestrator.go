package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/pkg/enums"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

const tracerName = "github.com/angelmondragon/ledgermart/internal/purchase"

// ErrCancelled marks an attempt whose context ended before the allowance was
// submitted. Nothing reached the ledger and the outcome is aborted.
var ErrCancelled = errors.New("purchase cancelled before submission")

// Dependencies wires the orchestrator's collaborators. Notifier, Recorder,
// Guard, Clock and Tracer are optional.
type Dependencies struct {
	Wallet      WalletSession
	Granter     AllowanceGranter
	Submitter   PurchaseSubmitter
	Revalidator Revalidator
	Notifier    Notifier
	Recorder    Recorder
	Guard       Guard
	Clock       func() time.Time
	Tracer      trace.Tracer
}

// Orchestrator runs the allowance-then-purchase protocol for one item at a time.
type Orchestrator struct {
	wallet      WalletSession
	granter     AllowanceGranter
	submitter   PurchaseSubmitter
	revalidator Revalidator
	notifier    Notifier
	recorder    Recorder
	guard       Guard
	now         func() time.Time
	tracer      trace.Tracer
}

// NewOrchestrator validates the required collaborators.
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Wallet == nil:
		return nil, errors.New("wallet session required")
	case deps.Granter == nil:
		return nil, errors.New("allowance granter required")
	case deps.Submitter == nil:
		return nil, errors.New("purchase submitter required")
	case deps.Revalidator == nil:
		return nil, errors.New("revalidator required")
	}

	o := &Orchestrator{
		wallet:      deps.Wallet,
		granter:     deps.Granter,
		submitter:   deps.Submitter,
		revalidator: deps.Revalidator,
		notifier:    deps.Notifier,
		recorder:    deps.Recorder,
		guard:       deps.Guard,
		now:         deps.Clock,
		tracer:      deps.Tracer,
	}
	if o.notifier == nil {
		o.notifier = Notifiers(nil)
	}
	if o.recorder == nil {
		o.recorder = Recorders(nil)
	}
	if o.guard == nil {
		o.guard = NewLocalGuard()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o, nil
}

// AttemptPurchase runs one complete attempt and blocks until its outcome.
func (o *Orchestrator) AttemptPurchase(ctx context.Context, itemID items.ID, current *items.Item) Outcome {
	intent, outcome := o.Begin(ctx, itemID, current)
	if outcome != nil {
		return *outcome
	}
	return o.Run(ctx, intent)
}

// Begin checks the preconditions and, when they hold, takes the item's
// in-flight slot and returns a new intent for Run. Otherwise it returns the
// terminal outcome, already delivered to the notifier.
func (o *Orchestrator) Begin(ctx context.Context, itemID items.ID, current *items.Item) (*Intent, *Outcome) {
	started := o.now()

	if itemID > items.MaxID || current == nil || current.ID != itemID || current.Price == nil || current.Price.Sign() < 0 {
		outcome := o.precondition(ctx, itemID, "", enums.PurchaseStatusFailed, enums.PurchaseReasonNotReady, started)
		return nil, &outcome
	}

	buyer, ok := o.wallet.CurrentIdentity()
	if !ok {
		o.wallet.PromptConnect(ctx)
		outcome := o.precondition(ctx, itemID, "", enums.PurchaseStatusAborted, enums.PurchaseReasonNoIdentity, started)
		return nil, &outcome
	}

	if current.OwnedBy(buyer) {
		outcome := o.precondition(ctx, itemID, buyer, enums.PurchaseStatusFailed, enums.PurchaseReasonSelfPurchaseRejected, started)
		return nil, &outcome
	}

	release, ok := o.guard.Acquire(ctx, itemID)
	if !ok {
		outcome := o.precondition(ctx, itemID, buyer, enums.PurchaseStatusFailed, enums.PurchaseReasonAlreadyInProgress, started)
		return nil, &outcome
	}

	intent := newIntent(itemID, buyer, current.Price, started, release)
	o.recorder.IntentCreated(ctx, intent.Snapshot())
	return intent, nil
}

// Run drives an intent from Begin through the ledger steps. Each intent runs
// at most once; a repeated call reports AlreadyInProgress without touching the
// ledger. Caller cancellation is honored only until the allowance is
// submitted; after that every step runs to its own deadline so a submitted
// transaction is never abandoned.
func (o *Orchestrator) Run(ctx context.Context, intent *Intent) Outcome {
	snap := intent.Snapshot()
	if !intent.claim(o.now()) {
		outcome := Outcome{
			IntentID:   snap.ID,
			ItemID:     snap.ItemID,
			Buyer:      snap.Buyer,
			Status:     enums.PurchaseStatusFailed,
			Reason:     enums.PurchaseReasonAlreadyInProgress,
			StartedAt:  snap.CreatedAt,
			FinishedAt: o.now(),
		}
		o.notifier.OnOutcome(ctx, outcome)
		return outcome
	}

	ctx, span := o.tracer.Start(ctx, "purchase.attempt", trace.WithAttributes(
		attribute.String("purchase.intent_id", snap.ID.String()),
		attribute.String("purchase.item_id", snap.ItemID.String()),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		cause := fmt.Errorf("%w: %w", ErrCancelled, err)
		return o.finish(context.WithoutCancel(ctx), span, intent, enums.PurchaseReasonAllowanceRejected, cause)
	}
	ctx = context.WithoutCancel(ctx)

	o.recorder.PhaseChanged(ctx, intent.Snapshot(), "")
	allowance, err := o.step(ctx, "purchase.grant", func(ctx context.Context) (TransactionHandle, error) {
		return o.granter.Grant(ctx, snap.Buyer, snap.Amount)
	})
	if err != nil {
		return o.finish(ctx, span, intent, enums.PurchaseReasonAllowanceRejected, err)
	}
	intent.setAllowanceTx(allowance.Hash())

	o.transition(ctx, intent, enums.PurchasePhaseAwaitingAllowanceConfirmation, allowance.Hash())
	if err := o.await(ctx, "purchase.await_allowance", allowance, allowanceConfirmations); err != nil {
		return o.finish(ctx, span, intent, enums.PurchaseReasonAllowanceNotConfirmed, err)
	}

	o.transition(ctx, intent, enums.PurchasePhaseAwaitingPurchase, "")
	submitted, err := o.step(ctx, "purchase.submit", func(ctx context.Context) (TransactionHandle, error) {
		return o.submitter.Submit(ctx, snap.Buyer, snap.ItemID)
	})
	if err != nil {
		return o.finish(ctx, span, intent, enums.PurchaseReasonPurchaseRejected, err)
	}
	intent.setPurchaseTx(submitted.Hash())

	o.transition(ctx, intent, enums.PurchasePhaseAwaitingPurchaseConfirmation, submitted.Hash())
	if err := o.await(ctx, "purchase.await_purchase", submitted, DefaultConfirmations); err != nil {
		return o.finish(ctx, span, intent, enums.PurchaseReasonPurchaseNotConfirmed, err)
	}

	return o.finish(ctx, span, intent, "", nil)
}

func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) (TransactionHandle, error)) (TransactionHandle, error) {
	ctx, span := o.tracer.Start(ctx, name)
	defer span.End()

	handle, err := fn(ctx)
	if err == nil && handle == nil {
		err = errors.New("ledger returned no transaction")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("ledger.tx_hash", handle.Hash()))
	return handle, nil
}

func (o *Orchestrator) await(ctx context.Context, name string, handle TransactionHandle, confirmations uint64) error {
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("ledger.tx_hash", handle.Hash()),
		attribute.Int64("ledger.confirmations", int64(confirmations)),
	))
	defer span.End()

	if err := handle.AwaitConfirmation(ctx, confirmations); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, intent *Intent, phase enums.PurchasePhase, txHash string) {
	intent.setPhase(phase, o.now())
	o.recorder.PhaseChanged(ctx, intent.Snapshot(), txHash)
}

// finish settles the intent. An empty reason means success.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, intent *Intent, reason enums.PurchaseFailureReason, cause error) Outcome {
	now := o.now()
	if reason == "" {
		intent.setPhase(enums.PurchasePhaseSucceeded, now)
	} else {
		intent.fail(reason, now)
	}
	intent.releaseGuard(ctx)

	snap := intent.Snapshot()
	outcome := Outcome{
		IntentID:             snap.ID,
		ItemID:               snap.ItemID,
		Buyer:                snap.Buyer,
		Status:               enums.PurchaseStatusSucceeded,
		Reason:               reason,
		AllowanceTx:          snap.AllowanceTx,
		PurchaseTx:           snap.PurchaseTx,
		AllowanceOutstanding: reason.LeavesAllowance(),
		Cause:                cause,
		StartedAt:            snap.CreatedAt,
		FinishedAt:           now,
	}
	switch {
	case reason == "":
	case errors.Is(cause, ErrCancelled):
		outcome.Status = enums.PurchaseStatusAborted
		span.SetStatus(codes.Error, "cancelled")
	default:
		outcome.Status = enums.PurchaseStatusFailed
		span.SetStatus(codes.Error, reason.String())
	}
	span.SetAttributes(attribute.String("purchase.status", outcome.Status.String()))

	o.recorder.IntentFinished(ctx, snap, outcome)
	o.notifier.OnOutcome(ctx, outcome)

	if outcome.Succeeded() {
		go func(ctx context.Context, id items.ID) {
			_ = o.revalidator.Revalidate(ctx, id)
		}(context.WithoutCancel(ctx), snap.ItemID)
	}
	return outcome
}

func (o *Orchestrator) precondition(ctx context.Context, itemID items.ID, buyer types.Identity, status enums.PurchaseStatus, reason enums.PurchaseFailureReason, started time.Time) Outcome {
	outcome := Outcome{
		ItemID:     itemID,
		Buyer:      buyer,
		Status:     status,
		Reason:     reason,
		StartedAt:  started,
		FinishedAt: o.now(),
	}
	o.notifier.OnOutcome(ctx, outcome)
	return outcome
}

