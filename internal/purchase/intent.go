package purchase

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/pkg/enums"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

// Intent is one purchase attempt. Buyer and Amount are fixed at creation.
type Intent struct {
	mu          sync.RWMutex
	id          uuid.UUID
	itemID      items.ID
	buyer       types.Identity
	amount      *big.Int
	phase       enums.PurchasePhase
	reason      enums.PurchaseFailureReason
	allowanceTx string
	purchaseTx  string
	createdAt   time.Time
	updatedAt   time.Time

	release func(context.Context)
}

// IntentSnapshot is an immutable copy of an intent's state.
type IntentSnapshot struct {
	ID            uuid.UUID
	ItemID        items.ID
	Buyer         types.Identity
	Amount        *big.Int
	Phase         enums.PurchasePhase
	FailureReason enums.PurchaseFailureReason
	AllowanceTx   string
	PurchaseTx    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func newIntent(itemID items.ID, buyer types.Identity, price *big.Int, now time.Time, release func(context.Context)) *Intent {
	return &Intent{
		id:        uuid.New(),
		itemID:    itemID,
		buyer:     buyer,
		amount:    new(big.Int).Set(price),
		phase:     enums.PurchasePhaseIdle,
		createdAt: now,
		updatedAt: now,
		release:   release,
	}
}

func (i *Intent) ID() uuid.UUID {
	return i.id
}

// Snapshot copies the current state.
func (i *Intent) Snapshot() IntentSnapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return IntentSnapshot{
		ID:            i.id,
		ItemID:        i.itemID,
		Buyer:         i.buyer,
		Amount:        new(big.Int).Set(i.amount),
		Phase:         i.phase,
		FailureReason: i.reason,
		AllowanceTx:   i.allowanceTx,
		PurchaseTx:    i.purchaseTx,
		CreatedAt:     i.createdAt,
		UpdatedAt:     i.updatedAt,
	}
}

func (i *Intent) setPhase(phase enums.PurchasePhase, now time.Time) {
	i.mu.Lock()
	i.phase = phase
	i.updatedAt = now
	i.mu.Unlock()
}

// claim moves a fresh intent into its first ledger phase. It reports false
// when the intent was already run, so each intent drives the ledger once.
func (i *Intent) claim(now time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.phase != enums.PurchasePhaseIdle {
		return false
	}
	i.phase = enums.PurchasePhaseAwaitingAllowance
	i.updatedAt = now
	return true
}

func (i *Intent) setAllowanceTx(hash string) {
	i.mu.Lock()
	i.allowanceTx = hash
	i.mu.Unlock()
}

func (i *Intent) setPurchaseTx(hash string) {
	i.mu.Lock()
	i.purchaseTx = hash
	i.mu.Unlock()
}

func (i *Intent) fail(reason enums.PurchaseFailureReason, now time.Time) {
	i.mu.Lock()
	i.phase = enums.PurchasePhaseFailed
	i.reason = reason
	i.updatedAt = now
	i.mu.Unlock()
}

// releaseGuard frees the per-item slot exactly once.
func (i *Intent) releaseGuard(ctx context.Context) {
	i.mu.Lock()
	release := i.release
	i.release = nil
	i.mu.Unlock()
	if release != nil {
		release(ctx)
	}
}
