package purchase

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/pkg/config"
	"github.com/angelmondragon/ledgermart/pkg/db"
	"github.com/angelmondragon/ledgermart/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/migrate"
	"github.com/angelmondragon/ledgermart/pkg/pagination"
)

const sqliteMigrations = "../../pkg/migrate/migrations/sqlite"

func openJournalDB(t *testing.T) *db.Client {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.Run(context.Background(), sqlDB, migrate.DialectFor(config.DriverSQLite), sqliteMigrations, "up"))
	return db.NewFromGorm(conn)
}

func TestJournalRecorderPersistsLifecycle(t *testing.T) {
	client := openJournalDB(t)
	repo := NewRepository(client.DB())
	recorder := NewJournalRecorder(client, repo, nil)

	h := newHarness(t)
	h.orch.recorder = recorder
	tick := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	h.orch.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	h.ledger.purchase.err = errors.New("dropped from mempool")

	outcome := h.orch.AttemptPurchase(context.Background(), 11, listedItem(11))
	require.Equal(t, enums.PurchaseReasonPurchaseNotConfirmed, outcome.Reason)

	record, err := NewJournalService(repo).Get(context.Background(), outcome.IntentID)
	require.NoError(t, err)

	intent := record.Intent
	assert.Equal(t, int64(11), intent.ItemID)
	assert.Equal(t, buyerID.String(), intent.Buyer)
	assert.Equal(t, "5000", intent.Amount.String())
	assert.Equal(t, enums.PurchasePhaseFailed, intent.Phase)
	require.NotNil(t, intent.Status)
	assert.Equal(t, enums.PurchaseStatusFailed, *intent.Status)
	require.NotNil(t, intent.FailureReason)
	assert.Equal(t, enums.PurchaseReasonPurchaseNotConfirmed, *intent.FailureReason)
	require.NotNil(t, intent.PurchaseTx)
	assert.Equal(t, "0xpurchase", *intent.PurchaseTx)
	assert.True(t, intent.AllowanceOutstanding)
	assert.NotNil(t, intent.CompletedAt)

	phases := make([]enums.PurchasePhase, 0, len(record.Events))
	for _, event := range record.Events {
		phases = append(phases, event.Phase)
	}
	assert.Equal(t, []enums.PurchasePhase{
		enums.PurchasePhaseIdle,
		enums.PurchasePhaseAwaitingAllowance,
		enums.PurchasePhaseAwaitingAllowanceConfirmation,
		enums.PurchasePhaseAwaitingPurchase,
		enums.PurchasePhaseAwaitingPurchaseConfirmation,
		enums.PurchasePhaseFailed,
	}, phases)
	last := record.Events[len(record.Events)-1]
	require.NotNil(t, last.Detail)
	assert.Contains(t, *last.Detail, "dropped from mempool")
}

func TestJournalEventsKeepProtocolOrderWithinOneInstant(t *testing.T) {
	client := openJournalDB(t)
	repo := NewRepository(client.DB())

	h := newHarness(t)
	h.orch.recorder = NewJournalRecorder(client, repo, nil)
	frozen := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	h.orch.now = func() time.Time { return frozen }

	outcome := h.orch.AttemptPurchase(context.Background(), 12, listedItem(12))
	require.True(t, outcome.Succeeded())

	events, err := repo.ListEvents(context.Background(), outcome.IntentID)
	require.NoError(t, err)

	phases := make([]enums.PurchasePhase, 0, len(events))
	for _, event := range events {
		assert.True(t, event.CreatedAt.Equal(frozen))
		phases = append(phases, event.Phase)
	}
	assert.Equal(t, []enums.PurchasePhase{
		enums.PurchasePhaseIdle,
		enums.PurchasePhaseAwaitingAllowance,
		enums.PurchasePhaseAwaitingAllowanceConfirmation,
		enums.PurchasePhaseAwaitingPurchase,
		enums.PurchasePhaseAwaitingPurchaseConfirmation,
		enums.PurchasePhaseSucceeded,
	}, phases)
}

func TestJournalServiceGetMissingIntent(t *testing.T) {
	client := openJournalDB(t)
	_, err := NewJournalService(NewRepository(client.DB())).Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestJournalServiceListForItemPagesNewestFirst(t *testing.T) {
	client := openJournalDB(t)
	repo := NewRepository(client.DB())
	recorder := NewJournalRecorder(client, repo, nil)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		snap := IntentSnapshot{
			ID:        uuid.New(),
			ItemID:    items.ID(3),
			Buyer:     buyerID,
			Amount:    big.NewInt(int64(100 + i)),
			Phase:     enums.PurchasePhaseIdle,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		recorder.IntentCreated(ctx, snap)
		ids = append(ids, snap.ID)
	}
	recorder.IntentCreated(ctx, IntentSnapshot{
		ID: uuid.New(), ItemID: 4, Buyer: buyerID, Amount: big.NewInt(1),
		Phase: enums.PurchasePhaseIdle, CreatedAt: base, UpdatedAt: base,
	})

	svc := NewJournalService(repo)
	first, err := svc.ListForItem(ctx, 3, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Intents, 2)
	assert.Equal(t, ids[2], first.Intents[0].ID)
	assert.Equal(t, ids[1], first.Intents[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListForItem(ctx, 3, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Intents, 1)
	assert.Equal(t, ids[0], second.Intents[0].ID)
	assert.Empty(t, second.NextCursor)

	_, err = svc.ListForItem(ctx, 3, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
