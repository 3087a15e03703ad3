package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/pkg/db/models"
	"github.com/angelmondragon/ledgermart/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/money"
	"github.com/angelmondragon/ledgermart/pkg/pagination"
)

// Repository manages persistence for the purchase journal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIntent(ctx context.Context, intent *models.PurchaseIntent) error
	UpdateIntent(ctx context.Context, id uuid.UUID, updates map[string]any) error
	AppendEvent(ctx context.Context, event *models.PurchaseEvent) error
	FindIntent(ctx context.Context, id uuid.UUID) (*models.PurchaseIntent, error)
	ListEvents(ctx context.Context, intentID uuid.UUID) ([]models.PurchaseEvent, error)
	ListByItem(ctx context.Context, itemID items.ID, limit int, cursor *pagination.Cursor) ([]models.PurchaseIntent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a journal repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateIntent(ctx context.Context, intent *models.PurchaseIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) UpdateIntent(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PurchaseIntent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) AppendEvent(ctx context.Context, event *models.PurchaseEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindIntent(ctx context.Context, id uuid.UUID) (*models.PurchaseIntent, error) {
	var intent models.PurchaseIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) ListEvents(ctx context.Context, intentID uuid.UUID) ([]models.PurchaseEvent, error) {
	var events []models.PurchaseEvent
	if err := r.db.WithContext(ctx).
		Where("intent_id = ?", intentID).
		Order("seq ASC").
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListByItem pages newest first; limit rows are returned as-is so callers can
// ask for one extra to detect the next page.
func (r *repository) ListByItem(ctx context.Context, itemID items.ID, limit int, cursor *pagination.Cursor) ([]models.PurchaseIntent, error) {
	query := r.db.WithContext(ctx).
		Where("item_id = ?", int64(itemID))
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var intents []models.PurchaseIntent
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// JournalRecorder persists every lifecycle transition. Persistence failures are
// logged and never affect the attempt.
type JournalRecorder struct {
	tx   txRunner
	repo Repository
	logg *logger.Logger
}

// NewJournalRecorder builds a recorder over the journal tables.
func NewJournalRecorder(tx txRunner, repo Repository, logg *logger.Logger) *JournalRecorder {
	if logg == nil {
		logg = logger.Nop()
	}
	return &JournalRecorder{tx: tx, repo: repo, logg: logg}
}

func (j *JournalRecorder) IntentCreated(ctx context.Context, intent IntentSnapshot) {
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repo.WithTx(tx)
		if err := repo.CreateIntent(ctx, &models.PurchaseIntent{
			ID:        intent.ID,
			ItemID:    int64(intent.ItemID),
			Buyer:     intent.Buyer.String(),
			Amount:    money.ToDecimal(intent.Amount),
			Phase:     intent.Phase,
			CreatedAt: intent.CreatedAt,
			UpdatedAt: intent.UpdatedAt,
		}); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, newEvent(intent.ID, intent.Phase, "", "", intent.CreatedAt))
	})
	j.report(ctx, intent, "journal create failed", err)
}

func (j *JournalRecorder) PhaseChanged(ctx context.Context, intent IntentSnapshot, txHash string) {
	updates := map[string]any{"phase": intent.Phase, "updated_at": intent.UpdatedAt}
	if intent.AllowanceTx != "" {
		updates["allowance_tx"] = intent.AllowanceTx
	}
	if intent.PurchaseTx != "" {
		updates["purchase_tx"] = intent.PurchaseTx
	}
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repo.WithTx(tx)
		if err := repo.UpdateIntent(ctx, intent.ID, updates); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, newEvent(intent.ID, intent.Phase, txHash, "", intent.UpdatedAt))
	})
	j.report(ctx, intent, "journal transition failed", err)
}

func (j *JournalRecorder) IntentFinished(ctx context.Context, intent IntentSnapshot, outcome Outcome) {
	completed := outcome.FinishedAt
	updates := map[string]any{
		"phase":                 intent.Phase,
		"status":                outcome.Status,
		"allowance_outstanding": outcome.AllowanceOutstanding,
		"updated_at":            completed,
		"completed_at":          completed,
	}
	if outcome.Reason != "" {
		updates["failure_reason"] = outcome.Reason
	}
	detail := ""
	if outcome.Cause != nil {
		detail = outcome.Cause.Error()
	}
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repo.WithTx(tx)
		if err := repo.UpdateIntent(ctx, intent.ID, updates); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, newEvent(intent.ID, intent.Phase, "", detail, completed))
	})
	j.report(ctx, intent, "journal finish failed", err)
}

func (j *JournalRecorder) report(ctx context.Context, intent IntentSnapshot, msg string, err error) {
	if err == nil {
		return
	}
	ctx = j.logg.WithIntentID(ctx, intent.ID.String())
	ctx = j.logg.WithField(ctx, "phase", intent.Phase.String())
	j.logg.Error(ctx, msg, err)
}

func newEvent(intentID uuid.UUID, phase enums.PurchasePhase, txHash, detail string, at time.Time) *models.PurchaseEvent {
	event := &models.PurchaseEvent{
		ID:        uuid.New(),
		IntentID:  intentID,
		Phase:     phase,
		Seq:       phase.Ordinal(),
		CreatedAt: at,
	}
	if txHash != "" {
		event.TxHash = &txHash
	}
	if detail != "" {
		event.Detail = &detail
	}
	return event
}

// IntentRecord is a journaled intent with its event trail.
type IntentRecord struct {
	Intent models.PurchaseIntent
	Events []models.PurchaseEvent
}

// IntentList is one cursor page of journaled intents.
type IntentList struct {
	Intents    []models.PurchaseIntent
	NextCursor string
}

// JournalService answers status and history queries.
type JournalService struct {
	repo Repository
}

func NewJournalService(repo Repository) *JournalService {
	return &JournalService{repo: repo}
}

// Get returns the intent with its events or a NOT_FOUND error.
func (s *JournalService) Get(ctx context.Context, id uuid.UUID) (*IntentRecord, error) {
	intent, err := s.repo.FindIntent(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase intent")
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase events")
	}
	return &IntentRecord{Intent: *intent, Events: events}, nil
}

// ListForItem pages an item's purchase history, newest first.
func (s *JournalService) ListForItem(ctx context.Context, itemID items.ID, params pagination.Params) (*IntentList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByItem(ctx, itemID, pagination.LimitWithBuffer(limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchase intents")
	}

	list := &IntentList{Intents: rows}
	if len(rows) > limit {
		list.Intents = rows[:limit]
		last := list.Intents[limit-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, nil
}
