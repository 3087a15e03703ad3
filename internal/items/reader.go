package items

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/pagination"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

// Source reads marketplace records straight from the ledger.
type Source interface {
	ReadProduct(ctx context.Context, id ID) (*RawRecord, error)
	ProductCount(ctx context.Context) (uint64, error)
}

// Page is one offset window of live items.
type Page struct {
	Items  []Item
	Window pagination.Window
}

// Reader serves item snapshots, consulting the cache before the ledger.
type Reader struct {
	source     Source
	cache      Cache
	logg       *logger.Logger
	generation atomic.Uint64
}

// NewReader builds a reader. cache may be nil to always read through.
func NewReader(source Source, cache Cache, logg *logger.Logger) *Reader {
	if logg == nil {
		logg = logger.Nop()
	}
	r := &Reader{source: source, cache: cache, logg: logg}
	r.generation.Store(uint64(time.Now().UnixNano()))
	return r
}

// Item returns the live item for id or a NOT_FOUND error for missing and
// deleted listings.
func (r *Reader) Item(ctx context.Context, id ID) (*Item, error) {
	raw, err := r.raw(ctx, id)
	if err != nil {
		return nil, err
	}
	item := Project(id, raw)
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return item, nil
}

// List enumerates item ids in [offset, offset+limit) and drops deleted listings,
// so a page may hold fewer items than its window.
func (r *Reader) List(ctx context.Context, offset, limit int) (*Page, error) {
	count, err := r.source.ProductCount(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read item count")
	}
	window := pagination.NewWindow(offset, limit, int(min(count, uint64(math.MaxInt))))
	page := &Page{Items: make([]Item, 0, window.End()-window.Offset), Window: window}
	for idx := window.Offset; idx < window.End(); idx++ {
		id := ID(idx)
		raw, err := r.raw(ctx, id)
		if err != nil {
			return nil, err
		}
		if item := Project(id, raw); item != nil {
			page.Items = append(page.Items, *item)
		}
	}
	return page, nil
}

// Revalidate drops the cached record and reloads it from the ledger.
func (r *Reader) Revalidate(ctx context.Context, id ID) error {
	generation := r.generation.Load()
	if r.cache != nil {
		if err := r.cache.Delete(ctx, generation, id); err != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "item cache delete failed")
		}
	}
	raw, err := r.source.ReadProduct(ctx, id)
	if err != nil {
		r.logg.Error(r.logg.WithItemID(ctx, id.String()), "item revalidation failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revalidate item")
	}
	r.store(ctx, generation, id, raw)
	return nil
}

// Invalidate orphans every cached record, e.g. after the wallet identity changes.
func (r *Reader) Invalidate() {
	r.generation.Add(1)
}

// OnIdentityChange adapts Invalidate to wallet change listeners.
func (r *Reader) OnIdentityChange(ctx context.Context, identity types.Identity) {
	r.Invalidate()
	r.logg.Debug(r.logg.WithIdentity(ctx, identity.String()), "item cache invalidated")
}

func (r *Reader) raw(ctx context.Context, id ID) (*RawRecord, error) {
	generation := r.generation.Load()
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, generation, id)
		if err != nil {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"item_id": id.String(), "error": err.Error()}), "item cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	raw, err := r.source.ReadProduct(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read item")
	}
	r.store(ctx, generation, id, raw)
	return raw, nil
}

func (r *Reader) store(ctx context.Context, generation uint64, id ID, raw *RawRecord) {
	if r.cache == nil || raw == nil {
		return
	}
	if err := r.cache.Set(ctx, generation, id, raw); err != nil {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"item_id": id.String(), "error": err.Error()}), "item cache write failed")
	}
}
