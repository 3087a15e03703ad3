package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ledgermart/api/middleware"
	"github.com/angelmondragon/ledgermart/api/responses"
	"github.com/angelmondragon/ledgermart/api/validators"
	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/pkg/config"
	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/money"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

// ItemReader serves projected listings.
type ItemReader interface {
	Item(ctx context.Context, id items.ID) (*items.Item, error)
	List(ctx context.Context, offset, limit int) (*items.Page, error)
}

type itemResponse struct {
	ID               string `json:"id"`
	Owner            string `json:"owner"`
	OwnerExplorerURL string `json:"owner_explorer_url,omitempty"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Location         string `json:"location"`
	Image            string `json:"image"`
	Price            string `json:"price"`
	PriceDisplay     string `json:"price_display"`
	Sold             uint64 `json:"sold"`
	OwnedByYou       bool   `json:"owned_by_you"`
	Purchasable      bool   `json:"purchasable"`
}

func newItemResponse(item items.Item, viewer types.Identity, cfg config.LedgerConfig) itemResponse {
	owned := item.OwnedBy(viewer)
	resp := itemResponse{
		ID:               item.ID.String(),
		Owner:            item.Owner.String(),
		OwnerExplorerURL: cfg.ExplorerAddressURL(item.Owner.String()),
		Name:             item.Name,
		Description:      item.Description,
		Location:         item.Location,
		Image:            item.ImageRef,
		Price:            "0",
		PriceDisplay:     money.WithSymbol(item.Price, cfg.TokenDecimals, cfg.TokenSymbol),
		Sold:             item.SoldCount,
		OwnedByYou:       owned,
		Purchasable:      !owned,
	}
	if item.Price != nil {
		resp.Price = item.Price.String()
	}
	return resp
}

// ItemList pages through the marketplace index.
func ItemList(reader ItemReader, cfg config.LedgerConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "item reader unavailable"))
			return
		}

		offset, limit, err := validators.ParseItemWindow(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := reader.List(r.Context(), offset, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		viewer := middleware.IdentityFromContext(r.Context())
		data := make([]itemResponse, 0, len(page.Items))
		for _, item := range page.Items {
			data = append(data, newItemResponse(item, viewer, cfg))
		}

		responses.WriteSuccessPage(w, data, &types.PageInfo{
			Offset:     page.Window.Offset,
			Limit:      page.Window.Limit,
			Total:      page.Window.Total,
			NextOffset: page.Window.NextOffset(),
		})
	}
}

// ItemDetail returns one live listing.
func ItemDetail(reader ItemReader, cfg config.LedgerConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "item reader unavailable"))
			return
		}

		id, err := parseItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := reader.Item(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newItemResponse(*item, middleware.IdentityFromContext(r.Context()), cfg))
	}
}

func parseItemID(r *http.Request) (items.ID, error) {
	raw := chi.URLParam(r, "itemId")
	id, err := items.ParseID(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id").WithDetails(map[string]any{"field": "itemId"})
	}
	return id, nil
}
