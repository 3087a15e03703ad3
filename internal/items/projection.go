package items

import (
	"math"
	"math/big"
)

// Project maps a raw ledger record to an Item. It returns nil while the record
// has not loaded and for deleted listings, whose owner is the zero address.
func Project(id ID, raw *RawRecord) *Item {
	if raw == nil || raw.Owner.IsNull() {
		return nil
	}

	price := new(big.Int)
	if raw.Price != nil {
		price.Set(raw.Price)
	}

	return &Item{
		ID:          id,
		Owner:       raw.Owner,
		Name:        raw.Name,
		Description: raw.Description,
		Location:    raw.Location,
		ImageRef:    raw.ImageRef,
		Price:       price,
		SoldCount:   soldCount(raw.SoldCount),
	}
}

// soldCount saturates at MaxUint64 and clamps negatives to zero.
func soldCount(value *big.Int) uint64 {
	switch {
	case value == nil || value.Sign() <= 0:
		return 0
	case !value.IsUint64():
		return math.MaxUint64
	default:
		return value.Uint64()
	}
}
