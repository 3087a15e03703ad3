package items

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/angelmondragon/ledgermart/pkg/types"
)

// ID is the ledger's stable item index.
type ID uint64

// MaxID is the largest index the journal can store in its signed BIGINT column.
const MaxID ID = math.MaxInt64

// ParseID converts a decimal path segment into an item ID no larger than MaxID.
func ParseID(value string) (ID, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", value)
	}
	return ID(parsed), nil
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// BigInt returns the id as the uint256 argument the marketplace expects.
func (id ID) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

// RawRecord is the marketplace's readProduct tuple in ledger order.
type RawRecord struct {
	Owner       types.Identity
	Name        string
	ImageRef    string
	Description string
	Location    string
	Price       *big.Int
	SoldCount   *big.Int
}

// Item is the typed view of a live listing.
type Item struct {
	ID          ID
	Owner       types.Identity
	Name        string
	Description string
	Location    string
	ImageRef    string
	Price       *big.Int
	SoldCount   uint64
}

// OwnedBy reports whether identity owns the listing.
func (i *Item) OwnedBy(identity types.Identity) bool {
	if i == nil || identity == "" {
		return false
	}
	return i.Owner.Equal(identity)
}
