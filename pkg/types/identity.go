package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is a ledger account address in its checksummed hex form.
type Identity string

// NullIdentity is the zero address the ledger uses for "no owner".
const NullIdentity Identity = "0x0000000000000000000000000000000000000000"

// ParseIdentity validates a hex address and normalizes it to checksum form.
func ParseIdentity(value string) (Identity, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return "", fmt.Errorf("invalid address %q", value)
	}
	return IdentityFromAddress(common.HexToAddress(trimmed)), nil
}

func IdentityFromAddress(addr common.Address) Identity {
	return Identity(addr.Hex())
}

// Address converts the identity back into a go-ethereum address.
func (i Identity) Address() common.Address {
	return common.HexToAddress(string(i))
}

// Equal compares addresses ignoring checksum casing.
func (i Identity) Equal(other Identity) bool {
	return strings.EqualFold(strings.TrimSpace(string(i)), strings.TrimSpace(string(other)))
}

// IsNull reports whether the identity is empty or the zero address.
func (i Identity) IsNull() bool {
	return strings.TrimSpace(string(i)) == "" || i.Equal(NullIdentity)
}

func (i Identity) String() string {
	return string(i)
}
