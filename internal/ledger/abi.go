package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	methodReadProduct   = "readProduct"
	methodProductsCount = "getProductsLength"
	methodBuyProduct    = "buyProduct"
	methodApprove       = "approve"
)

// marketplaceABI covers the marketplace calls this client issues.
const marketplaceABI = `[
  {"type":"function","name":"readProduct","stateMutability":"view",
   "inputs":[{"name":"_index","type":"uint256"}],
   "outputs":[
     {"name":"","type":"address"},
     {"name":"","type":"string"},
     {"name":"","type":"string"},
     {"name":"","type":"string"},
     {"name":"","type":"string"},
     {"name":"","type":"uint256"},
     {"name":"","type":"uint256"}]},
  {"type":"function","name":"getProductsLength","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"buyProduct","stateMutability":"payable",
   "inputs":[{"name":"_index","type":"uint256"}],
   "outputs":[]}
]`

// tokenABI is the ERC-20 subset needed to grant the marketplace an allowance.
const tokenABI = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

var (
	parsedMarketplaceABI = mustParseABI("marketplace", marketplaceABI)
	parsedTokenABI       = mustParseABI("token", tokenABI)
)

func mustParseABI(name, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("parse %s abi: %v", name, err))
	}
	return parsed
}
