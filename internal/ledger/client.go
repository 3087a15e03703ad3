package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/internal/purchase"
	"github.com/angelmondragon/ledgermart/pkg/config"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

// Backend is the node surface the client needs; *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	receiptBackend
}

// Signers hands out the signing key for an identity while it stays connected.
type Signers interface {
	SignerFor(expected types.Identity) (*ecdsa.PrivateKey, error)
}

// Client reads marketplace listings and signs allowance and purchase
// transactions against the configured contracts.
type Client struct {
	backend     Backend
	closer      func()
	marketplace *bind.BoundContract
	token       *bind.BoundContract
	marketAddr  common.Address
	chainID     *big.Int
	signers     Signers
	poll        time.Duration
	confirm     time.Duration
	callTimeout time.Duration
}

// New dials the RPC endpoint and verifies it serves the configured chain.
func New(ctx context.Context, cfg config.LedgerConfig, signers Signers, logg *logger.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		rpc.Close()
		return nil, fmt.Errorf("rpc serves chain %s, expected %d", chainID, cfg.ChainID)
	}

	client, err := NewWithBackend(rpc, cfg, signers)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	client.closer = rpc.Close

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"chain_id":    cfg.ChainID,
			"marketplace": client.marketAddr.Hex(),
		}), "ledger connection established")
	}
	return client, nil
}

// NewWithBackend binds the contracts over an existing backend.
func NewWithBackend(backend Backend, cfg config.LedgerConfig, signers Signers) (*Client, error) {
	market, err := types.ParseIdentity(cfg.MarketplaceAddress)
	if err != nil {
		return nil, fmt.Errorf("marketplace address: %w", err)
	}
	token, err := types.ParseIdentity(cfg.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("token address: %w", err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &Client{
		backend:     backend,
		marketplace: bind.NewBoundContract(market.Address(), parsedMarketplaceABI, backend, backend, backend),
		token:       bind.NewBoundContract(token.Address(), parsedTokenABI, backend, backend, backend),
		marketAddr:  market.Address(),
		chainID:     big.NewInt(cfg.ChainID),
		signers:     signers,
		poll:        poll,
		confirm:     cfg.ConfirmTimeout,
		callTimeout: cfg.CallTimeout,
	}, nil
}

// ReadProduct returns the raw marketplace record for id.
func (c *Client) ReadProduct(ctx context.Context, id items.ID) (*items.RawRecord, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var out []interface{}
	if err := c.marketplace.Call(&bind.CallOpts{Context: ctx}, &out, methodReadProduct, id.BigInt()); err != nil {
		return nil, fmt.Errorf("%s(%s): %w", methodReadProduct, id, err)
	}
	return decodeProduct(out)
}

// ProductCount returns how many item ids the marketplace has allocated,
// deleted listings included.
func (c *Client) ProductCount(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var out []interface{}
	if err := c.marketplace.Call(&bind.CallOpts{Context: ctx}, &out, methodProductsCount); err != nil {
		return 0, fmt.Errorf("%s: %w", methodProductsCount, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%s: unexpected output arity %d", methodProductsCount, len(out))
	}
	count, ok := out[0].(*big.Int)
	if !ok || count.Sign() < 0 || !count.IsUint64() {
		return 0, fmt.Errorf("%s: unexpected output %v", methodProductsCount, out[0])
	}
	return count.Uint64(), nil
}

// Grant approves the marketplace to spend amount of the payment token on behalf of from.
func (c *Client) Grant(ctx context.Context, from types.Identity, amount *big.Int) (purchase.TransactionHandle, error) {
	opts, err := c.transactOpts(ctx, from)
	if err != nil {
		return nil, err
	}
	tx, err := c.token.Transact(opts, methodApprove, c.marketAddr, amount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", methodApprove, err)
	}
	return c.pending(tx.Hash()), nil
}

// Submit sends the marketplace purchase for itemID signed by from.
func (c *Client) Submit(ctx context.Context, from types.Identity, itemID items.ID) (purchase.TransactionHandle, error) {
	opts, err := c.transactOpts(ctx, from)
	if err != nil {
		return nil, err
	}
	tx, err := c.marketplace.Transact(opts, methodBuyProduct, itemID.BigInt())
	if err != nil {
		return nil, fmt.Errorf("%s(%s): %w", methodBuyProduct, itemID, err)
	}
	return c.pending(tx.Hash()), nil
}

// Ping checks the node answers head queries.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	_, err := c.backend.BlockNumber(ctx)
	return err
}

// Close releases the RPC connection when the client dialed it.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) transactOpts(ctx context.Context, from types.Identity) (*bind.TransactOpts, error) {
	key, err := c.signers.SignerFor(from)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

func (c *Client) pending(hash common.Hash) *pendingTx {
	return &pendingTx{hash: hash, backend: c.backend, poll: c.poll, deadline: c.confirm}
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func decodeProduct(out []interface{}) (*items.RawRecord, error) {
	if len(out) != 7 {
		return nil, fmt.Errorf("%s: unexpected output arity %d", methodReadProduct, len(out))
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%s: owner has type %T", methodReadProduct, out[0])
	}
	strs := make([]string, 4)
	for i := range strs {
		s, ok := out[i+1].(string)
		if !ok {
			return nil, fmt.Errorf("%s: field %d has type %T", methodReadProduct, i+1, out[i+1])
		}
		strs[i] = s
	}
	price, ok := out[5].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: price has type %T", methodReadProduct, out[5])
	}
	sold, ok := out[6].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: sold count has type %T", methodReadProduct, out[6])
	}
	return &items.RawRecord{
		Owner:       types.IdentityFromAddress(owner),
		Name:        strs[0],
		ImageRef:    strs[1],
		Description: strs[2],
		Location:    strs[3],
		Price:       price,
		SoldCount:   sold,
	}, nil
}
