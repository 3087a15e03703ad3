package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReverted means the transaction was mined but execution failed.
	ErrReverted = errors.New("transaction reverted")
	// ErrConfirmationTimeout means the transaction did not reach the requested
	// depth before the configured deadline.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

type receiptBackend interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// pendingTx waits on a submitted transaction by polling its receipt.
type pendingTx struct {
	hash     common.Hash
	backend  receiptBackend
	poll     time.Duration
	deadline time.Duration
}

func (t *pendingTx) Hash() string {
	return t.hash.Hex()
}

// AwaitConfirmation blocks until the transaction is mined successfully and
// buried under minConfirmations blocks, counting its own block as the first.
func (t *pendingTx) AwaitConfirmation(ctx context.Context, minConfirmations uint64) error {
	if minConfirmations == 0 {
		minConfirmations = 1
	}
	if t.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.deadline)
		defer cancel()
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		done, err := t.check(ctx, minConfirmations)
		if err != nil || done {
			return err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrConfirmationTimeout, t.hash.Hex())
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *pendingTx) check(ctx context.Context, minConfirmations uint64) (bool, error) {
	receipt, err := t.backend.TransactionReceipt(ctx, t.hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) || ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return false, fmt.Errorf("%w: %s", ErrReverted, t.hash.Hex())
	}
	if minConfirmations == 1 || receipt.BlockNumber == nil {
		return true, nil
	}

	head, err := t.backend.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("fetch head: %w", err)
	}
	mined := receipt.BlockNumber.Uint64()
	if head < mined {
		return false, nil
	}
	return head-mined+1 >= minConfirmations, nil
}
