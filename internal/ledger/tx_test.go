package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPending(node *fakeNode, deadline time.Duration) *pendingTx {
	return &pendingTx{hash: common.HexToHash("0xaa"), backend: node, poll: time.Millisecond, deadline: deadline}
}

func TestAwaitConfirmationWaitsForReceipt(t *testing.T) {
	node := newFakeNode()
	tx := newPending(node, time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		node.mu.Lock()
		node.receipts[tx.hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(5)}
		node.head = 5
		node.mu.Unlock()
	}()

	require.NoError(t, tx.AwaitConfirmation(context.Background(), 1))
}

func TestAwaitConfirmationCountsDepth(t *testing.T) {
	node := newFakeNode()
	tx := newPending(node, time.Second)
	node.receipts[tx.hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}
	node.head = 10

	go func() {
		time.Sleep(10 * time.Millisecond)
		node.mu.Lock()
		node.head = 12
		node.mu.Unlock()
	}()

	require.NoError(t, tx.AwaitConfirmation(context.Background(), 3))
	node.mu.Lock()
	defer node.mu.Unlock()
	assert.Equal(t, uint64(12), node.head)
}

func TestAwaitConfirmationReportsRevert(t *testing.T) {
	node := newFakeNode()
	tx := newPending(node, time.Second)
	node.receipts[tx.hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}

	err := tx.AwaitConfirmation(context.Background(), 1)
	assert.ErrorIs(t, err, ErrReverted)
}

func TestAwaitConfirmationTimesOut(t *testing.T) {
	node := newFakeNode()
	tx := newPending(node, 20*time.Millisecond)

	err := tx.AwaitConfirmation(context.Background(), 1)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
}

func TestAwaitConfirmationHonorsCancellation(t *testing.T) {
	node := newFakeNode()
	tx := newPending(node, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tx.AwaitConfirmation(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}
