package ledger

import (
	"context"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// NonceManager serializes nonce allocation per signing account. A slot is
// held from nonce lookup until the node accepts the transaction, so two
// submissions from one account never read the same pending nonce.
type NonceManager struct {
	mu    sync.Mutex
	slots map[ethcommon.Address]chan struct{}
}

// NewNonceManager creates an empty NonceManager.
func NewNonceManager() *NonceManager {
	return &NonceManager{slots: make(map[ethcommon.Address]chan struct{})}
}

func (n *NonceManager) slot(account ethcommon.Address) chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.slots[account]
	if !ok {
		s = make(chan struct{}, 1)
		n.slots[account] = s
	}
	return s
}

// Acquire blocks until the account's slot is free or ctx is done. The
// returned release func is idempotent.
func (n *NonceManager) Acquire(ctx context.Context, account ethcommon.Address) (func(), error) {
	s := n.slot(account)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-s })
	}, nil
}
