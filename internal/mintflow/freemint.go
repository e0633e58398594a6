package mintflow

import (
	"context"
	"math/big"
	"sync"

	"mintgate/internal/chain"
	"mintgate/internal/walleterr"

	"github.com/ethereum/go-ethereum/common"
)

// FreeMint is the one-per-wallet collection's single implicit step: eligible
// exactly when the caller owns nothing yet. Ineligible mints are rejected
// locally, before any transaction is built.
type FreeMint struct {
	nft   chain.NFTCaller
	owner common.Address

	mu   sync.Mutex
	busy bool
}

func NewFreeMint(nft chain.NFTCaller, owner common.Address) *FreeMint {
	return &FreeMint{nft: nft, owner: owner}
}

// Eligible reports whether the caller can still mint.
func (f *FreeMint) Eligible(ctx context.Context) (bool, error) {
	balance, err := f.nft.BalanceOf(ctx, f.owner)
	if err != nil {
		return false, walleterr.Classify(err)
	}
	return balance.Sign() == 0, nil
}

// Mint checks eligibility and submits the mint transaction.
func (f *FreeMint) Mint(ctx context.Context) (string, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return "", ErrActionInFlight
	}
	f.busy = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}()

	balance, err := f.nft.BalanceOf(ctx, f.owner)
	if err != nil {
		return "", walleterr.Classify(err)
	}
	if balance.Cmp(big.NewInt(0)) != 0 {
		return "", walleterr.New(walleterr.KindPrecondition,
			"address %s already minted (balance %s)", f.owner.Hex(), balance)
	}

	txHash, err := f.nft.Mint(ctx)
	if err != nil {
		return "", walleterr.Classify(err)
	}
	return txHash, nil
}
