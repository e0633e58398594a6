package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenCaller abstracts the ERC-20 surface a required fee token exposes.
// Approve returns only after the transaction is confirmed on chain.
type TokenCaller interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (txHash string, err error)
}

// NFTCaller abstracts an NFT collection contract. Mint returns only after
// the transaction is confirmed on chain.
type NFTCaller interface {
	Address() common.Address
	Mint(ctx context.Context) (txHash string, err error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error)
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
	ImageURI(ctx context.Context) (string, error)
}

// FeeReader reads the two burn fee constants of the burn-mint contract.
type FeeReader interface {
	HairFee(ctx context.Context) (*big.Int, error)
	MaxFee(ctx context.Context) (*big.Int, error)
}

// BurnMintCaller is the full surface of the token-burn collection.
type BurnMintCaller interface {
	NFTCaller
	FeeReader
}
