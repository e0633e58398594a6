package chain

import (
	"context"
	"fmt"
	"math/big"

	"mintgate/internal/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// TokenClient drives one ERC-20 fee token.
type TokenClient struct {
	backend  *Backend
	contract *bind.BoundContract
	address  common.Address
	symbol   string
}

func NewTokenClient(backend *Backend, address string, symbol string) (*TokenClient, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid token address %q", address)
	}
	addr := common.HexToAddress(address)
	bound, _, err := backend.bound(addr, contracts.ERC20ABI)
	if err != nil {
		return nil, err
	}
	return &TokenClient{backend: backend, contract: bound, address: addr, symbol: symbol}, nil
}

func (t *TokenClient) Symbol() string          { return t.symbol }
func (t *TokenClient) Address() common.Address { return t.address }

func (t *TokenClient) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return callBig(ctx, t.contract, "balanceOf", owner)
}

func (t *TokenClient) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return callBig(ctx, t.contract, "allowance", owner, spender)
}

// Approve grants spender exactly amount and blocks until the transaction is
// confirmed. The workflow never requests unlimited approvals.
func (t *TokenClient) Approve(ctx context.Context, spender common.Address, amount *big.Int) (string, error) {
	return t.backend.transact(ctx, t.contract, "approve", spender, amount)
}
