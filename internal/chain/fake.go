package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FakeToken is a scripted ERC-20 for tests and for running the gateway
// against no chain at all.
type FakeToken struct {
	Balance      *big.Int
	Allow        *big.Int
	ApproveErr   error
	ApproveCalls int
}

func NewFakeToken(balance, allowance int64) *FakeToken {
	return &FakeToken{Balance: big.NewInt(balance), Allow: big.NewInt(allowance)}
}

func (f *FakeToken) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.Balance), nil
}

func (f *FakeToken) Allowance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.Allow), nil
}

func (f *FakeToken) Approve(_ context.Context, _ common.Address, amount *big.Int) (string, error) {
	f.ApproveCalls++
	if f.ApproveErr != nil {
		return "", f.ApproveErr
	}
	f.Allow = new(big.Int).Set(amount)
	return fmt.Sprintf("0xapprove%d", f.ApproveCalls), nil
}

// FakeNFT is a scripted collection contract.
type FakeNFT struct {
	Addr       common.Address
	HairFeeWei *big.Int
	MaxFeeWei  *big.Int
	Balance    *big.Int
	TokenIDs   []*big.Int
	URIs       map[string]string
	Image      string
	MintErr    error
	MintCalls  int
}

func NewFakeNFT(addr string) *FakeNFT {
	return &FakeNFT{
		Addr:       common.HexToAddress(addr),
		HairFeeWei: big.NewInt(0),
		MaxFeeWei:  big.NewInt(0),
		Balance:    big.NewInt(0),
		URIs:       make(map[string]string),
	}
}

func (f *FakeNFT) Address() common.Address { return f.Addr }

func (f *FakeNFT) Mint(context.Context) (string, error) {
	f.MintCalls++
	if f.MintErr != nil {
		return "", f.MintErr
	}
	id := big.NewInt(int64(len(f.TokenIDs) + 1))
	f.TokenIDs = append(f.TokenIDs, id)
	f.Balance = new(big.Int).Add(f.Balance, big.NewInt(1))
	return fmt.Sprintf("0xmint%d", f.MintCalls), nil
}

func (f *FakeNFT) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.Balance), nil
}

func (f *FakeNFT) TokenOfOwnerByIndex(_ context.Context, _ common.Address, index *big.Int) (*big.Int, error) {
	i := index.Int64()
	if i < 0 || i >= int64(len(f.TokenIDs)) {
		return nil, fmt.Errorf("owner index out of bounds: %d", i)
	}
	return f.TokenIDs[i], nil
}

func (f *FakeNFT) TokenURI(_ context.Context, tokenID *big.Int) (string, error) {
	if uri, ok := f.URIs[tokenID.String()]; ok {
		return uri, nil
	}
	return "ipfs://token/" + tokenID.String(), nil
}

func (f *FakeNFT) ImageURI(context.Context) (string, error) {
	return f.Image, nil
}

func (f *FakeNFT) HairFee(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.HairFeeWei), nil
}

func (f *FakeNFT) MaxFee(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.MaxFeeWei), nil
}
