package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"mintgate/internal/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// NFTClient drives one collection contract. The same client serves both the
// burn-mint and the free-mint collections; the fee getters are only wired
// into the burn-mint workflow.
type NFTClient struct {
	backend  *Backend
	contract *bind.BoundContract
	address  common.Address
}

func NewNFTClient(backend *Backend, address string) (*NFTClient, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	addr := common.HexToAddress(address)
	bound, _, err := backend.bound(addr, contracts.NFTABI)
	if err != nil {
		return nil, err
	}
	return &NFTClient{backend: backend, contract: bound, address: addr}, nil
}

func (n *NFTClient) Address() common.Address { return n.address }

func (n *NFTClient) Mint(ctx context.Context) (string, error) {
	return n.backend.transact(ctx, n.contract, "mint")
}

func (n *NFTClient) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return callBig(ctx, n.contract, "balanceOf", owner)
}

func (n *NFTClient) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	return callBig(ctx, n.contract, "tokenOfOwnerByIndex", owner, index)
}

func (n *NFTClient) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	return callString(ctx, n.contract, "tokenURI", tokenID)
}

func (n *NFTClient) ImageURI(ctx context.Context) (string, error) {
	return callString(ctx, n.contract, "imageURI")
}

func (n *NFTClient) HairFee(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, n.contract, "HAIR_TKN_FEE")
}

func (n *NFTClient) MaxFee(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, n.contract, "MAX_TKN_FEE")
}

// TokenMetadata is the on-chain-encoded metadata behind a tokenURI.
type TokenMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// OwnedToken is one token of the caller with its decoded metadata.
type OwnedToken struct {
	ID       *big.Int      `json:"id"`
	URI      string        `json:"uri"`
	Metadata TokenMetadata `json:"metadata"`
}

const dataJSONPrefix = "data:application/json;base64,"

// DecodeTokenURI unpacks a base64 data URI into metadata. URIs pointing
// elsewhere (ipfs, https) are returned with only the URI populated.
func DecodeTokenURI(uri string) (TokenMetadata, error) {
	if !strings.HasPrefix(uri, dataJSONPrefix) {
		return TokenMetadata{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, dataJSONPrefix))
	if err != nil {
		return TokenMetadata{}, fmt.Errorf("decode token uri: %w", err)
	}
	var md TokenMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return TokenMetadata{}, fmt.Errorf("parse token metadata: %w", err)
	}
	return md, nil
}

// OwnedTokens enumerates owner's tokens via tokenOfOwnerByIndex and decodes
// each tokenURI. Always a fresh read; nothing is cached.
func OwnedTokens(ctx context.Context, nft NFTCaller, owner common.Address) ([]OwnedToken, error) {
	count, err := nft.BalanceOf(ctx, owner)
	if err != nil {
		return nil, err
	}

	tokens := make([]OwnedToken, 0, count.Int64())
	for i := int64(0); i < count.Int64(); i++ {
		id, err := nft.TokenOfOwnerByIndex(ctx, owner, big.NewInt(i))
		if err != nil {
			return nil, err
		}
		uri, err := nft.TokenURI(ctx, id)
		if err != nil {
			return nil, err
		}
		md, err := DecodeTokenURI(uri)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, OwnedToken{ID: id, URI: uri, Metadata: md})
	}
	return tokens, nil
}
