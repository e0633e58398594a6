package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend holds the node connection and the signing identity shared by all
// contract clients.
type Backend struct {
	client    *ethclient.Client
	chainID   *big.Int
	transacts *bind.TransactOpts
}

type BackendConfig struct {
	RPCURL        string
	PrivateKeyHex string
}

func Dial(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	b := &Backend{client: cli, chainID: chainID}

	if cfg.PrivateKeyHex != "" {
		pk, err := parsePrivateKey(cfg.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
		if err != nil {
			return nil, fmt.Errorf("transactor: %w", err)
		}
		txOpts.GasLimit = 0 // let node estimate
		txOpts.GasPrice = nil
		txOpts.Nonce = nil
		b.transacts = txOpts
	}

	return b, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := b.client.BlockNumber(ctx)
	return err
}

func (b *Backend) bound(address common.Address, abiJSON string) (*bind.BoundContract, abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return bind.NewBoundContract(address, parsed, b.client, b.client, b.client), parsed, nil
}

// transact submits a state-changing call and blocks until it is mined. A
// reverted receipt is an error; the hash is returned either way so callers
// can surface it.
func (b *Backend) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...any) (string, error) {
	if b.transacts == nil {
		return "", fmt.Errorf("backend is read-only")
	}

	opts := *b.transacts
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		return "", fmt.Errorf("%s tx: %w", method, err)
	}

	receipt, err := WaitForReceipt(ctx, b.client, tx)
	if err != nil {
		return tx.Hash().Hex(), fmt.Errorf("%s confirmation: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), fmt.Errorf("%s reverted in block %d", method, receipt.BlockNumber)
	}
	return tx.Hash().Hex(), nil
}

func callBig(ctx context.Context, contract *bind.BoundContract, method string, args ...any) (*big.Int, error) {
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s call: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func callString(ctx context.Context, contract *bind.BoundContract, method string, args ...any) (string, error) {
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return "", fmt.Errorf("%s call: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// WaitForReceipt polls until the transaction is mined or ctx is cancelled.
// It carries no timeout of its own; callers bound it through the context.
func WaitForReceipt(ctx context.Context, client *ethclient.Client, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && err.Error() != "not found" {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
