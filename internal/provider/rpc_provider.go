package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCProvider talks to a wallet-enabled JSON-RPC endpoint. The browser world
// delivers accountsChanged/chainChanged/disconnect as push notifications; a
// plain RPC endpoint does not, so Watch polls eth_accounts and eth_chainId
// and synthesizes the same events.
type RPCProvider struct {
	client *rpc.Client
	events chan Event

	lastAccounts []string
	lastChainHex string
	down         bool
}

func NewRPCProvider(ctx context.Context, url string) (*RPCProvider, error) {
	if url == "" {
		return nil, fmt.Errorf("wallet rpc url is required")
	}
	cli, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet rpc: %w", err)
	}
	return &RPCProvider{
		client: cli,
		events: make(chan Event, 16),
	}, nil
}

func (p *RPCProvider) Request(ctx context.Context, result any, method string, params ...any) error {
	return p.client.CallContext(ctx, result, method, params...)
}

func (p *RPCProvider) Events() <-chan Event {
	return p.events
}

func (p *RPCProvider) Close() {
	p.client.Close()
}

// Watch polls the endpoint until ctx is cancelled, emitting change events.
// An unreachable endpoint emits a single disconnect until it recovers.
func (p *RPCProvider) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *RPCProvider) poll(ctx context.Context) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		if !p.down {
			p.down = true
			p.emit(Event{Kind: EventDisconnect})
		}
		return
	}
	p.down = false

	var chainHex string
	if err := p.client.CallContext(ctx, &chainHex, "eth_chainId"); err != nil {
		return
	}

	if chainHex != p.lastChainHex {
		p.lastChainHex = chainHex
		p.emit(Event{Kind: EventChainChanged, ChainIDHex: chainHex})
	}
	if !equalAccounts(accounts, p.lastAccounts) {
		p.lastAccounts = accounts
		p.emit(Event{Kind: EventAccountsChanged, Accounts: accounts})
	}
}

func (p *RPCProvider) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		// Consumer is behind; drop rather than stall the poll loop.
	}
}

func equalAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
