package provider

import (
	"context"
)

// EventKind names the three provider notifications the session manager
// consumes for its lifetime.
type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
	EventDisconnect      EventKind = "disconnect"
)

// Event is one inbound provider notification.
type Event struct {
	Kind       EventKind
	Accounts   []string // accountsChanged payload
	ChainIDHex string   // chainChanged payload, 0x-prefixed
}

// Provider abstracts the wallet-side JSON-RPC surface: eth_requestAccounts,
// eth_accounts, eth_chainId, wallet_switchEthereumChain and
// wallet_addEthereumChain, plus the notification stream.
type Provider interface {
	Request(ctx context.Context, result any, method string, params ...any) error
	Events() <-chan Event
}
