// Package session owns the wallet binding: connected address, active network
// and the provider handle used for everything downstream. It is the single
// source of truth for "are we connected, to what address, on what network".
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"mintgate/internal/config"
	"mintgate/internal/provider"
	"mintgate/internal/walleterr"

	"github.com/ethereum/go-ethereum/common"
)

// Method selects how the wallet is reached.
type Method string

const (
	MethodExtension     Method = "extension"
	MethodWalletConnect Method = "walletconnect"
)

// ErrNotImplemented is returned for connection methods we do not support yet.
var ErrNotImplemented = errors.New("walletconnect is not implemented")

// State is the session snapshot handed to subscribers. Address and ChainID
// are both set or both zero; Connected is true exactly when they are set.
type State struct {
	Connected bool
	Address   common.Address
	ChainID   uint64
}

// Manager drives connect/disconnect/switch-network and consumes provider
// notifications for the lifetime of the process.
type Manager struct {
	provider provider.Provider
	network  config.NetworkConfig

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

func NewManager(p provider.Provider, network config.NetworkConfig) *Manager {
	return &Manager{
		provider: p,
		network:  network,
		subs:     make(map[int]func(State)),
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every state change. The returned func cancels
// the subscription.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) set(s State) {
	m.mu.Lock()
	m.state = s
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Connect establishes the session. For MethodExtension it requests account
// authorization, captures the first account and the active chain, then makes
// a best-effort switch to the target network; a failed switch is logged but
// does not fail the connect. Any other failure resets the session before the
// error is returned so callers never observe a half-connected state.
func (m *Manager) Connect(ctx context.Context, method Method) (State, error) {
	if method == MethodWalletConnect {
		return State{}, ErrNotImplemented
	}
	if method != MethodExtension {
		return State{}, fmt.Errorf("unknown connect method %q", method)
	}
	if m.provider == nil {
		return State{}, walleterr.New(walleterr.KindProviderUnavailable, "no wallet provider configured")
	}

	var accounts []string
	if err := m.provider.Request(ctx, &accounts, "eth_requestAccounts"); err != nil {
		m.set(State{})
		return State{}, walleterr.Classify(err)
	}
	if len(accounts) == 0 {
		m.set(State{})
		return State{}, walleterr.New(walleterr.KindRPC, "wallet returned no accounts")
	}

	chainID, err := m.readChainID(ctx)
	if err != nil {
		m.set(State{})
		return State{}, walleterr.Wrap(walleterr.KindRPC, err)
	}

	next := State{
		Connected: true,
		Address:   common.HexToAddress(accounts[0]),
		ChainID:   chainID,
	}
	m.set(next)

	if chainID != uint64(m.network.ChainID) {
		if err := m.SwitchNetwork(ctx); err != nil {
			log.Printf("network switch after connect failed: %v", err)
		}
	}
	return m.State(), nil
}

// Disconnect resets the session unconditionally. It never fails.
func (m *Manager) Disconnect() {
	m.set(State{})
}

// Probe checks for an already-authorized account without prompting, the
// page-load path of the original flow. Read failures leave the session
// untouched.
func (m *Manager) Probe(ctx context.Context) {
	var accounts []string
	if err := m.provider.Request(ctx, &accounts, "eth_accounts"); err != nil || len(accounts) == 0 {
		return
	}
	chainID, err := m.readChainID(ctx)
	if err != nil {
		return
	}
	m.set(State{Connected: true, Address: common.HexToAddress(accounts[0]), ChainID: chainID})
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

type addChainParams struct {
	ChainID           string                `json:"chainId"`
	ChainName         string                `json:"chainName"`
	RPCURLs           []string              `json:"rpcUrls"`
	NativeCurrency    config.NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string              `json:"blockExplorerUrls"`
}

// SwitchNetwork asks the wallet to move to the target chain. If the wallet
// does not know the chain (code 4902) the fixed network record is offered via
// wallet_addEthereumChain instead; the add is expected to land the wallet on
// the chain, so no second switch is issued.
func (m *Manager) SwitchNetwork(ctx context.Context) error {
	err := m.provider.Request(ctx, nil, "wallet_switchEthereumChain",
		switchChainParams{ChainID: m.network.ChainIDHex})
	if err == nil {
		m.noteChain(uint64(m.network.ChainID))
		return nil
	}

	if walleterr.ErrorCode(err) == walleterr.CodeUnrecognizedChain {
		addErr := m.provider.Request(ctx, nil, "wallet_addEthereumChain", addChainParams{
			ChainID:           m.network.ChainIDHex,
			ChainName:         m.network.ChainName,
			RPCURLs:           []string{m.network.RPCURL},
			NativeCurrency:    m.network.NativeCurrency,
			BlockExplorerURLs: []string{m.network.BlockExplorerURL},
		})
		if addErr != nil {
			return walleterr.Wrap(walleterr.KindRPC, fmt.Errorf("add chain: %w", addErr))
		}
		m.noteChain(uint64(m.network.ChainID))
		return nil
	}

	if walleterr.ErrorCode(err) == walleterr.CodeUserRejected {
		return walleterr.Wrap(walleterr.KindUserRejected, err)
	}
	return walleterr.Wrap(walleterr.KindRPC, fmt.Errorf("failed to switch network: %w", err))
}

// OnTarget reports whether the session is connected to the configured chain.
func (m *Manager) OnTarget() bool {
	s := m.State()
	return s.Connected && s.ChainID == uint64(m.network.ChainID)
}

// Run consumes provider notifications until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.provider.Events():
			if !ok {
				return
			}
			m.handleEvent(ctx, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev provider.Event) {
	switch ev.Kind {
	case provider.EventDisconnect:
		m.set(reduce(m.State(), ev))

	case provider.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			m.set(reduce(m.State(), ev))
			return
		}
		cur := m.State()
		if cur.Connected {
			m.set(reduce(cur, ev))
			return
		}
		// Wallet-side connect while we were idle: derive the chain before
		// publishing so the snapshot is never half-populated. A failed read
		// during passive sync keeps the prior state.
		chainID, err := m.readChainID(ctx)
		if err != nil {
			return
		}
		m.set(State{Connected: true, Address: common.HexToAddress(ev.Accounts[0]), ChainID: chainID})

	case provider.EventChainChanged:
		cur := m.State()
		if !cur.Connected {
			return
		}
		next := reduce(cur, ev)
		// Re-derive the account in case the wallet switched it together
		// with the chain; a read failure keeps the address we have.
		var accounts []string
		if err := m.provider.Request(ctx, &accounts, "eth_accounts"); err == nil {
			if len(accounts) == 0 {
				m.set(State{})
				return
			}
			next.Address = common.HexToAddress(accounts[0])
		}
		m.set(next)
	}
}

// reduce is the pure (state, event) -> state core of passive sync. Reads
// needed to complete a transition happen in handleEvent around it.
func reduce(s State, ev provider.Event) State {
	switch ev.Kind {
	case provider.EventDisconnect:
		return State{}
	case provider.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			return State{}
		}
		if !s.Connected {
			return s
		}
		s.Address = common.HexToAddress(ev.Accounts[0])
		return s
	case provider.EventChainChanged:
		if !s.Connected {
			return s
		}
		id, err := parseChainHex(ev.ChainIDHex)
		if err != nil {
			return s
		}
		s.ChainID = id
		return s
	}
	return s
}

func (m *Manager) noteChain(id uint64) {
	m.mu.Lock()
	changed := m.state.Connected && m.state.ChainID != id
	if changed {
		m.state.ChainID = id
	}
	s := m.state
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	if changed {
		for _, fn := range fns {
			fn(s)
		}
	}
}

func (m *Manager) readChainID(ctx context.Context) (uint64, error) {
	var chainHex string
	if err := m.provider.Request(ctx, &chainHex, "eth_chainId"); err != nil {
		return 0, fmt.Errorf("read chain id: %w", err)
	}
	return parseChainHex(chainHex)
}

func parseChainHex(s string) (uint64, error) {
	v := strings.TrimPrefix(s, "0x")
	id, err := strconv.ParseUint(v, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chain id %q: %w", s, err)
	}
	return id, nil
}
