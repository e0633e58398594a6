package session

import (
	"context"
	"errors"
	"testing"

	"mintgate/internal/config"
	"mintgate/internal/provider"
	"mintgate/internal/walleterr"

	"github.com/ethereum/go-ethereum/common"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

func testNetwork() config.NetworkConfig {
	return config.NetworkConfig{
		ChainID:    250,
		ChainIDHex: "0xfa",
		ChainName:  "Fantom Opera",
		RPCURL:     "https://rpc.example",
		NativeCurrency: config.NativeCurrency{
			Name: "Fantom", Symbol: "FTM", Decimals: 18,
		},
		BlockExplorerURL: "https://explorer.example",
	}
}

func connectedManager(t *testing.T, fake *provider.FakeProvider) *Manager {
	t.Helper()
	fake.HandleAccounts("eth_requestAccounts", addrA)
	fake.HandleString("eth_chainId", "0xfa")
	m := NewManager(fake, testNetwork())
	if _, err := m.Connect(context.Background(), MethodExtension); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return m
}

func assertInvariant(t *testing.T, s State) {
	t.Helper()
	zeroAddr := s.Address == (common.Address{})
	if s.Connected && (zeroAddr || s.ChainID == 0) {
		t.Fatalf("connected state half-populated: %+v", s)
	}
	if !s.Connected && (!zeroAddr || s.ChainID != 0) {
		t.Fatalf("disconnected state retains fields: %+v", s)
	}
}

func TestConnectCapturesAddressAndChain(t *testing.T) {
	fake := provider.NewFakeProvider()
	m := connectedManager(t, fake)

	s := m.State()
	if !s.Connected {
		t.Fatalf("expected connected session")
	}
	if s.Address != common.HexToAddress(addrA) {
		t.Fatalf("unexpected address %s", s.Address.Hex())
	}
	if s.ChainID != 250 {
		t.Fatalf("unexpected chain id %d", s.ChainID)
	}
	assertInvariant(t, s)
}

func TestConnectWalletConnectNotImplemented(t *testing.T) {
	m := NewManager(provider.NewFakeProvider(), testNetwork())
	_, err := m.Connect(context.Background(), MethodWalletConnect)
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	assertInvariant(t, m.State())
}

func TestProbeRestoresAuthorizedSession(t *testing.T) {
	fake := provider.NewFakeProvider()
	fake.HandleAccounts("eth_accounts", addrA)
	fake.HandleString("eth_chainId", "0xfa")
	m := NewManager(fake, testNetwork())

	m.Probe(context.Background())

	s := m.State()
	if !s.Connected || s.Address != common.HexToAddress(addrA) || s.ChainID != 250 {
		t.Fatalf("probe must restore the authorized session, got %+v", s)
	}
	assertInvariant(t, s)
}

func TestProbeWithoutAuthorizationStaysDisconnected(t *testing.T) {
	fake := provider.NewFakeProvider()
	fake.HandleAccounts("eth_accounts")
	m := NewManager(fake, testNetwork())

	m.Probe(context.Background())

	if m.State().Connected {
		t.Fatalf("probe must not connect without an authorized account")
	}
	assertInvariant(t, m.State())
}

func TestConnectRejectionResetsSession(t *testing.T) {
	fake := provider.NewFakeProvider()
	fake.Handle("eth_requestAccounts", func(any, []any) error {
		return &provider.CodedError{Code: walleterr.CodeUserRejected, Message: "user denied"}
	})

	m := NewManager(fake, testNetwork())
	_, err := m.Connect(context.Background(), MethodExtension)
	if err == nil {
		t.Fatalf("expected error")
	}
	if walleterr.KindOf(err) != walleterr.KindUserRejected {
		t.Fatalf("expected user-rejected kind, got %v", walleterr.KindOf(err))
	}
	s := m.State()
	if s.Connected {
		t.Fatalf("session should be reset after failed connect")
	}
	assertInvariant(t, s)
}

func TestConnectSwitchFailureDoesNotFailConnect(t *testing.T) {
	fake := provider.NewFakeProvider()
	fake.HandleAccounts("eth_requestAccounts", addrA)
	fake.HandleString("eth_chainId", "0x1") // wrong chain triggers the switch
	fake.Handle("wallet_switchEthereumChain", func(any, []any) error {
		return errors.New("switch refused")
	})

	m := NewManager(fake, testNetwork())
	s, err := m.Connect(context.Background(), MethodExtension)
	if err != nil {
		t.Fatalf("connect should survive a failed switch: %v", err)
	}
	if !s.Connected {
		t.Fatalf("expected connected session")
	}
	if fake.CallCount("wallet_switchEthereumChain") != 1 {
		t.Fatalf("expected one switch attempt")
	}
}

func TestSwitchNetworkAddsUnrecognizedChainOnce(t *testing.T) {
	fake := provider.NewFakeProvider()
	fake.Handle("wallet_switchEthereumChain", func(any, []any) error {
		return &provider.CodedError{Code: walleterr.CodeUnrecognizedChain, Message: "unrecognized chain"}
	})
	var added []any
	fake.Handle("wallet_addEthereumChain", func(_ any, params []any) error {
		added = append(added, params...)
		return nil
	})

	m := NewManager(fake, testNetwork())
	if err := m.SwitchNetwork(context.Background()); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if fake.CallCount("wallet_addEthereumChain") != 1 {
		t.Fatalf("expected exactly one add-chain call, got %d", fake.CallCount("wallet_addEthereumChain"))
	}
	if fake.CallCount("wallet_switchEthereumChain") != 1 {
		t.Fatalf("switch must not be re-invoked after add")
	}
	if len(added) != 1 {
		t.Fatalf("expected one add-chain param record")
	}
	record, ok := added[0].(addChainParams)
	if !ok {
		t.Fatalf("unexpected add-chain param type %T", added[0])
	}
	net := testNetwork()
	if record.ChainID != net.ChainIDHex || record.ChainName != net.ChainName {
		t.Fatalf("add-chain record does not match network config: %+v", record)
	}
	if len(record.RPCURLs) != 1 || record.RPCURLs[0] != net.RPCURL {
		t.Fatalf("add-chain rpc urls wrong: %+v", record.RPCURLs)
	}
	if record.NativeCurrency != net.NativeCurrency {
		t.Fatalf("add-chain native currency wrong: %+v", record.NativeCurrency)
	}
}

func TestSwitchNetworkGenericFailure(t *testing.T) {
	fake := provider.NewFakeProvider()
	fake.Handle("wallet_switchEthereumChain", func(any, []any) error {
		return errors.New("rpc down")
	})

	m := NewManager(fake, testNetwork())
	err := m.SwitchNetwork(context.Background())
	if err == nil {
		t.Fatalf("expected switch failure")
	}
	if walleterr.KindOf(err) != walleterr.KindRPC {
		t.Fatalf("expected rpc-error kind, got %v", walleterr.KindOf(err))
	}
	if fake.CallCount("wallet_addEthereumChain") != 0 {
		t.Fatalf("add chain must not be called for generic failures")
	}
}

func TestEmptyAccountsEventDisconnects(t *testing.T) {
	fake := provider.NewFakeProvider()
	m := connectedManager(t, fake)

	m.handleEvent(context.Background(), provider.Event{Kind: provider.EventAccountsChanged})

	s := m.State()
	if s.Connected {
		t.Fatalf("empty accountsChanged must disconnect")
	}
	assertInvariant(t, s)
}

func TestAccountsChangedSwitchesAddress(t *testing.T) {
	fake := provider.NewFakeProvider()
	m := connectedManager(t, fake)

	m.handleEvent(context.Background(), provider.Event{
		Kind:     provider.EventAccountsChanged,
		Accounts: []string{addrB},
	})

	s := m.State()
	if !s.Connected || s.Address != common.HexToAddress(addrB) {
		t.Fatalf("expected address switch to %s, got %+v", addrB, s)
	}
	assertInvariant(t, s)
}

func TestChainChangedUpdatesNetwork(t *testing.T) {
	fake := provider.NewFakeProvider()
	m := connectedManager(t, fake)
	fake.HandleAccounts("eth_accounts", addrA)

	m.handleEvent(context.Background(), provider.Event{
		Kind:       provider.EventChainChanged,
		ChainIDHex: "0x1",
	})

	s := m.State()
	if !s.Connected || s.ChainID != 1 {
		t.Fatalf("expected chain id 1, got %+v", s)
	}
	if m.OnTarget() {
		t.Fatalf("chain 1 is not the target network")
	}
	assertInvariant(t, s)
}

func TestDisconnectEventResets(t *testing.T) {
	fake := provider.NewFakeProvider()
	m := connectedManager(t, fake)

	m.handleEvent(context.Background(), provider.Event{Kind: provider.EventDisconnect})

	if m.State().Connected {
		t.Fatalf("disconnect event must reset the session")
	}
	assertInvariant(t, m.State())
}

// Any event sequence ending in an empty account list leaves the session
// unset, and the both-or-neither invariant holds at every intermediate step.
func TestEventSequencesEndingEmptyDisconnect(t *testing.T) {
	sequences := [][]provider.Event{
		{
			{Kind: provider.EventAccountsChanged, Accounts: []string{addrB}},
			{Kind: provider.EventAccountsChanged},
		},
		{
			{Kind: provider.EventChainChanged, ChainIDHex: "0x1"},
			{Kind: provider.EventAccountsChanged, Accounts: []string{addrA, addrB}},
			{Kind: provider.EventAccountsChanged},
		},
		{
			{Kind: provider.EventDisconnect},
			{Kind: provider.EventAccountsChanged},
		},
	}

	for i, seq := range sequences {
		fake := provider.NewFakeProvider()
		m := connectedManager(t, fake)
		fake.HandleAccounts("eth_accounts", addrA)

		for _, ev := range seq {
			m.handleEvent(context.Background(), ev)
			assertInvariant(t, m.State())
		}
		if m.State().Connected {
			t.Fatalf("sequence %d: expected disconnected end state, got %+v", i, m.State())
		}
	}
}

func TestSubscribeNotifiesAndCancels(t *testing.T) {
	fake := provider.NewFakeProvider()
	fake.HandleAccounts("eth_requestAccounts", addrA)
	fake.HandleString("eth_chainId", "0xfa")

	m := NewManager(fake, testNetwork())

	var got []State
	cancel := m.Subscribe(func(s State) { got = append(got, s) })

	if _, err := m.Connect(context.Background(), MethodExtension); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if len(got) == 0 || !got[len(got)-1].Connected {
		t.Fatalf("subscriber not notified of connect: %+v", got)
	}

	cancel()
	seen := len(got)
	m.Disconnect()
	if len(got) != seen {
		t.Fatalf("cancelled subscriber still notified")
	}
	if m.State().Connected {
		t.Fatalf("disconnect must reset state")
	}
}

func TestReducePure(t *testing.T) {
	connected := State{Connected: true, Address: common.HexToAddress(addrA), ChainID: 250}

	if s := reduce(connected, provider.Event{Kind: provider.EventDisconnect}); s != (State{}) {
		t.Fatalf("disconnect must produce the zero state, got %+v", s)
	}
	if s := reduce(connected, provider.Event{Kind: provider.EventAccountsChanged}); s != (State{}) {
		t.Fatalf("empty accounts must produce the zero state, got %+v", s)
	}
	s := reduce(connected, provider.Event{Kind: provider.EventChainChanged, ChainIDHex: "0x1"})
	if s.ChainID != 1 || s.Address != connected.Address {
		t.Fatalf("chain change must keep address and update chain, got %+v", s)
	}
	// A malformed chain id leaves the state untouched.
	if s := reduce(connected, provider.Event{Kind: provider.EventChainChanged, ChainIDHex: "zz"}); s != connected {
		t.Fatalf("bad chain hex must not change state, got %+v", s)
	}
}
