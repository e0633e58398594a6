package provider

import (
	"context"
	"fmt"
	"sync"
)

// Call records one Request made against the fake.
type Call struct {
	Method string
	Params []any
}

// Handler produces the result for one method invocation. Write the response
// into result (which is a pointer) or return an error.
type Handler func(result any, params []any) error

// FakeProvider is a scripted provider for tests and for running the gateway
// without a wallet endpoint.
type FakeProvider struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	events   chan Event
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		handlers: make(map[string]Handler),
		events:   make(chan Event, 16),
	}
}

// Handle scripts the response for method.
func (f *FakeProvider) Handle(method string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

// HandleAccounts scripts eth_accounts / eth_requestAccounts style methods
// that return a string slice.
func (f *FakeProvider) HandleAccounts(method string, accounts ...string) {
	f.Handle(method, func(result any, _ []any) error {
		out, ok := result.(*[]string)
		if !ok {
			return fmt.Errorf("%s: unexpected result type %T", method, result)
		}
		*out = append([]string(nil), accounts...)
		return nil
	})
}

// HandleString scripts methods returning a single string, e.g. eth_chainId.
func (f *FakeProvider) HandleString(method, value string) {
	f.Handle(method, func(result any, _ []any) error {
		out, ok := result.(*string)
		if !ok {
			return fmt.Errorf("%s: unexpected result type %T", method, result)
		}
		*out = value
		return nil
	})
}

func (f *FakeProvider) Request(_ context.Context, result any, method string, params ...any) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Params: params})
	h, ok := f.handlers[method]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("unscripted method %s", method)
	}
	return h(result, params)
}

func (f *FakeProvider) Events() <-chan Event {
	return f.events
}

// Emit pushes a provider notification to the consumer.
func (f *FakeProvider) Emit(ev Event) {
	f.events <- ev
}

// Calls returns a copy of every recorded request.
func (f *FakeProvider) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount reports how many times method was requested.
func (f *FakeProvider) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CodedError mimics a wallet JSON-RPC error with a numeric code, e.g. 4001
// for a user rejection or 4902 for an unrecognized chain.
type CodedError struct {
	Code    int
	Message string
}

func (e *CodedError) Error() string  { return e.Message }
func (e *CodedError) ErrorCode() int { return e.Code }
