package mintflow

import (
	"context"
	"errors"
	"testing"

	"mintgate/internal/chain"
	"mintgate/internal/walleterr"

	"github.com/ethereum/go-ethereum/common"
)

var owner = common.HexToAddress("0x1111111111111111111111111111111111111111")

const nftAddr = "0x9999999999999999999999999999999999999999"

func burnFixture(hairBalance, hairAllow, maxBalance, maxAllow int64) (*Workflow, *chain.FakeNFT, *chain.FakeToken, *chain.FakeToken) {
	nft := chain.NewFakeNFT(nftAddr)
	nft.HairFeeWei.SetInt64(100)
	nft.MaxFeeWei.SetInt64(50)
	hair := chain.NewFakeToken(hairBalance, hairAllow)
	max := chain.NewFakeToken(maxBalance, maxAllow)
	return NewWorkflow(nft, hair, max, owner), nft, hair, max
}

func wantStatuses(t *testing.T, steps []Step, want [numSteps]StepStatus) {
	t.Helper()
	for i, step := range steps {
		if step.Status != want[i] {
			t.Fatalf("step %d (%s): got %s, want %s", i, step.Title, step.Status, want[i])
		}
	}
}

func TestBeginSkipsSatisfiedApprovals(t *testing.T) {
	w, _, hair, max := burnFixture(1000, 100, 1000, 50)

	steps, err := w.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	wantStatuses(t, steps, [numSteps]StepStatus{StatusComplete, StatusComplete, StatusComplete, StatusActive})
	if hair.ApproveCalls != 0 || max.ApproveCalls != 0 {
		t.Fatalf("no approve transaction may be submitted when allowances suffice")
	}
}

func TestBeginActivatesFirstMissingApproval(t *testing.T) {
	w, _, _, _ := burnFixture(1000, 0, 1000, 50)

	steps, err := w.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	wantStatuses(t, steps, [numSteps]StepStatus{StatusComplete, StatusActive, StatusComplete, StatusPending})
}

func TestBeginInsufficientBalance(t *testing.T) {
	w, _, _, _ := burnFixture(10, 0, 1000, 0)

	steps, err := w.Begin(context.Background())
	if err == nil {
		t.Fatalf("expected insufficient balance error")
	}
	if walleterr.KindOf(err) != walleterr.KindInsufficientBalance {
		t.Fatalf("expected insufficient-balance, got %v", walleterr.KindOf(err))
	}
	wantStatuses(t, steps, [numSteps]StepStatus{StatusError, StatusPending, StatusPending, StatusPending})
}

func TestApproveRejectionHaltsSequence(t *testing.T) {
	w, _, hair, _ := burnFixture(1000, 0, 1000, 0)
	hair.ApproveErr = &rejectedErr{}

	if _, err := w.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}

	steps, _, err := w.ApproveHair(context.Background())
	if err == nil {
		t.Fatalf("expected approval failure")
	}
	if walleterr.KindOf(err) != walleterr.KindUserRejected {
		t.Fatalf("expected user-rejected, got %v", walleterr.KindOf(err))
	}
	wantStatuses(t, steps, [numSteps]StepStatus{StatusComplete, StatusError, StatusPending, StatusPending})

	// The errored step stays manually re-invocable.
	hair.ApproveErr = nil
	steps, _, err = w.ApproveHair(context.Background())
	if err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	wantStatuses(t, steps, [numSteps]StepStatus{StatusComplete, StatusComplete, StatusActive, StatusPending})
}

func TestEndToEndBurnMint(t *testing.T) {
	w, nft, hair, _ := burnFixture(1000, 0, 1000, 50)

	refreshed := 0
	w.OnMinted(func(context.Context) { refreshed++ })

	steps, err := w.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	wantStatuses(t, steps, [numSteps]StepStatus{StatusComplete, StatusActive, StatusComplete, StatusPending})

	steps, approveHash, err := w.ApproveHair(context.Background())
	if err != nil {
		t.Fatalf("approve hair: %v", err)
	}
	if approveHash == "" {
		t.Fatalf("expected approve tx hash")
	}
	wantStatuses(t, steps, [numSteps]StepStatus{StatusComplete, StatusComplete, StatusComplete, StatusActive})
	if hair.ApproveCalls != 1 {
		t.Fatalf("expected exactly one approve tx, got %d", hair.ApproveCalls)
	}
	if hair.Allow.Int64() != 100 {
		t.Fatalf("approval must be for exactly the fee, got %s", hair.Allow)
	}

	steps, txHash, err := w.Mint(context.Background())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if txHash == "" {
		t.Fatalf("expected tx hash")
	}
	wantStatuses(t, steps, [numSteps]StepStatus{StatusComplete, StatusComplete, StatusComplete, StatusComplete})
	if nft.MintCalls != 1 {
		t.Fatalf("expected one mint tx, got %d", nft.MintCalls)
	}
	if refreshed != 1 {
		t.Fatalf("owned-token refresh must fire after mint")
	}
}

func TestApproveOutOfOrderRejected(t *testing.T) {
	w, _, hair, _ := burnFixture(1000, 100, 1000, 50)

	// Balance check not run yet.
	if _, _, err := w.ApproveHair(context.Background()); !errors.Is(err, ErrStepNotActive) {
		t.Fatalf("expected ErrStepNotActive before begin, got %v", err)
	}

	if _, err := w.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// Both approvals completed by the balance check; approving again is out
	// of order.
	if _, _, err := w.ApproveHair(context.Background()); !errors.Is(err, ErrStepNotActive) {
		t.Fatalf("expected ErrStepNotActive for completed step, got %v", err)
	}
	if hair.ApproveCalls != 0 {
		t.Fatalf("no transaction may be submitted for a rejected action")
	}
}

func TestActionInFlightRejected(t *testing.T) {
	w, _, _, _ := burnFixture(1000, 0, 1000, 0)

	w.mu.Lock()
	w.busy = true
	w.mu.Unlock()

	if _, err := w.Begin(context.Background()); !errors.Is(err, ErrActionInFlight) {
		t.Fatalf("expected ErrActionInFlight, got %v", err)
	}
}

func TestResetForcesFreshReads(t *testing.T) {
	w, _, hair, _ := burnFixture(1000, 100, 1000, 50)

	if _, err := w.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}

	// Allowance spent on chain between runs; a fresh run must see it.
	hair.Allow.SetInt64(0)
	w.Reset()

	steps, err := w.Begin(context.Background())
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	wantStatuses(t, steps, [numSteps]StepStatus{StatusComplete, StatusActive, StatusComplete, StatusPending})
}

func TestTokenStatusesAreFreshProjections(t *testing.T) {
	w, _, hair, _ := burnFixture(1000, 0, 1000, 50)

	if _, err := w.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}

	hairStatus, maxStatus, err := w.TokenStatuses(context.Background())
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if hairStatus.HasSufficientAllowance || !hairStatus.HasSufficientBalance {
		t.Fatalf("unexpected hair status %+v", hairStatus)
	}
	if !maxStatus.HasSufficientAllowance {
		t.Fatalf("unexpected max status %+v", maxStatus)
	}

	hair.Allow.SetInt64(100)
	hairStatus, _, err = w.TokenStatuses(context.Background())
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if !hairStatus.HasSufficientAllowance {
		t.Fatalf("status must reflect the chain, not a cache: %+v", hairStatus)
	}
}

func TestFreeMintRejectsSecondMintLocally(t *testing.T) {
	nft := chain.NewFakeNFT(nftAddr)
	nft.Balance.SetInt64(1)

	fm := NewFreeMint(nft, owner)

	eligible, err := fm.Eligible(context.Background())
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if eligible {
		t.Fatalf("holder of one token must be ineligible")
	}

	_, err = fm.Mint(context.Background())
	if err == nil {
		t.Fatalf("expected precondition failure")
	}
	if walleterr.KindOf(err) != walleterr.KindPrecondition {
		t.Fatalf("expected contract-precondition-failed, got %v", walleterr.KindOf(err))
	}
	if nft.MintCalls != 0 {
		t.Fatalf("mint must be rejected before any transaction is submitted")
	}
}

func TestFreeMintHappyPath(t *testing.T) {
	nft := chain.NewFakeNFT(nftAddr)
	fm := NewFreeMint(nft, owner)

	txHash, err := fm.Mint(context.Background())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if txHash == "" || nft.MintCalls != 1 {
		t.Fatalf("expected one mint tx, got %q / %d", txHash, nft.MintCalls)
	}
}

// rejectedErr mimics a wallet cancellation carrying code 4001.
type rejectedErr struct{}

func (*rejectedErr) Error() string  { return "user rejected transaction" }
func (*rejectedErr) ErrorCode() int { return walleterr.CodeUserRejected }
