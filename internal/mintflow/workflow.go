package mintflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"mintgate/internal/chain"
	"mintgate/internal/walleterr"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrActionInFlight rejects a second action while one is running. The
	// guard lives here rather than in the caller's UI affordances.
	ErrActionInFlight = errors.New("a workflow action is already in flight")

	// ErrStepNotActive rejects actions invoked out of order.
	ErrStepNotActive = errors.New("step is not active")
)

// Workflow is the burn-mint state machine: balance-check, approve HAIR,
// approve MAX, mint. Steps advance only through the four action methods;
// every run starts from fresh on-chain reads.
type Workflow struct {
	nft   chain.BurnMintCaller
	hair  chain.TokenCaller
	max   chain.TokenCaller
	owner common.Address

	onMinted func(ctx context.Context)

	mu    sync.Mutex
	busy  bool
	steps [numSteps]Step

	// Fee requirements, read once at Begin and immutable afterwards.
	hairReq TokenRequirement
	maxReq  TokenRequirement
}

func NewWorkflow(nft chain.BurnMintCaller, hair, max chain.TokenCaller, owner common.Address) *Workflow {
	return &Workflow{
		nft:   nft,
		hair:  hair,
		max:   max,
		owner: owner,
		steps: freshSteps(),
	}
}

// OnMinted registers a hook run after a successful mint, used to refresh the
// owned-token list.
func (w *Workflow) OnMinted(fn func(ctx context.Context)) {
	w.onMinted = fn
}

// Steps returns a snapshot of the current step list.
func (w *Workflow) Steps() []Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Step, numSteps)
	copy(out, w.steps[:])
	return out
}

// Requirements returns the fee pair read at Begin. Zero values before Begin.
func (w *Workflow) Requirements() (hair, max TokenRequirement) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hairReq, w.maxReq
}

// Reset recreates the steps; the next Begin re-derives everything from chain.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.steps = freshSteps()
	w.hairReq = TokenRequirement{}
	w.maxReq = TokenRequirement{}
}

// enter marks the action for step running, enforcing the re-entrancy guard.
// An errored step may be re-entered manually; a pending or complete one may
// not.
func (w *Workflow) enter(step int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrActionInFlight
	}
	s := w.steps[step].Status
	if s != StatusActive && s != StatusError {
		return fmt.Errorf("%w: %s is %s", ErrStepNotActive, w.steps[step].Title, s)
	}
	w.busy = true
	w.steps[step].Status = StatusActive
	w.steps[step].Err = ""
	return nil
}

func (w *Workflow) fail(step int, err error) *walleterr.Error {
	classified := walleterr.Classify(err)
	w.mu.Lock()
	w.steps[step].Status = StatusError
	w.steps[step].Err = classified.Error()
	w.busy = false
	w.mu.Unlock()
	return classified
}

func (w *Workflow) complete(step int) {
	w.mu.Lock()
	w.steps[step].Status = StatusComplete
	w.busy = false
	w.mu.Unlock()
}

// Begin runs the balance-check step: read both fee constants once, read the
// caller's balance and allowance for each token, then decide which approval
// (if any) the user must perform next. Sufficient allowances complete their
// approval steps without any transaction.
func (w *Workflow) Begin(ctx context.Context) ([]Step, error) {
	if err := w.enter(StepBalanceCheck); err != nil {
		return w.Steps(), err
	}

	hairFee, err := w.nft.HairFee(ctx)
	if err != nil {
		return w.Steps(), w.fail(StepBalanceCheck, err)
	}
	maxFee, err := w.nft.MaxFee(ctx)
	if err != nil {
		return w.Steps(), w.fail(StepBalanceCheck, err)
	}

	w.mu.Lock()
	w.hairReq = TokenRequirement{Symbol: "HAIR", Amount: hairFee}
	w.maxReq = TokenRequirement{Symbol: "MAX", Amount: maxFee}
	w.mu.Unlock()

	hairStatus, err := w.readStatus(ctx, w.hair, "HAIR", hairFee)
	if err != nil {
		return w.Steps(), w.fail(StepBalanceCheck, err)
	}
	maxStatus, err := w.readStatus(ctx, w.max, "MAX", maxFee)
	if err != nil {
		return w.Steps(), w.fail(StepBalanceCheck, err)
	}

	if !hairStatus.HasSufficientBalance || !maxStatus.HasSufficientBalance {
		return w.Steps(), w.fail(StepBalanceCheck, walleterr.New(walleterr.KindInsufficientBalance,
			"need %s HAIR and %s MAX to mint", hairFee, maxFee))
	}

	w.complete(StepBalanceCheck)
	w.advance(hairStatus.HasSufficientAllowance, maxStatus.HasSufficientAllowance)
	return w.Steps(), nil
}

// advance settles the approval steps from the two allowance flags and
// activates the first actionable step.
func (w *Workflow) advance(hairOK, maxOK bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if hairOK {
		w.steps[StepApproveHair].Status = StatusComplete
	}
	if maxOK {
		w.steps[StepApproveMax].Status = StatusComplete
	}

	switch {
	case !hairOK:
		w.steps[StepApproveHair].Status = StatusActive
	case !maxOK:
		w.steps[StepApproveMax].Status = StatusActive
	default:
		if w.steps[StepMint].Status == StatusPending {
			w.steps[StepMint].Status = StatusActive
		}
	}
}

// ApproveHair submits the HAIR approval for exactly the required fee and
// returns the confirmed transaction hash.
func (w *Workflow) ApproveHair(ctx context.Context) ([]Step, string, error) {
	hreq, _ := w.Requirements()
	return w.approve(ctx, StepApproveHair, w.hair, hreq)
}

// ApproveMax submits the MAX approval for exactly the required fee and
// returns the confirmed transaction hash.
func (w *Workflow) ApproveMax(ctx context.Context) ([]Step, string, error) {
	_, mreq := w.Requirements()
	return w.approve(ctx, StepApproveMax, w.max, mreq)
}

func (w *Workflow) approve(ctx context.Context, step int, token chain.TokenCaller, req TokenRequirement) ([]Step, string, error) {
	if req.Amount == nil {
		return w.Steps(), "", fmt.Errorf("%w: run the balance check first", ErrStepNotActive)
	}
	if err := w.enter(step); err != nil {
		return w.Steps(), "", err
	}

	txHash, err := token.Approve(ctx, w.nft.Address(), req.Amount)
	if err != nil {
		return w.Steps(), "", w.fail(step, err)
	}

	// Read the allowance back after confirmation instead of trusting the
	// value we just wrote; the original flow advanced on stale state here.
	allowance, err := token.Allowance(ctx, w.owner, w.nft.Address())
	if err != nil {
		return w.Steps(), "", w.fail(step, err)
	}
	if allowance.Cmp(req.Amount) < 0 {
		return w.Steps(), "", w.fail(step, walleterr.New(walleterr.KindInsufficientAllow,
			"allowance %s below required %s after approval", allowance, req.Amount))
	}

	w.complete(step)

	hairOK := step == StepApproveHair || w.stepStatus(StepApproveHair) == StatusComplete
	maxOK := step == StepApproveMax || w.stepStatus(StepApproveMax) == StatusComplete
	w.advance(hairOK, maxOK)
	return w.Steps(), txHash, nil
}

// Mint submits the final mint transaction. On success the step list is
// terminal and the owned-token refresh hook fires.
func (w *Workflow) Mint(ctx context.Context) ([]Step, string, error) {
	if err := w.enter(StepMint); err != nil {
		return w.Steps(), "", err
	}

	txHash, err := w.nft.Mint(ctx)
	if err != nil {
		return w.Steps(), "", w.fail(StepMint, err)
	}

	w.complete(StepMint)
	if w.onMinted != nil {
		w.onMinted(ctx)
	}
	return w.Steps(), txHash, nil
}

// TokenStatuses re-reads both token projections. Always fresh; callers use
// this after any mutating transaction.
func (w *Workflow) TokenStatuses(ctx context.Context) (hair, max TokenStatus, err error) {
	hreq, mreq := w.Requirements()
	if hreq.Amount == nil || mreq.Amount == nil {
		return TokenStatus{}, TokenStatus{}, fmt.Errorf("fee requirements not read yet")
	}
	hair, err = w.readStatus(ctx, w.hair, "HAIR", hreq.Amount)
	if err != nil {
		return TokenStatus{}, TokenStatus{}, err
	}
	max, err = w.readStatus(ctx, w.max, "MAX", mreq.Amount)
	if err != nil {
		return TokenStatus{}, TokenStatus{}, err
	}
	return hair, max, nil
}

func (w *Workflow) readStatus(ctx context.Context, token chain.TokenCaller, symbol string, required *big.Int) (TokenStatus, error) {
	balance, err := token.BalanceOf(ctx, w.owner)
	if err != nil {
		return TokenStatus{}, fmt.Errorf("%s balance: %w", symbol, err)
	}
	allowance, err := token.Allowance(ctx, w.owner, w.nft.Address())
	if err != nil {
		return TokenStatus{}, fmt.Errorf("%s allowance: %w", symbol, err)
	}
	return projectStatus(symbol, balance, allowance, required), nil
}

func (w *Workflow) stepStatus(step int) StepStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps[step].Status
}
