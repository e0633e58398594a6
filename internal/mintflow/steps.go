// Package mintflow drives the ordered approve-then-mint sequence for the
// token-burn collection, one user-triggered action at a time, plus the
// single-step flow of the free-mint collection.
package mintflow

import "math/big"

type StepStatus string

const (
	StatusPending  StepStatus = "pending"
	StatusActive   StepStatus = "active"
	StatusComplete StepStatus = "complete"
	StatusError    StepStatus = "error"
)

// Step ordinals for the burn-mint sequence. The order is fixed.
const (
	StepBalanceCheck = iota
	StepApproveHair
	StepApproveMax
	StepMint
	numSteps
)

// Step is one discrete user-facing stage. Only the workflow mutates Status.
type Step struct {
	Ordinal int        `json:"ordinal"`
	Title   string     `json:"title"`
	Status  StepStatus `json:"status"`
	Err     string     `json:"error,omitempty"`
}

func freshSteps() [numSteps]Step {
	steps := [numSteps]Step{
		{Ordinal: StepBalanceCheck, Title: "Check token balances"},
		{Ordinal: StepApproveHair, Title: "Approve HAIR"},
		{Ordinal: StepApproveMax, Title: "Approve MAX"},
		{Ordinal: StepMint, Title: "Mint"},
	}
	for i := range steps {
		steps[i].Status = StatusPending
	}
	steps[StepBalanceCheck].Status = StatusActive
	return steps
}

// TokenRequirement is the immutable (token, amount) pair read once from the
// contract's fee constants at workflow start.
type TokenRequirement struct {
	Symbol string   `json:"symbol"`
	Amount *big.Int `json:"amount"`
}

// TokenStatus is a pure projection of on-chain state at read time. It is
// recomputed on demand and never cached across transactions.
type TokenStatus struct {
	Symbol                 string   `json:"symbol"`
	Balance                *big.Int `json:"balance"`
	Allowance              *big.Int `json:"allowance"`
	HasSufficientBalance   bool     `json:"hasSufficientBalance"`
	HasSufficientAllowance bool     `json:"hasSufficientAllowance"`
}

func projectStatus(symbol string, balance, allowance, required *big.Int) TokenStatus {
	return TokenStatus{
		Symbol:                 symbol,
		Balance:                balance,
		Allowance:              allowance,
		HasSufficientBalance:   balance.Cmp(required) >= 0,
		HasSufficientAllowance: allowance.Cmp(required) >= 0,
	}
}
