// Package approval implements the token transfer approval flow.
//
// The flow is a small state machine (Idle → Processing → Succeeded/Failed)
// wrapped around an ERC-20 approve transaction, plus an independently
// fetched allowance. The externally observable "approved" boolean is
// derived: a successful submission OR an allowance already covering the
// required amount.
package approval

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/peerswapd/peerswap/internal/logging"
	"github.com/peerswapd/peerswap/internal/metrics"
)

var (
	ErrSigningDisabled = errors.New("approval: no signing key configured")
	ErrInvalidAmount   = errors.New("approval: amount must be a positive integer")
	ErrBusy            = errors.New("approval: submission already in progress")
)

// DefaultGasLimit is used when gas estimation fails.
const DefaultGasLimit = uint64(80_000)

// Status is the lifecycle of a single approval attempt.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	// StatusFailed is transient: the flow reports it once and re-enables,
	// it is never persisted.
	StatusFailed Status = "failed"
)

// State is the observable flow state.
type State struct {
	Status    Status   `json:"status"`
	Allowance *big.Int `json:"allowance,omitempty"`
	Amount    *big.Int `json:"amount,omitempty"`
}

// Approved derives the external approval boolean: a successful submission,
// or an already-sufficient allowance, regardless of status.
func (s State) Approved() bool {
	if s.Status == StatusSucceeded {
		return true
	}
	return s.Allowance != nil && s.Amount != nil && s.Allowance.Cmp(s.Amount) >= 0
}

// ChainClient is the slice of the chain client the flow needs.
type ChainClient interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	PackApprove(spender common.Address, amount *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

// Config for constructing a Flow.
type Config struct {
	Token      common.Address
	Spender    common.Address
	ChainID    int64
	PrivateKey string // hex, optional; approvals fail without it
}

// Result describes a locally constructed approval transaction.
//
// Success here means "constructed and signed", not "chain-confirmed": the
// signed transaction is handed back to the caller and is deliberately not
// broadcast by this flow.
type Result struct {
	TxHash string             `json:"txHash"`
	Signed *types.Transaction `json:"-"`
}

// Flow runs approval attempts for one (token, spender) pair. The allowance
// fetch and the submission are independent tasks; they are reconciled only
// by the final state update under the flow's lock.
type Flow struct {
	chain    ChainClient
	token    common.Address
	spender  common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	onChange func(State)

	mu    sync.Mutex
	state State
}

// NewFlow creates a flow. onChange, if non-nil, is invoked with a snapshot
// after every state change.
func NewFlow(chain ChainClient, cfg Config, onChange func(State)) (*Flow, error) {
	f := &Flow{
		chain:    chain,
		token:    cfg.Token,
		spender:  cfg.Spender,
		chainID:  big.NewInt(cfg.ChainID),
		onChange: onChange,
		state:    State{Status: StatusIdle},
	}
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("approval: invalid private key: %w", err)
		}
		f.key = key
	}
	return f, nil
}

// State returns a snapshot of the current flow state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SetAmount records the required amount the allowance is compared against.
func (f *Flow) SetAmount(amount *big.Int) {
	f.mu.Lock()
	f.state.Amount = amount
	snapshot := f.state
	f.mu.Unlock()
	f.notify(snapshot)
}

// RefreshAllowance fetches the current allowance for owner and folds it
// into the state. A fetch failure leaves the previous allowance in place.
func (f *Flow) RefreshAllowance(ctx context.Context, owner string) error {
	if !common.IsHexAddress(owner) {
		return nil // no connected wallet, nothing to refresh
	}

	allowance, err := f.chain.Allowance(ctx, f.token, common.HexToAddress(owner), f.spender)
	if err != nil {
		logging.L(ctx).Warn("allowance fetch failed", "owner", owner, "error", err)
		return err
	}

	f.mu.Lock()
	f.state.Allowance = allowance
	snapshot := f.state
	f.mu.Unlock()
	f.notify(snapshot)
	return nil
}

// Approve runs one approval attempt for owner.
//
// With no connected wallet the call is a no-op. A failure is reported once
// through the callback and the flow re-enables (idle-equivalent); only a
// success is sticky.
func (f *Flow) Approve(ctx context.Context, owner string, amount *big.Int) (*Result, error) {
	if owner == "" {
		return nil, nil
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	f.mu.Lock()
	if f.state.Status == StatusProcessing {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	f.state.Status = StatusProcessing
	f.state.Amount = amount
	snapshot := f.state
	f.mu.Unlock()
	f.notify(snapshot)

	result, err := f.buildAndSign(ctx, owner, amount)
	if err != nil {
		logging.L(ctx).Error("approval failed", "owner", owner, "error", err)
		metrics.ApprovalsTotal.WithLabelValues("failed").Inc()
		f.transition(StatusFailed)
		f.transition(StatusIdle)
		return nil, err
	}

	metrics.ApprovalsTotal.WithLabelValues("succeeded").Inc()
	f.transition(StatusSucceeded)
	return result, nil
}

func (f *Flow) buildAndSign(ctx context.Context, owner string, amount *big.Int) (*Result, error) {
	if f.key == nil {
		return nil, ErrSigningDisabled
	}
	from := common.HexToAddress(owner)

	data, err := f.chain.PackApprove(f.spender, amount)
	if err != nil {
		return nil, err
	}

	nonce, err := f.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("approval: nonce: %w", err)
	}

	gasPrice, err := f.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("approval: gas price: %w", err)
	}

	gasLimit, err := f.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &f.token,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, f.token, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(f.chainID), f.key)
	if err != nil {
		return nil, fmt.Errorf("approval: sign: %w", err)
	}

	return &Result{TxHash: signed.Hash().Hex(), Signed: signed}, nil
}

func (f *Flow) transition(status Status) {
	f.mu.Lock()
	f.state.Status = status
	snapshot := f.state
	f.mu.Unlock()
	f.notify(snapshot)
}

func (f *Flow) notify(s State) {
	if f.onChange != nil {
		f.onChange(s)
	}
}
