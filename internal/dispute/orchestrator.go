// Package dispute decides what a trade participant may see and do about a
// dispute.
//
// The orchestrator is stateless: every view is recomputed from the latest
// order snapshot and a fresh on-chain escrow read. It never drives a
// transition itself — raising a dispute or paying the dispute fee happens
// through the backend and the on-chain program; this code only observes.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/peerswapd/peerswap/internal/chain"
	"github.com/peerswapd/peerswap/internal/fees"
	"github.com/peerswapd/peerswap/internal/logging"
	"github.com/peerswapd/peerswap/internal/metrics"
	"github.com/peerswapd/peerswap/internal/money"
	"github.com/peerswapd/peerswap/internal/orders"
)

var (
	// ErrMissingListing re-exports the precondition failure for callers
	// that only import this package.
	ErrMissingListing = orders.ErrMissingListing

	ErrInvalidAmount = errors.New("dispute: order token amount is malformed")
)

// Phase is the observed dispute state of a trade.
type Phase string

const (
	PhaseNone       Phase = "no_dispute"
	PhaseOpenUnpaid Phase = "dispute_open_unpaid"
	PhaseOpenPaid   Phase = "dispute_open_paid"
	PhaseResolved   Phase = "dispute_resolved"
)

// Role is the actor's relationship to the trade.
type Role string

const (
	RoleBuyer      Role = "buyer"
	RoleSeller     Role = "seller"
	RoleArbitrator Role = "arbitrator"
	RoleObserver   Role = "observer"
)

// View is the actor-specific dispute view for one trade.
type View struct {
	Phase Phase `json:"phase"`
	Role  Role  `json:"role"`

	// PaidForDispute is true only when the on-chain dispute flag is set
	// AND the actor's own role-selected paid flag is set.
	PaidForDispute bool `json:"paidForDispute"`

	// ReadOnly routes to the status view; CanInitiate routes to the
	// dispute-initiation view. They are mutually exclusive.
	ReadOnly    bool `json:"readOnly"`
	CanInitiate bool `json:"canInitiate"`

	Escrow chain.EscrowState `json:"escrow"`

	Token          *orders.Token `json:"token"`
	TokenAmountRaw *big.Int      `json:"tokenAmountRaw"`
	FeeQuote       fees.Quote    `json:"feeQuote"`
	DisputeFeeRate string        `json:"disputeFeeRate"`

	// Winner is set once the dispute is resolved and the ruled-for id
	// matches a participant.
	Winner *orders.AccountRef `json:"winner,omitempty"`
}

// EscrowReader reads on-chain escrow dispute flags.
type EscrowReader interface {
	ReadEscrow(ctx context.Context, escrowAddr string) chain.EscrowState
}

// FeeQuoter computes fee quotes for raw amounts.
type FeeQuoter interface {
	Quote(ctx context.Context, rawAmount *big.Int) (fees.Quote, error)
}

// Orchestrator builds dispute views.
type Orchestrator struct {
	escrow         EscrowReader
	fees           FeeQuoter
	arbitratorAddr string
	disputeFeeRate string
}

// New creates an orchestrator. disputeFeeRate is the fixed rate charged to
// open a dispute (e.g. "0.005").
func New(escrow EscrowReader, quoter FeeQuoter, arbitratorAddr, disputeFeeRate string) *Orchestrator {
	return &Orchestrator{
		escrow:         escrow,
		fees:           quoter,
		arbitratorAddr: arbitratorAddr,
		disputeFeeRate: disputeFeeRate,
	}
}

// BuildView computes the dispute view of order for the actor at actorAddr.
//
// A missing listing or token is a blocking precondition failure; missing
// dispute data is not — it reads as PhaseNone. The escrow account is read
// fresh on every call; the view is a snapshot, not a subscription.
func (o *Orchestrator) BuildView(ctx context.Context, order *orders.Order, actorAddr string) (*View, error) {
	token, err := order.Token()
	if err != nil {
		return nil, err
	}

	rawAmount, ok := money.Parse(order.TokenAmount, token.Decimals)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, order.TokenAmount)
	}

	view := &View{
		Role:           o.roleOf(order, actorAddr),
		Token:          token,
		TokenAmountRaw: rawAmount,
		DisputeFeeRate: o.disputeFeeRate,
	}

	quote, err := o.fees.Quote(ctx, rawAmount)
	if err != nil {
		return nil, err
	}
	view.FeeQuote = quote

	record := order.ActiveDispute()
	switch {
	case record != nil && record.Resolved:
		view.Phase = PhaseResolved
		view.Winner = resolveWinner(order, record)
		if view.Winner == nil {
			logging.L(ctx).Warn("resolved dispute names no participant",
				"order", order.ID, "winner", record.Winner)
		}

	case record == nil || !record.UserDispute:
		view.Phase = PhaseNone

	default:
		view.Escrow = o.escrow.ReadEscrow(ctx, order.TradeID)
		view.PaidForDispute = view.Escrow.Dispute && o.ownPaidFlag(view.Role, view.Escrow)
		if view.PaidForDispute {
			view.Phase = PhaseOpenPaid
		} else {
			view.Phase = PhaseOpenUnpaid
		}
	}

	// Arbitrators and anyone watching an active or concluded dispute get
	// the read-only status view. Participants with no dispute on record
	// may open one; a resolved dispute never re-offers initiation.
	view.ReadOnly = view.Role == RoleArbitrator || view.Phase != PhaseNone
	view.CanInitiate = !view.ReadOnly && (view.Role == RoleBuyer || view.Role == RoleSeller)

	metrics.DisputeViewsTotal.WithLabelValues(string(view.Phase)).Inc()
	return view, nil
}

func (o *Orchestrator) roleOf(order *orders.Order, actorAddr string) Role {
	switch {
	case orders.SameAddress(actorAddr, o.arbitratorAddr):
		return RoleArbitrator
	case order.IsBuyer(actorAddr):
		return RoleBuyer
	case order.IsSeller(actorAddr):
		return RoleSeller
	default:
		return RoleObserver
	}
}

// ownPaidFlag selects the escrow paid flag matching the actor's role.
// Arbitrators and observers have no fee of their own.
func (o *Orchestrator) ownPaidFlag(role Role, es chain.EscrowState) bool {
	switch role {
	case RoleBuyer:
		return es.BuyerPaidDispute
	case RoleSeller:
		return es.SellerPaidDispute
	default:
		return false
	}
}

func resolveWinner(order *orders.Order, record *orders.Dispute) *orders.AccountRef {
	switch {
	case orders.SameID(record.Winner, order.Buyer.ID):
		return &order.Buyer
	case orders.SameID(record.Winner, order.Seller.ID):
		return &order.Seller
	default:
		return nil
	}
}
