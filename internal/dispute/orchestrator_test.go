package dispute

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/peerswapd/peerswap/internal/chain"
	"github.com/peerswapd/peerswap/internal/fees"
	"github.com/peerswapd/peerswap/internal/orders"
)

const (
	buyerAddr      = "0x1111111111111111111111111111111111111111"
	sellerAddr     = "0x2222222222222222222222222222222222222222"
	arbitratorAddr = "0x9999999999999999999999999999999999999999"
	observerAddr   = "0x7777777777777777777777777777777777777777"
	tradeAddr      = "0x3333333333333333333333333333333333333333"
)

type fakeEscrow struct {
	state chain.EscrowState
	reads int
}

func (f *fakeEscrow) ReadEscrow(context.Context, string) chain.EscrowState {
	f.reads++
	return f.state
}

type fakeQuoter struct {
	quote fees.Quote
	err   error
}

func (f *fakeQuoter) Quote(_ context.Context, raw *big.Int) (fees.Quote, error) {
	if f.err != nil {
		return fees.Quote{}, f.err
	}
	if f.quote.Known {
		return f.quote, nil
	}
	fee := new(big.Int).Div(raw, big.NewInt(100))
	return fees.Quote{
		Known:       true,
		Fee:         fee,
		TotalAmount: new(big.Int).Add(raw, fee),
	}, nil
}

func testOrder(disputes ...orders.Dispute) *orders.Order {
	return &orders.Order{
		ID:          "ord_1",
		TradeID:     tradeAddr,
		Buyer:       orders.AccountRef{ID: 1, Address: buyerAddr, Name: "alice"},
		Seller:      orders.AccountRef{ID: 2, Address: sellerAddr, Name: "bob"},
		TokenAmount: "25.5",
		Listing:     &orders.Listing{Token: &orders.Token{Symbol: "USDC", Decimals: 6}},
		Disputes:    disputes,
	}
}

func newOrchestrator(es *fakeEscrow) *Orchestrator {
	return New(es, &fakeQuoter{}, arbitratorAddr, "0.005")
}

func TestBuildView_NoDisputeRecords(t *testing.T) {
	es := &fakeEscrow{}
	o := newOrchestrator(es)

	view, err := o.BuildView(context.Background(), testOrder(), buyerAddr)
	if err != nil {
		t.Fatalf("BuildView error = %v", err)
	}
	if view.Phase != PhaseNone {
		t.Errorf("phase = %s, want %s", view.Phase, PhaseNone)
	}
	if view.ReadOnly {
		t.Error("participant with no dispute should not be read-only")
	}
	if !view.CanInitiate {
		t.Error("participant with no dispute should be offered initiation")
	}
	if es.reads != 0 {
		t.Errorf("escrow read %d times for a dispute-free order", es.reads)
	}
}

func TestBuildView_RecordWithoutUserDisputeIsNone(t *testing.T) {
	o := newOrchestrator(&fakeEscrow{})

	view, err := o.BuildView(context.Background(), testOrder(orders.Dispute{UserDispute: false}), sellerAddr)
	if err != nil {
		t.Fatalf("BuildView error = %v", err)
	}
	if view.Phase != PhaseNone {
		t.Errorf("phase = %s, want %s", view.Phase, PhaseNone)
	}
}

func TestBuildView_PaidFlagSelectsByRole(t *testing.T) {
	// Buyer paid, seller did not.
	state := chain.EscrowState{Dispute: true, BuyerPaidDispute: true, SellerPaidDispute: false}
	openDispute := orders.Dispute{UserDispute: true}

	tests := []struct {
		name      string
		actor     string
		wantPaid  bool
		wantPhase Phase
	}{
		{"buyer sees own flag", buyerAddr, true, PhaseOpenPaid},
		{"seller sees own flag", sellerAddr, false, PhaseOpenUnpaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(&fakeEscrow{state: state})
			view, err := o.BuildView(context.Background(), testOrder(openDispute), tt.actor)
			if err != nil {
				t.Fatalf("BuildView error = %v", err)
			}
			if view.PaidForDispute != tt.wantPaid {
				t.Errorf("paidForDispute = %v, want %v", view.PaidForDispute, tt.wantPaid)
			}
			if view.Phase != tt.wantPhase {
				t.Errorf("phase = %s, want %s", view.Phase, tt.wantPhase)
			}
			if !view.ReadOnly {
				t.Error("active dispute must route to the read-only status view")
			}
			if view.CanInitiate {
				t.Error("active dispute must not re-offer initiation")
			}
		})
	}
}

func TestBuildView_PaidRequiresOnChainDisputeFlag(t *testing.T) {
	// Paid flag set but the escrow-level dispute flag is not.
	state := chain.EscrowState{Dispute: false, BuyerPaidDispute: true}
	o := newOrchestrator(&fakeEscrow{state: state})

	view, err := o.BuildView(context.Background(), testOrder(orders.Dispute{UserDispute: true}), buyerAddr)
	if err != nil {
		t.Fatalf("BuildView error = %v", err)
	}
	if view.PaidForDispute {
		t.Error("paidForDispute must require the escrow dispute flag")
	}
}

func TestBuildView_ResolvedIsTerminal(t *testing.T) {
	resolved := orders.Dispute{UserDispute: true, Resolved: true, Winner: "1"}
	es := &fakeEscrow{state: chain.EscrowState{Dispute: true}}
	o := newOrchestrator(es)

	for _, actor := range []string{buyerAddr, sellerAddr, arbitratorAddr} {
		view, err := o.BuildView(context.Background(), testOrder(resolved), actor)
		if err != nil {
			t.Fatalf("BuildView error = %v", err)
		}
		if view.Phase != PhaseResolved {
			t.Errorf("phase = %s, want %s", view.Phase, PhaseResolved)
		}
		if !view.ReadOnly || view.CanInitiate {
			t.Errorf("resolved dispute must never re-offer actions (readOnly=%v canInitiate=%v)",
				view.ReadOnly, view.CanInitiate)
		}
		if view.Winner == nil || view.Winner.ID != 1 {
			t.Errorf("winner = %+v, want buyer", view.Winner)
		}
	}
	if es.reads != 0 {
		t.Error("resolved disputes should not trigger escrow reads")
	}
}

func TestBuildView_ArbitratorIsReadOnlyEvenWithoutDispute(t *testing.T) {
	o := newOrchestrator(&fakeEscrow{})

	view, err := o.BuildView(context.Background(), testOrder(), arbitratorAddr)
	if err != nil {
		t.Fatalf("BuildView error = %v", err)
	}
	if view.Role != RoleArbitrator {
		t.Errorf("role = %s, want arbitrator", view.Role)
	}
	if !view.ReadOnly || view.CanInitiate {
		t.Error("arbitrator must always get the read-only view")
	}
}

func TestBuildView_ObserverCannotInitiate(t *testing.T) {
	o := newOrchestrator(&fakeEscrow{})

	view, err := o.BuildView(context.Background(), testOrder(), observerAddr)
	if err != nil {
		t.Fatalf("BuildView error = %v", err)
	}
	if view.Role != RoleObserver {
		t.Errorf("role = %s, want observer", view.Role)
	}
	if view.CanInitiate {
		t.Error("non-participants must not be offered dispute initiation")
	}
}

func TestBuildView_MissingListingBlocks(t *testing.T) {
	o := newOrchestrator(&fakeEscrow{})
	order := testOrder()
	order.Listing = nil

	if _, err := o.BuildView(context.Background(), order, buyerAddr); !errors.Is(err, ErrMissingListing) {
		t.Errorf("error = %v, want ErrMissingListing", err)
	}
}

func TestBuildView_MalformedAmountBlocks(t *testing.T) {
	o := newOrchestrator(&fakeEscrow{})
	order := testOrder()
	order.TokenAmount = "lots"

	if _, err := o.BuildView(context.Background(), order, buyerAddr); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
}

func TestBuildView_UnknownFeeQuotePropagates(t *testing.T) {
	o := New(&fakeEscrow{}, unknownQuoter{}, arbitratorAddr, "0.005")

	view, err := o.BuildView(context.Background(), testOrder(), buyerAddr)
	if err != nil {
		t.Fatalf("BuildView error = %v", err)
	}
	if view.FeeQuote.Known {
		t.Error("unknown quote must pass through unchanged")
	}
}

type unknownQuoter struct{}

func (unknownQuoter) Quote(context.Context, *big.Int) (fees.Quote, error) {
	return fees.Quote{}, nil
}

func TestBuildView_NewestDisputeRecordGoverns(t *testing.T) {
	// A resolved dispute followed by a reopened one: the newest governs.
	o := newOrchestrator(&fakeEscrow{state: chain.EscrowState{Dispute: true}})
	order := testOrder(
		orders.Dispute{UserDispute: true, Resolved: true, Winner: "2"},
		orders.Dispute{UserDispute: true},
	)

	view, err := o.BuildView(context.Background(), order, buyerAddr)
	if err != nil {
		t.Fatalf("BuildView error = %v", err)
	}
	if view.Phase != PhaseOpenUnpaid {
		t.Errorf("phase = %s, want %s (newest record governs)", view.Phase, PhaseOpenUnpaid)
	}
}
