package summary

import (
	"strings"
	"testing"

	"github.com/peerswapd/peerswap/internal/orders"
)

const (
	buyerAddr      = "0x1111111111111111111111111111111111111111"
	sellerAddr     = "0x2222222222222222222222222222222222222222"
	arbitratorAddr = "0x9999999999999999999999999999999999999999"
)

func testOrder(disputes ...orders.Dispute) *orders.Order {
	return &orders.Order{
		ID:          "ord_1",
		Buyer:       orders.AccountRef{ID: 1, Address: buyerAddr, Name: "alice"},
		Seller:      orders.AccountRef{ID: 2, Address: sellerAddr, Name: "bob"},
		TokenAmount: "25.5",
		Listing:     &orders.Listing{Token: &orders.Token{Symbol: "USDC", Decimals: 6}},
		Disputes:    disputes,
	}
}

func TestSummarize_NoDisputeGenericLines(t *testing.T) {
	order := testOrder()

	if got := Summarize(order, sellerAddr, arbitratorAddr); got != "You sold 25.5 USDC to alice." {
		t.Errorf("seller line = %q", got)
	}
	if got := Summarize(order, buyerAddr, arbitratorAddr); got != "You purchased 25.5 USDC from bob." {
		t.Errorf("buyer line = %q", got)
	}
}

func TestSummarize_NoDisputeNeverMentionsDispute(t *testing.T) {
	order := testOrder()
	for _, actor := range []string{buyerAddr, sellerAddr} {
		if got := Summarize(order, actor, arbitratorAddr); strings.Contains(strings.ToLower(got), "dispute") {
			t.Errorf("dispute-free order produced a dispute narrative: %q", got)
		}
	}
}

func TestSummarize_ArbitratorNamesWinner(t *testing.T) {
	order := testOrder(orders.Dispute{UserDispute: true, Resolved: true, Winner: "2"})

	got := Summarize(order, arbitratorAddr, arbitratorAddr)
	if got != "Dispute resolved in favor of bob (seller)." {
		t.Errorf("arbitrator line = %q", got)
	}
}

func TestSummarize_BuyerPerspective(t *testing.T) {
	won := testOrder(orders.Dispute{UserDispute: true, Resolved: true, Winner: "1"})
	if got := Summarize(won, buyerAddr, arbitratorAddr); got != "You won the dispute." {
		t.Errorf("buyer-won line = %q", got)
	}

	lost := testOrder(orders.Dispute{UserDispute: true, Resolved: true, Winner: "2"})
	if got := Summarize(lost, buyerAddr, arbitratorAddr); got != "bob won the dispute." {
		t.Errorf("buyer-lost line = %q", got)
	}
}

func TestSummarize_SellerSeesBuyerWinByStringID(t *testing.T) {
	// Winner arrives as the string "1"; it must match buyer.id=1 and the
	// seller must see the buyer named, not "You".
	order := testOrder(orders.Dispute{UserDispute: true, Resolved: true, Winner: "1"})

	got := Summarize(order, sellerAddr, arbitratorAddr)
	if got != "alice won the dispute." {
		t.Errorf("seller line = %q, want buyer named as winner", got)
	}
}

func TestSummarize_SellerWon(t *testing.T) {
	order := testOrder(orders.Dispute{UserDispute: true, Resolved: true, Winner: "2"})

	if got := Summarize(order, sellerAddr, arbitratorAddr); got != "You won the dispute." {
		t.Errorf("seller-won line = %q", got)
	}
}

func TestSummarize_NonNumericWinnerIsNeutral(t *testing.T) {
	order := testOrder(orders.Dispute{UserDispute: true, Resolved: true, Winner: "0xdeadbeef"})

	for _, actor := range []string{buyerAddr, sellerAddr, arbitratorAddr} {
		if got := Summarize(order, actor, arbitratorAddr); got != "Dispute resolved." {
			t.Errorf("non-numeric winner line for %s = %q, want neutral", actor, got)
		}
	}
}

func TestSummarize_UnresolvedDisputeUsesGenericLine(t *testing.T) {
	order := testOrder(orders.Dispute{UserDispute: true})

	if got := Summarize(order, buyerAddr, arbitratorAddr); got != "You purchased 25.5 USDC from bob." {
		t.Errorf("unresolved dispute line = %q", got)
	}
}

func TestSummarize_MissingTokenOmitsSymbol(t *testing.T) {
	order := testOrder()
	order.Listing = nil

	if got := Summarize(order, sellerAddr, arbitratorAddr); got != "You sold 25.5 to alice." {
		t.Errorf("missing-token line = %q", got)
	}
}

func TestSummarize_FallsBackToAddressWithoutName(t *testing.T) {
	order := testOrder()
	order.Buyer.Name = ""

	got := Summarize(order, sellerAddr, arbitratorAddr)
	if !strings.Contains(got, buyerAddr) {
		t.Errorf("line should fall back to the buyer address: %q", got)
	}
}
