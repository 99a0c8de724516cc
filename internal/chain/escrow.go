package chain

import (
	"context"

	"github.com/peerswapd/peerswap/internal/logging"
	"github.com/peerswapd/peerswap/internal/metrics"
)

// Escrow account layout: three boolean flags at fixed offsets.
const (
	escrowDisputeOffset    = 0
	escrowBuyerPaidOffset  = 1
	escrowSellerPaidOffset = 2

	escrowMinLen = 3
)

// EscrowState is a point-in-time snapshot of an escrow account's dispute
// flags. The zero value is the degraded "nothing known" state.
type EscrowState struct {
	Dispute           bool `json:"dispute"`
	BuyerPaidDispute  bool `json:"buyerPaidDispute"`
	SellerPaidDispute bool `json:"sellerPaidDispute"`
}

// DecodeEscrowAccount decodes the packed escrow account layout. Accounts
// shorter than the flag region decode to the zero state.
func DecodeEscrowAccount(data []byte) EscrowState {
	if len(data) < escrowMinLen {
		return EscrowState{}
	}
	return EscrowState{
		Dispute:           data[escrowDisputeOffset] != 0,
		BuyerPaidDispute:  data[escrowBuyerPaidOffset] != 0,
		SellerPaidDispute: data[escrowSellerPaidOffset] != 0,
	}
}

// ReadEscrow fetches the dispute flags for a trade's escrow account.
//
// The read is idempotent and degrades rather than failing: a malformed
// address, a missing account, or an RPC error all yield the zero state so
// rendering can proceed. Two calls with no intervening on-chain change
// return equal states, but callers must not assume staleness-free reads
// between calls.
func (c *Client) ReadEscrow(ctx context.Context, escrowAddr string) EscrowState {
	addr, err := ParseAddress(escrowAddr)
	if err != nil {
		logging.L(ctx).Warn("escrow read degraded", "address", escrowAddr, "error", err)
		metrics.EscrowReadsTotal.WithLabelValues("degraded").Inc()
		return EscrowState{}
	}

	data, err := c.AccountData(ctx, addr)
	if err != nil {
		logging.L(ctx).Warn("escrow read degraded", "address", escrowAddr, "error", err)
		metrics.EscrowReadsTotal.WithLabelValues("degraded").Inc()
		return EscrowState{}
	}

	metrics.EscrowReadsTotal.WithLabelValues("ok").Inc()
	return DecodeEscrowAccount(data)
}
