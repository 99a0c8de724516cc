// Package summary renders the terminal narrative of a completed trade.
package summary

import (
	"fmt"

	"github.com/peerswapd/peerswap/internal/orders"
)

// Summarize selects the completion narrative for an order as seen by the
// actor at actorAddr. Resolution order, first match wins:
//
//  1. resolved dispute, arbitrator viewing → names the declared winner
//  2. resolved dispute, buyer viewing → "You" or the seller's name
//  3. resolved dispute, seller viewing → "You" or the buyer's name
//  4. otherwise → generic sold-to / purchased-from line
//
// Winner ids are compared with orders.SameID: a winner value that parses to
// neither participant id yields a neutral resolved line rather than
// guessing.
func Summarize(order *orders.Order, actorAddr, arbitratorAddr string) string {
	d := order.ActiveDispute()
	resolved := d != nil && d.Resolved

	if resolved {
		buyerWon := orders.SameID(d.Winner, order.Buyer.ID)
		sellerWon := orders.SameID(d.Winner, order.Seller.ID)

		switch {
		case orders.SameAddress(actorAddr, arbitratorAddr):
			switch {
			case buyerWon:
				return fmt.Sprintf("Dispute resolved in favor of %s (buyer).", order.Buyer.DisplayName())
			case sellerWon:
				return fmt.Sprintf("Dispute resolved in favor of %s (seller).", order.Seller.DisplayName())
			default:
				return "Dispute resolved."
			}

		case order.IsBuyer(actorAddr):
			if buyerWon {
				return "You won the dispute."
			}
			if sellerWon {
				return fmt.Sprintf("%s won the dispute.", order.Seller.DisplayName())
			}
			return "Dispute resolved."

		case order.IsSeller(actorAddr):
			if sellerWon {
				return "You won the dispute."
			}
			if buyerWon {
				return fmt.Sprintf("%s won the dispute.", order.Buyer.DisplayName())
			}
			return "Dispute resolved."
		}
		// Observers fall through to the generic line.
	}

	symbol := ""
	if tok, err := order.Token(); err == nil {
		symbol = " " + tok.Symbol
	}

	if order.IsSeller(actorAddr) {
		return fmt.Sprintf("You sold %s%s to %s.", order.TokenAmount, symbol, order.Buyer.DisplayName())
	}
	return fmt.Sprintf("You purchased %s%s from %s.", order.TokenAmount, symbol, order.Seller.DisplayName())
}
