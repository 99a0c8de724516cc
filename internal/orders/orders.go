// Package orders defines the trade domain model shared by the dispute
// orchestrator, the completion summarizer, and the backend client.
//
// Orders and their dispute records are owned by the backend; this service
// only reads snapshots and never mutates them. Snapshots are fetched fresh
// per request, so nothing in this package caches.
package orders

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrOrderNotFound  = errors.New("orders: order not found")
	ErrMissingListing = errors.New("orders: order has no listing or token")
)

// AccountRef identifies a trade participant. Address is the primary
// identity key; ID is the backend's numeric record id.
type AccountRef struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// IsZero reports whether the reference is absent.
func (a AccountRef) IsZero() bool {
	return a.ID == 0 && a.Address == ""
}

// DisplayName returns the profile name, falling back to the address.
func (a AccountRef) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Address
}

// Token describes the traded asset.
type Token struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Listing is the marketplace entry an order was taken from. It carries the
// traded token.
type Listing struct {
	ID    int64  `json:"id"`
	Token *Token `json:"token"`
}

// Dispute is a snapshot of a dispute record attached to an order.
// Winner is only meaningful once Resolved is true; the backend serializes
// it as a string.
type Dispute struct {
	UserDispute bool   `json:"user_dispute"`
	Resolved    bool   `json:"resolved"`
	Winner      string `json:"winner,omitempty"`
}

// Order is a snapshot of a trade between a buyer and a seller. TradeID is
// the on-chain escrow account address.
type Order struct {
	ID          string    `json:"id"`
	TradeID     string    `json:"trade_id"`
	Buyer       AccountRef `json:"buyer"`
	Seller      AccountRef `json:"seller"`
	TokenAmount string    `json:"token_amount"`
	Listing     *Listing  `json:"list"`
	Disputes    []Dispute `json:"dispute"`
}

// Token returns the traded token, or ErrMissingListing when the listing or
// its token is absent. Fee and amount rendering cannot proceed without it.
func (o *Order) Token() (*Token, error) {
	if o.Listing == nil || o.Listing.Token == nil {
		return nil, ErrMissingListing
	}
	return o.Listing.Token, nil
}

// ActiveDispute returns the dispute record that governs the order's current
// state, or nil when the order has none. The backend appends records in
// order, so the newest entry wins when the sequence ever holds more than
// one (reopened disputes).
func (o *Order) ActiveDispute() *Dispute {
	if len(o.Disputes) == 0 {
		return nil
	}
	return &o.Disputes[len(o.Disputes)-1]
}

// IsBuyer reports whether addr is the order's buyer.
func (o *Order) IsBuyer(addr string) bool {
	return SameAddress(addr, o.Buyer.Address)
}

// IsSeller reports whether addr is the order's seller.
func (o *Order) IsSeller(addr string) bool {
	return SameAddress(addr, o.Seller.Address)
}

// SameAddress compares two chain addresses case-insensitively. Empty
// addresses never match.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// SameID is the total, explicit comparison between a backend-serialized
// participant id (a string, e.g. a dispute winner) and a numeric account
// id. Both sides must parse as base-10 integers; a non-numeric string never
// matches anything. This replaces the silent numeric coercion the legacy
// flow relied on.
func SameID(serialized string, id int64) bool {
	n, err := strconv.ParseInt(strings.TrimSpace(serialized), 10, 64)
	if err != nil {
		return false
	}
	return n == id
}
