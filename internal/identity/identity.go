// Package identity resolves the currently connected wallet to a trade
// participant.
//
// Absence of identity is always represented, never signaled as an error:
// a missing wallet or an unknown address yields (zero, false) and the
// caller renders disabled affordances.
package identity

import (
	"context"

	"github.com/peerswapd/peerswap/internal/logging"
	"github.com/peerswapd/peerswap/internal/orders"
	"github.com/peerswapd/peerswap/internal/validation"
)

// UserLookup is the slice of the backend client the resolver needs.
type UserLookup interface {
	UserByAddress(ctx context.Context, addr string) (*orders.AccountRef, error)
}

// Resolver maps wallet addresses to account references and recognizes the
// configured arbitrator identity.
type Resolver struct {
	backend    UserLookup
	arbitrator string
}

// New creates a resolver. arbitratorAddr is the fixed privileged identity
// used for dispute-view routing.
func New(backend UserLookup, arbitratorAddr string) *Resolver {
	return &Resolver{
		backend:    backend,
		arbitrator: validation.SanitizeAddress(arbitratorAddr),
	}
}

// CurrentActor resolves the connected wallet address to its profile record.
// Returns (zero, false) when no wallet is connected, the address is
// malformed, or the backend cannot resolve it. Backend failures are logged
// and reported as absence.
func (r *Resolver) CurrentActor(ctx context.Context, walletAddr string) (orders.AccountRef, bool) {
	if walletAddr == "" {
		return orders.AccountRef{}, false
	}
	addr := validation.SanitizeAddress(walletAddr)
	if !validation.IsValidEthAddress(addr) {
		return orders.AccountRef{}, false
	}

	user, err := r.backend.UserByAddress(ctx, addr)
	if err != nil {
		logging.L(ctx).Warn("actor resolution failed", "address", addr, "error", err)
		return orders.AccountRef{}, false
	}
	return *user, true
}

// IsArbitrator reports whether addr is the configured arbitrator.
func (r *Resolver) IsArbitrator(addr string) bool {
	return orders.SameAddress(validation.SanitizeAddress(addr), r.arbitrator)
}

// Arbitrator returns the configured arbitrator address.
func (r *Resolver) Arbitrator() string {
	return r.arbitrator
}
