// Package fees computes protocol and partner fees for trades.
//
// Fee rates live on-chain in a fee schedule account: two little-endian
// uint64 basis-point values at fixed offsets in the account's raw byte
// layout. All amount arithmetic is big.Int; floats would drift against the
// on-chain program's integer math.
package fees

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/peerswapd/peerswap/internal/logging"
	"github.com/peerswapd/peerswap/internal/metrics"
)

var (
	ErrScheduleUnavailable = errors.New("fees: fee schedule account unreadable")
	ErrInvalidAmount       = errors.New("fees: amount must be a non-negative integer")
)

// Fee schedule account layout.
const (
	combinedBpsOffset = 0 // uint64 LE: protocol + platform bps
	platformBpsOffset = 8 // uint64 LE: platform-only bps

	scheduleMinLen = 16
	bpsDenominator = 10_000
)

// Schedule is the decoded fee schedule account.
type Schedule struct {
	FeeBps      uint64 // combined rate applied to the trade amount
	PlatformBps uint64 // platform's share of the combined rate
}

// PartnerBps returns the partner's share of the combined rate. A platform
// share larger than the combined rate decodes to zero rather than
// underflowing.
func (s Schedule) PartnerBps() uint64 {
	if s.PlatformBps > s.FeeBps {
		return 0
	}
	return s.FeeBps - s.PlatformBps
}

// DecodeSchedule decodes the raw fee schedule account bytes.
func DecodeSchedule(data []byte) (Schedule, error) {
	if len(data) < scheduleMinLen {
		return Schedule{}, ErrScheduleUnavailable
	}
	return Schedule{
		FeeBps:      binary.LittleEndian.Uint64(data[combinedBpsOffset : combinedBpsOffset+8]),
		PlatformBps: binary.LittleEndian.Uint64(data[platformBpsOffset : platformBpsOffset+8]),
	}, nil
}

// Quote is a derived fee computation. Known is false when the fee schedule
// could not be read; an unknown quote carries no amounts and callers must
// not render a payable total from it.
type Quote struct {
	Known         bool     `json:"known"`
	Fee           *big.Int `json:"fee,omitempty"`
	PartnerFeeBps uint64   `json:"partnerFeeBps,omitempty"`
	TotalAmount   *big.Int `json:"totalAmount,omitempty"`
}

// AccountReader is the slice of the chain client the engine needs.
type AccountReader interface {
	AccountData(ctx context.Context, addr common.Address) ([]byte, error)
}

// Engine computes fee quotes against a configured fee schedule account.
type Engine struct {
	reader      AccountReader
	feeAccount  common.Address
	hasSchedule bool
}

// NewEngine creates a fee engine. feeAccountAddr may be empty, in which
// case every quote reports unknown.
func NewEngine(reader AccountReader, feeAccountAddr string) *Engine {
	e := &Engine{reader: reader}
	if common.IsHexAddress(feeAccountAddr) {
		e.feeAccount = common.HexToAddress(feeAccountAddr)
		e.hasSchedule = true
	}
	return e
}

// Quote computes the fee for a raw smallest-unit amount.
//
// fee = rawAmount * feeBps / 10000 (integer division, truncating)
// totalAmount = rawAmount + fee, so fee + rawAmount == totalAmount always
// holds for a known quote. An unreadable schedule yields an unknown quote,
// not an error surfaced to rendering.
func (e *Engine) Quote(ctx context.Context, rawAmount *big.Int) (Quote, error) {
	if rawAmount == nil || rawAmount.Sign() < 0 {
		return Quote{}, ErrInvalidAmount
	}

	schedule, err := e.readSchedule(ctx)
	if err != nil {
		logging.L(ctx).Warn("fee quote unknown", "error", err)
		metrics.FeeQuotesTotal.WithLabelValues("unknown").Inc()
		return Quote{}, nil
	}

	fee := new(big.Int).Mul(rawAmount, new(big.Int).SetUint64(schedule.FeeBps))
	fee.Quo(fee, big.NewInt(bpsDenominator))

	metrics.FeeQuotesTotal.WithLabelValues("known").Inc()
	return Quote{
		Known:         true,
		Fee:           fee,
		PartnerFeeBps: schedule.PartnerBps(),
		TotalAmount:   new(big.Int).Add(rawAmount, fee),
	}, nil
}

func (e *Engine) readSchedule(ctx context.Context) (Schedule, error) {
	if !e.hasSchedule {
		return Schedule{}, ErrScheduleUnavailable
	}
	data, err := e.reader.AccountData(ctx, e.feeAccount)
	if err != nil {
		return Schedule{}, err
	}
	return DecodeSchedule(data)
}
