// Package chain provides read access to on-chain trading state: raw escrow
// account reads, the fee schedule account, and ERC-20 allowance queries.
//
// A single Client is constructed at bootstrap, treated as immutable, and
// injected into every component that needs chain access. Reads never mutate
// chain state.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrRPCConnection  = errors.New("chain: RPC connection failed")
	ErrInvalidAddress = errors.New("chain: invalid address")
)

// ERC20 minimal ABI for allowance and approve
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	Close()
}

// Client is the shared read adapter over a single RPC connection.
type Client struct {
	eth      EthClient
	erc20ABI abi.ABI
}

// Option configures the client.
type Option func(*Client)

// WithEthClient sets a custom Ethereum client (useful for testing).
func WithEthClient(eth EthClient) Option {
	return func(c *Client) {
		c.eth = eth
	}
}

// Dial connects to the RPC endpoint and returns a ready client.
func Dial(rpcURL string, opts ...Option) (*Client, error) {
	c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	if c.eth == nil {
		if rpcURL == "" {
			return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
		}
		eth, err := ethclient.Dial(rpcURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.eth = eth
	}
	return c, nil
}

func newClient(opts ...Option) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse ERC20 ABI: %w", err)
	}
	c := &Client{erc20ABI: parsed}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccountData reads the raw packed state of an on-chain account. Programs
// in the trading protocol expose their account layout through a calldata-
// less call.
func (c *Client) AccountData(ctx context.Context, addr common.Address) ([]byte, error) {
	data, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &addr}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: read account %s: %w", addr.Hex(), err)
	}
	return data, nil
}

// Allowance returns the amount spender may transfer on behalf of owner for
// the given ERC-20 token.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: pack allowance call: %w", err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call allowance: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

// PackApprove builds the calldata for an ERC-20 approve.
func (c *Client) PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := c.erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve call: %w", err)
	}
	return data, nil
}

// PendingNonceAt returns the next nonce for an account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

// SuggestGasPrice returns the suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// EstimateGas estimates gas for a call.
func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, call)
}

// Ping verifies RPC reachability for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.eth.SuggestGasPrice(ctx)
	return err
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// ParseAddress validates and parses a chain address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
