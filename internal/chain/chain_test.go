package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// mockEthClient returns canned account data keyed by address.
type mockEthClient struct {
	accounts map[common.Address][]byte
	err      error
	calls    int
}

func (m *mockEthClient) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.accounts[*call.To], nil
}

func (m *mockEthClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (m *mockEthClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (m *mockEthClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 60_000, nil
}

func (m *mockEthClient) Close() {}

func newTestClient(t *testing.T, eth EthClient) *Client {
	t.Helper()
	c, err := Dial("unused", WithEthClient(eth))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c
}

const escrowAddr = "0x3333333333333333333333333333333333333333"

func TestDecodeEscrowAccount(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want EscrowState
	}{
		{"all flags set", []byte{1, 1, 1}, EscrowState{true, true, true}},
		{"dispute only", []byte{1, 0, 0}, EscrowState{Dispute: true}},
		{"buyer paid", []byte{1, 1, 0}, EscrowState{Dispute: true, BuyerPaidDispute: true}},
		{"no flags", []byte{0, 0, 0}, EscrowState{}},
		{"truncated account", []byte{1}, EscrowState{}},
		{"empty account", nil, EscrowState{}},
		{"trailing data ignored", []byte{0, 0, 1, 0xff, 0xff}, EscrowState{SellerPaidDispute: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeEscrowAccount(tt.data); got != tt.want {
				t.Errorf("DecodeEscrowAccount(%v) = %+v, want %+v", tt.data, got, tt.want)
			}
		})
	}
}

func TestReadEscrow(t *testing.T) {
	eth := &mockEthClient{accounts: map[common.Address][]byte{
		common.HexToAddress(escrowAddr): {1, 0, 1},
	}}
	c := newTestClient(t, eth)

	got := c.ReadEscrow(context.Background(), escrowAddr)
	want := EscrowState{Dispute: true, SellerPaidDispute: true}
	if got != want {
		t.Errorf("ReadEscrow = %+v, want %+v", got, want)
	}
}

func TestReadEscrow_Idempotent(t *testing.T) {
	eth := &mockEthClient{accounts: map[common.Address][]byte{
		common.HexToAddress(escrowAddr): {1, 1, 0},
	}}
	c := newTestClient(t, eth)

	first := c.ReadEscrow(context.Background(), escrowAddr)
	second := c.ReadEscrow(context.Background(), escrowAddr)
	if first != second {
		t.Errorf("repeated reads differ: %+v vs %+v", first, second)
	}
	if eth.calls != 2 {
		t.Errorf("expected 2 RPC calls, got %d", eth.calls)
	}
}

func TestReadEscrow_DegradesOnMalformedAddress(t *testing.T) {
	c := newTestClient(t, &mockEthClient{})

	if got := c.ReadEscrow(context.Background(), "not-an-address"); got != (EscrowState{}) {
		t.Errorf("malformed address should degrade to zero state, got %+v", got)
	}
}

func TestReadEscrow_DegradesOnRPCError(t *testing.T) {
	c := newTestClient(t, &mockEthClient{err: errors.New("rpc down")})

	if got := c.ReadEscrow(context.Background(), escrowAddr); got != (EscrowState{}) {
		t.Errorf("RPC failure should degrade to zero state, got %+v", got)
	}
}

func TestAllowance(t *testing.T) {
	token := common.HexToAddress("0x4444444444444444444444444444444444444444")
	// uint256 return value, left-padded to 32 bytes
	ret := make([]byte, 32)
	ret[31] = 150
	eth := &mockEthClient{accounts: map[common.Address][]byte{token: ret}}
	c := newTestClient(t, eth)

	got, err := c.Allowance(context.Background(),
		token,
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
	)
	if err != nil {
		t.Fatalf("Allowance error = %v", err)
	}
	if got.Int64() != 150 {
		t.Errorf("Allowance = %s, want 150", got)
	}
}

func TestPackApprove(t *testing.T) {
	c := newTestClient(t, &mockEthClient{})

	data, err := c.PackApprove(common.HexToAddress("0x2222222222222222222222222222222222222222"), big.NewInt(100))
	if err != nil {
		t.Fatalf("PackApprove error = %v", err)
	}
	// 4-byte selector + two 32-byte args
	if len(data) != 68 {
		t.Errorf("approve calldata length = %d, want 68", len(data))
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := ParseAddress(escrowAddr); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}
	if _, err := ParseAddress("bogus"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("invalid address error = %v, want ErrInvalidAddress", err)
	}
}
