package node

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	regtestAddrA = testAddress(0x01, &chaincfg.RegressionNetParams)
	regtestAddrB = testAddress(0x02, &chaincfg.RegressionNetParams)
	mainnetAddr  = testAddress(0x01, &chaincfg.MainNetParams)
)

func testAddress(fill byte, params *chaincfg.Params) string {
	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = fill
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, params)
	if err != nil {
		panic(err)
	}
	return addr.EncodeAddress()
}

type mockRPC struct {
	mock.Mock
	delay time.Duration
}

func (m *mockRPC) GetNewAddress(account string) (btcutil.Address, error) {
	args := m.Called(account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(btcutil.Address), args.Error(1)
}

func (m *mockRPC) GetReceivedByAddressMinConf(address btcutil.Address, minConfirms int) (btcutil.Amount, error) {
	args := m.Called(address.EncodeAddress(), minConfirms)
	return args.Get(0).(btcutil.Amount), args.Error(1)
}

func (m *mockRPC) ListSinceBlockMinConf(blockHash *chainhash.Hash, minConfirms int) (*btcjson.ListSinceBlockResult, error) {
	args := m.Called(blockHash, minConfirms)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*btcjson.ListSinceBlockResult), args.Error(1)
}

func (m *mockRPC) SendMany(fromAccount string, amounts map[btcutil.Address]btcutil.Amount) (*chainhash.Hash, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	flat := make(map[string]btcutil.Amount, len(amounts))
	for addr, amt := range amounts {
		flat[addr.EncodeAddress()] = amt
	}
	args := m.Called(fromAccount, flat)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chainhash.Hash), args.Error(1)
}

func (m *mockRPC) GetTransaction(txHash *chainhash.Hash) (*btcjson.GetTransactionResult, error) {
	args := m.Called(txHash.String())
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*btcjson.GetTransactionResult), args.Error(1)
}

func (m *mockRPC) GetBalanceMinConf(account string, minConfirms int) (btcutil.Amount, error) {
	args := m.Called(account, minConfirms)
	return args.Get(0).(btcutil.Amount), args.Error(1)
}

func (m *mockRPC) Shutdown() {}

func newTestClient(rpc walletRPC, timeout time.Duration) *BitcoindClient {
	return newBitcoindClient(slog.Default(), rpc, &chaincfg.RegressionNetParams, timeout)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"transport error", errors.New("connection refused"), shared.ErrExternalNodeTransient},
		{"insufficient funds at node", &btcjson.RPCError{Code: btcjson.ErrRPCWalletInsufficientFunds}, shared.ErrExternalNodeTransient},
		{"warming up", &btcjson.RPCError{Code: rpcInWarmup}, shared.ErrExternalNodeTransient},
		{"locked wallet", &btcjson.RPCError{Code: btcjson.ErrRPCWalletUnlockNeeded}, shared.ErrExternalNodeTransient},
		{"invalid address", &btcjson.RPCError{Code: btcjson.ErrRPCInvalidAddressOrKey}, shared.ErrExternalNodeProtocol},
		{"invalid parameter", &btcjson.RPCError{Code: btcjson.ErrRPCInvalidParameter}, shared.ErrExternalNodeProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("sendmany", tt.err), tt.want)
		})
	}

	assert.NoError(t, classify("sendmany", nil))
}

func TestBitcoindClient_ValidateAddress(t *testing.T) {
	c := newTestClient(&mockRPC{}, time.Second)

	assert.NoError(t, c.ValidateAddress(regtestAddrA))
	assert.ErrorIs(t, c.ValidateAddress("not-an-address"), shared.ErrInvalidArgument)
	assert.ErrorIs(t, c.ValidateAddress(mainnetAddr), shared.ErrInvalidArgument)
}

func TestBitcoindClient_ListReceivedSince(t *testing.T) {
	rpc := &mockRPC{}
	c := newTestClient(rpc, time.Second)

	lastBlock := "0000000000000000000000000000000000000000000000000000000000000abc"
	rpc.On("ListSinceBlockMinConf", (*chainhash.Hash)(nil), 6).Return(&btcjson.ListSinceBlockResult{
		Transactions: []btcjson.ListTransactionsResult{
			{Address: regtestAddrA, Amount: 5.0, Category: "receive", Confirmations: 6, TxID: "aa", Vout: 0},
			{Address: regtestAddrA, Amount: 0.1, Category: "send", Confirmations: 2, TxID: "bb"},
			{Address: regtestAddrB, Amount: 0.00000001, Category: "receive", Confirmations: 0, TxID: "cc", Vout: 1},
		},
		LastBlock: lastBlock,
	}, nil).Once()

	events, next, err := c.ListReceivedSince(context.Background(), "", 6)
	require.NoError(t, err)
	assert.Equal(t, lastBlock, next)
	require.Len(t, events, 2)
	assert.True(t, events[0].Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "0.00000001", events[1].Amount.String())
	assert.Equal(t, uint32(1), events[1].Vout)

	_, _, err = c.ListReceivedSince(context.Background(), "zz", 6)
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)

	rpc.AssertExpectations(t)
}

func TestBitcoindClient_SendMany(t *testing.T) {
	txid, err := chainhash.NewHashFromStr("00000000000000000000000000000000000000000000000000000000000000ff")
	require.NoError(t, err)

	t.Run("converts amounts to satoshis", func(t *testing.T) {
		rpc := &mockRPC{}
		c := newTestClient(rpc, time.Second)
		rpc.On("SendMany", defaultAccount, map[string]btcutil.Amount{
			regtestAddrA: 100_000_000,
			regtestAddrB: 12_345_678,
		}).Return(txid, nil).Once()

		got, err := c.SendMany(context.Background(), map[string]decimal.Decimal{
			regtestAddrA: decimal.NewFromInt(1),
			regtestAddrB: decimal.RequireFromString("0.12345678"),
		})
		require.NoError(t, err)
		assert.Equal(t, txid.String(), got)
		rpc.AssertExpectations(t)
	})

	t.Run("node rejects the batch", func(t *testing.T) {
		rpc := &mockRPC{}
		c := newTestClient(rpc, time.Second)
		rpc.On("SendMany", defaultAccount, mock.Anything).
			Return(nil, &btcjson.RPCError{Code: btcjson.ErrRPCInvalidParameter, Message: "duplicated address"}).Once()

		_, err := c.SendMany(context.Background(), map[string]decimal.Decimal{regtestAddrA: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, shared.ErrExternalNodeProtocol)
		assert.False(t, IsTransient(err))
	})

	t.Run("timeout leaves the outcome unknown", func(t *testing.T) {
		rpc := &mockRPC{delay: 200 * time.Millisecond}
		c := newTestClient(rpc, 20*time.Millisecond)
		rpc.On("SendMany", defaultAccount, mock.Anything).Return(txid, nil).Maybe()

		_, err := c.SendMany(context.Background(), map[string]decimal.Decimal{regtestAddrA: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, ErrSendOutcomeUnknown)
		assert.ErrorIs(t, err, shared.ErrExternalNodeProtocol)
	})

	t.Run("empty batch", func(t *testing.T) {
		c := newTestClient(&mockRPC{}, time.Second)
		_, err := c.SendMany(context.Background(), nil)
		assert.ErrorIs(t, err, shared.ErrInvalidArgument)
	})
}

func TestBitcoindClient_GetTransactionFeeIsPositive(t *testing.T) {
	rpc := &mockRPC{}
	c := newTestClient(rpc, time.Second)
	txid := "00000000000000000000000000000000000000000000000000000000000000ff"

	rpc.On("GetTransaction", txid).Return(&btcjson.GetTransactionResult{Fee: -0.0005, Confirmations: 0}, nil).Once()

	info, err := c.GetTransaction(context.Background(), txid)
	require.NoError(t, err)
	assert.Equal(t, "0.0005", info.Fee.String())
}

func TestBitcoindClient_GetBalanceAndReceived(t *testing.T) {
	rpc := &mockRPC{}
	c := newTestClient(rpc, time.Second)

	rpc.On("GetBalanceMinConf", "*", 6).Return(btcutil.Amount(550_000_000), nil).Once()
	rpc.On("GetReceivedByAddressMinConf", regtestAddrA, 6).Return(btcutil.Amount(0), errors.New("eof")).Once()

	bal, err := c.GetBalance(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, "5.5", bal.String())

	_, err = c.GetReceived(context.Background(), regtestAddrA, 6)
	assert.True(t, IsTransient(err))

	rpc.AssertExpectations(t)
}
