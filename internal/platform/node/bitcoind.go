package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// defaultAccount is the wallet account used for every RPC that takes one
const defaultAccount = ""

// rpcInWarmup is returned by bitcoind while it loads the block index
const rpcInWarmup btcjson.RPCErrorCode = -28

// walletRPC is the part of *rpcclient.Client used here
type walletRPC interface {
	GetNewAddress(account string) (btcutil.Address, error)
	GetReceivedByAddressMinConf(address btcutil.Address, minConfirms int) (btcutil.Amount, error)
	ListSinceBlockMinConf(blockHash *chainhash.Hash, minConfirms int) (*btcjson.ListSinceBlockResult, error)
	SendMany(fromAccount string, amounts map[btcutil.Address]btcutil.Amount) (*chainhash.Hash, error)
	GetTransaction(txHash *chainhash.Hash) (*btcjson.GetTransactionResult, error)
	GetBalanceMinConf(account string, minConfirms int) (btcutil.Amount, error)
	Shutdown()
}

// BitcoindClient implements Client against a bitcoind-compatible wallet over
// JSON-RPC in HTTP POST mode.
type BitcoindClient struct {
	rpc     walletRPC
	params  *chaincfg.Params
	timeout time.Duration
	logger  *slog.Logger
}

// NewBitcoindClient builds the RPC client. No connection is made until the
// first call.
func NewBitcoindClient(logger *slog.Logger, cfg config.NodeConfig) (*BitcoindClient, error) {
	params, err := NetworkParams(cfg.Network)
	if err != nil {
		return nil, err
	}

	rpcCfg := &rpcclient.ConnConfig{
		Host:                cfg.Host,
		User:                cfg.User,
		Pass:                cfg.Pass,
		Params:              params.Name,
		DisableTLS:          true,
		HTTPPostMode:        true,
		DisableConnectOnNew: true,
	}

	rpc, err := rpcclient.New(rpcCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create node rpc client: %w", err)
	}

	logger.Info("Node RPC client configured", "host", cfg.Host, "network", params.Name)

	return newBitcoindClient(logger, rpc, params, cfg.RPCTimeout), nil
}

func newBitcoindClient(logger *slog.Logger, rpc walletRPC, params *chaincfg.Params, timeout time.Duration) *BitcoindClient {
	return &BitcoindClient{
		rpc:     rpc,
		params:  params,
		timeout: timeout,
		logger:  logger.With("component", "node"),
	}
}

// NetworkParams maps a configured network name to chain parameters
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

func (c *BitcoindClient) Close() {
	c.rpc.Shutdown()
}

func (c *BitcoindClient) CreateAddress(ctx context.Context) (string, error) {
	var addr btcutil.Address
	err := c.call(ctx, "getnewaddress", func() (err error) {
		addr, err = c.rpc.GetNewAddress(defaultAccount)
		return err
	})
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (c *BitcoindClient) GetReceived(ctx context.Context, address string, minConf int) (decimal.Decimal, error) {
	addr, err := c.decode(address)
	if err != nil {
		return decimal.Zero, err
	}

	var amount btcutil.Amount
	err = c.call(ctx, "getreceivedbyaddress", func() (err error) {
		amount, err = c.rpc.GetReceivedByAddressMinConf(addr, minConf)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return fromAmount(amount), nil
}

func (c *BitcoindClient) ListReceivedSince(ctx context.Context, checkpoint string, minConf int) ([]ReceiveEvent, string, error) {
	var since *chainhash.Hash
	if checkpoint != "" {
		h, err := chainhash.NewHashFromStr(checkpoint)
		if err != nil {
			return nil, "", fmt.Errorf("%w: bad checkpoint %q: %v", shared.ErrInvalidArgument, checkpoint, err)
		}
		since = h
	}

	var res *btcjson.ListSinceBlockResult
	err := c.call(ctx, "listsinceblock", func() (err error) {
		res, err = c.rpc.ListSinceBlockMinConf(since, minConf)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	events := make([]ReceiveEvent, 0, len(res.Transactions))
	for _, tx := range res.Transactions {
		if tx.Category != "receive" {
			continue
		}
		amount, err := fromFloat(tx.Amount)
		if err != nil {
			c.logger.Warn("Skipping receive with unparseable amount", "txid", tx.TxID, "amount", tx.Amount, "error", err)
			continue
		}
		events = append(events, ReceiveEvent{
			Address:       tx.Address,
			TxID:          tx.TxID,
			Vout:          tx.Vout,
			Amount:        amount,
			Confirmations: tx.Confirmations,
		})
	}

	return events, res.LastBlock, nil
}

func (c *BitcoindClient) SendMany(ctx context.Context, outputs map[string]decimal.Decimal) (string, error) {
	if len(outputs) == 0 {
		return "", fmt.Errorf("%w: send with no outputs", shared.ErrInvalidArgument)
	}

	amounts := make(map[btcutil.Address]btcutil.Amount, len(outputs))
	for address, amount := range outputs {
		addr, err := c.decode(address)
		if err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrExternalNodeProtocol, err)
		}
		amounts[addr] = toAmount(amount)
	}

	var txid *chainhash.Hash
	err := c.call(ctx, "sendmany", func() (err error) {
		txid, err = c.rpc.SendMany(defaultAccount, amounts)
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %v", ErrSendOutcomeUnknown, err)
		}
		return "", err
	}
	return txid.String(), nil
}

func (c *BitcoindClient) GetTransaction(ctx context.Context, txid string) (*TxInfo, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("%w: bad txid %q: %v", shared.ErrInvalidArgument, txid, err)
	}

	var res *btcjson.GetTransactionResult
	err = c.call(ctx, "gettransaction", func() (err error) {
		res, err = c.rpc.GetTransaction(hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	fee, err := fromFloat(res.Fee)
	if err != nil {
		return nil, fmt.Errorf("%w: bad fee in gettransaction: %v", shared.ErrExternalNodeProtocol, err)
	}
	return &TxInfo{TxID: txid, Fee: fee.Abs(), Confirmations: res.Confirmations}, nil
}

func (c *BitcoindClient) GetBalance(ctx context.Context, minConf int) (decimal.Decimal, error) {
	var amount btcutil.Amount
	err := c.call(ctx, "getbalance", func() (err error) {
		amount, err = c.rpc.GetBalanceMinConf("*", minConf)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return fromAmount(amount), nil
}

func (c *BitcoindClient) ValidateAddress(address string) error {
	_, err := c.decode(address)
	return err
}

func (c *BitcoindClient) decode(address string) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(address, c.params)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid address %q: %v", shared.ErrInvalidArgument, address, err)
	}
	if !addr.IsForNet(c.params) {
		return nil, fmt.Errorf("%w: address %q is not for %s", shared.ErrInvalidArgument, address, c.params.Name)
	}
	return addr, nil
}

// call runs fn bounded by the RPC timeout. rpcclient calls take no context,
// so a timed out call keeps running in the background and its result is
// dropped.
func (c *BitcoindClient) call(ctx context.Context, method string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn("Node RPC failed", "method", method, "error", err)
		}
		return classify(method, err)
	case <-ctx.Done():
		c.logger.Warn("Node RPC timed out", "method", method, "timeout", c.timeout)
		return fmt.Errorf("%w: %s: %w", shared.ErrExternalNodeTransient, method, ctx.Err())
	}
}

// classify maps an rpcclient error onto the two node error kinds. Anything
// that is not a JSON-RPC error from the node is a transport problem.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}

	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %v", shared.ErrExternalNodeTransient, method, err)
	}

	switch rpcErr.Code {
	case btcjson.ErrRPCWalletInsufficientFunds,
		btcjson.ErrRPCWalletKeypoolRanOut,
		btcjson.ErrRPCWalletUnlockNeeded,
		btcjson.ErrRPCClientNotConnected,
		btcjson.ErrRPCClientInInitialDownload,
		rpcInWarmup:
		return fmt.Errorf("%w: %s: %v", shared.ErrExternalNodeTransient, method, rpcErr)
	default:
		return fmt.Errorf("%w: %s: %v", shared.ErrExternalNodeProtocol, method, rpcErr)
	}
}

func fromAmount(a btcutil.Amount) decimal.Decimal {
	return decimal.NewFromInt(int64(a)).Shift(-shared.AmountPrecision)
}

// fromFloat goes through btcutil.NewAmount, which rounds to the nearest
// satoshi, so float noise never leaks into the ledger.
func fromFloat(f float64) (decimal.Decimal, error) {
	a, err := btcutil.NewAmount(f)
	if err != nil {
		return decimal.Zero, err
	}
	return fromAmount(a), nil
}

func toAmount(d decimal.Decimal) btcutil.Amount {
	return btcutil.Amount(d.Shift(shared.AmountPrecision).IntPart())
}
