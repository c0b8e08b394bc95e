// Package fakenode is a scriptable in-memory node.Client. Its wallet balance
// follows from what it received and sent, so reconciliation against it
// behaves like against a real node.
package fakenode

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/platform/node"
	"github.com/shopspring/decimal"
)

var _ node.Client = (*Node)(nil)

// Send is one recorded SendMany call
type Send struct {
	TxID    string
	Outputs map[string]decimal.Decimal
	Fee     decimal.Decimal
}

type Node struct {
	mu sync.Mutex

	addresses int
	events    []node.ReceiveEvent
	sends     []Send
	fees      map[string]decimal.Decimal

	// Fee is charged on every successful send
	Fee decimal.Decimal

	sendErrs   []error
	createErr  error
	listErr    error
	balanceErr error

	// BeforeSend, when set, runs at the start of every SendMany
	BeforeSend func()
}

func New() *Node {
	return &Node{
		fees: map[string]decimal.Decimal{},
		Fee:  decimal.Zero,
	}
}

// Receive makes the node report an incoming output
func (n *Node) Receive(addr, txid string, amount decimal.Decimal, confirmations int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, node.ReceiveEvent{
		Address:       addr,
		TxID:          txid,
		Vout:          uint32(len(n.events)),
		Amount:        amount,
		Confirmations: confirmations,
	})
}

// Confirm sets the confirmation count of every output of txid
func (n *Node) Confirm(txid string, confirmations int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.events {
		if n.events[i].TxID == txid {
			n.events[i].Confirmations = confirmations
		}
	}
}

// FailNextSends queues errors returned by the next SendMany calls, in order
func (n *Node) FailNextSends(errs ...error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErrs = append(n.sendErrs, errs...)
}

func (n *Node) FailCreateAddress(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.createErr = err
}

func (n *Node) FailListReceived(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listErr = err
}

func (n *Node) FailGetBalance(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balanceErr = err
}

// Sends returns the successful SendMany calls
func (n *Node) Sends() []Send {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Send(nil), n.sends...)
}

func (n *Node) CreateAddress(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrExternalNodeTransient, err)
	}
	if n.createErr != nil {
		return "", n.createErr
	}
	n.addresses++
	return "pool-" + strconv.Itoa(n.addresses), nil
}

func (n *Node) GetReceived(_ context.Context, addr string, minConf int) (decimal.Decimal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := decimal.Zero
	for _, e := range n.events {
		if e.Address == addr && e.Confirmations >= int64(minConf) {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

// ListReceivedSince treats the checkpoint as an index into the receive log.
// Like listsinceblock with a target depth, the next checkpoint never passes an
// event still below minConf, so it is listed again until it reaches it.
func (n *Node) ListReceivedSince(_ context.Context, checkpoint string, minConf int) ([]node.ReceiveEvent, string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listErr != nil {
		return nil, "", n.listErr
	}

	seen := 0
	if checkpoint != "" {
		var err error
		if seen, err = strconv.Atoi(checkpoint); err != nil {
			return nil, "", fmt.Errorf("%w: bad checkpoint %q", shared.ErrExternalNodeProtocol, checkpoint)
		}
	}

	var out []node.ReceiveEvent
	next := len(n.events)
	for i, e := range n.events {
		if e.Confirmations < int64(minConf) && i < next {
			next = i
		}
		if i >= seen || e.Confirmations < int64(minConf) {
			out = append(out, e)
		}
	}
	if next < seen {
		next = seen
	}
	return out, strconv.Itoa(next), nil
}

func (n *Node) SendMany(ctx context.Context, outputs map[string]decimal.Decimal) (string, error) {
	if n.BeforeSend != nil {
		n.BeforeSend()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", node.ErrSendOutcomeUnknown
	}
	if len(n.sendErrs) > 0 {
		err := n.sendErrs[0]
		n.sendErrs = n.sendErrs[1:]
		return "", err
	}

	copied := make(map[string]decimal.Decimal, len(outputs))
	for k, v := range outputs {
		copied[k] = v
	}
	txid := "send-" + strconv.Itoa(len(n.sends)+1)
	n.sends = append(n.sends, Send{TxID: txid, Outputs: copied, Fee: n.Fee})
	n.fees[txid] = n.Fee
	return txid, nil
}

func (n *Node) GetTransaction(_ context.Context, txid string) (*node.TxInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fee, ok := n.fees[txid]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction %s", shared.ErrExternalNodeProtocol, txid)
	}
	return &node.TxInfo{TxID: txid, Fee: fee, Confirmations: 1}, nil
}

// GetBalance is everything received with minConf confirmations minus every
// send and its fee.
func (n *Node) GetBalance(_ context.Context, minConf int) (decimal.Decimal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.balanceErr != nil {
		return decimal.Zero, n.balanceErr
	}
	total := decimal.Zero
	for _, e := range n.events {
		if e.Confirmations >= int64(minConf) {
			total = total.Add(e.Amount)
		}
	}
	for _, s := range n.sends {
		for _, amt := range s.Outputs {
			total = total.Sub(amt)
		}
		total = total.Sub(s.Fee)
	}
	return total, nil
}

// ValidateAddress rejects empty addresses and ones starting with "bad"
func (n *Node) ValidateAddress(addr string) error {
	if addr == "" || strings.HasPrefix(addr, "bad") {
		return fmt.Errorf("%w: invalid address %q", shared.ErrInvalidArgument, addr)
	}
	return nil
}
