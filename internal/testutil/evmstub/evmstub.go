// Package evmstub provides an in-memory ChainClient for tests. It records
// submitted transactions and answers receipts for them.
package evmstub

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RPCError mimics a JSON-RPC error returned by a node.
type RPCError struct {
	Code int
	Msg  string
}

func (e *RPCError) Error() string  { return e.Msg }
func (e *RPCError) ErrorCode() int { return e.Code }

// Client is a scriptable chain. Zero values give chain id 1337, nonce 0 and
// successful receipts.
type Client struct {
	mu sync.Mutex

	Chain   *big.Int
	Nonce   uint64
	Tip     *big.Int
	BaseFee *big.Int
	Gas     uint64
	Balance *big.Int

	// ReadErr fails every read call.
	ReadErr error
	// EstimateErr fails EstimateGas.
	EstimateErr error
	// SendErr fails SendTransaction.
	SendErr error
	// ReceiptErr fails TransactionReceipt.
	ReceiptErr error
	// Revert makes receipts report failure.
	Revert bool
	// Pending answers NotFound this many times before returning a receipt.
	Pending int

	Sent      []*types.Transaction
	Estimates []ethereum.CallMsg
	Closed    bool
}

// New returns a Client for chain 1337.
func New() *Client {
	return &Client{Chain: big.NewInt(1337)}
}

func (c *Client) ChainID(context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	return c.chain(), nil
}

func (c *Client) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return 0, c.ReadErr
	}
	return c.Nonce, nil
}

func (c *Client) SuggestGasTipCap(context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	if c.Tip == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set(c.Tip), nil
}

func (c *Client) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	base := c.BaseFee
	if base == nil {
		base = big.NewInt(10_000_000_000)
	}
	return &types.Header{Number: big.NewInt(100), BaseFee: new(big.Int).Set(base)}, nil
}

func (c *Client) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return 0, c.ReadErr
	}
	c.Estimates = append(c.Estimates, msg)
	if c.EstimateErr != nil {
		return 0, c.EstimateErr
	}
	if c.Gas == 0 {
		return 21_000 + uint64(len(msg.Data))*16, nil
	}
	return c.Gas, nil
}

func (c *Client) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, tx)
	c.Nonce++
	return nil
}

func (c *Client) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReceiptErr != nil {
		return nil, c.ReceiptErr
	}
	if c.Pending > 0 {
		c.Pending--
		return nil, ethereum.NotFound
	}
	for _, tx := range c.Sent {
		if tx.Hash() == hash {
			status := types.ReceiptStatusSuccessful
			if c.Revert {
				status = types.ReceiptStatusFailed
			}
			return &types.Receipt{
				Status:      status,
				TxHash:      hash,
				GasUsed:     tx.Gas(),
				BlockNumber: big.NewInt(101),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (c *Client) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	if c.Balance == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(c.Balance), nil
}

func (c *Client) Close() {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
}

// LastSent returns the most recent submitted transaction or nil.
func (c *Client) LastSent() *types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Sent) == 0 {
		return nil
	}
	return c.Sent[len(c.Sent)-1]
}

func (c *Client) chain() *big.Int {
	if c.Chain == nil {
		return big.NewInt(1337)
	}
	return new(big.Int).Set(c.Chain)
}
