// Package blockchain connects to an EVM ledger and runs the transaction
// pipeline used by the custody service: build, freeze, sign, submit and
// receipt. It also provides unit conversion between display coins and wei
// and Ethereum-compatible message signatures.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"go.uber.org/zap"
)

var (
	// HashPrefix32Bytes is the standard Ethereum personal-sign prefix for 32-byte
	// messages: "\x19Ethereum Signed Message:\n32".
	// See Geth reference:
	// https://github.com/ethereum/go-ethereum/blob/bf468a81ec261745b25206b2a596eb0ee0a24a74/internal/ethapi/api.go#L361
	HashPrefix32Bytes = []byte("\x19Ethereum Signed Message:\n32")
)

const hintRPC = "check RPC_ADDR and that the node is reachable"

// ChainClient is the subset of ethclient.Client used by the pipeline.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

var _ ChainClient = (*ethclient.Client)(nil)

// EVMClient binds a ChainClient to the chain it serves.
type EVMClient struct {
	Client   ChainClient
	ChainID  *big.Int
	Timeouts config.Timeouts
	// PollInterval is the first receipt polling delay. Default: 1s.
	PollInterval time.Duration
}

// Dialer opens a fresh client for network. Each signer resolution gets its
// own client and is responsible for closing it.
type Dialer func(ctx context.Context, network config.Network) (*EVMClient, error)

// NewEVMClient wraps an already connected client.
func NewEVMClient(client ChainClient, chainID *big.Int, timeouts config.Timeouts) *EVMClient {
	return &EVMClient{
		Client:       client,
		ChainID:      chainID,
		Timeouts:     timeouts.WithDefaults(),
		PollInterval: time.Second,
	}
}

// NewDialer returns a Dialer that connects to endpoint.
func NewDialer(endpoint string, timeouts config.Timeouts) Dialer {
	return func(ctx context.Context, network config.Network) (*EVMClient, error) {
		return Dial(ctx, endpoint, network, timeouts)
	}
}

// Dial connects to endpoint and reads its chain id. When network carries a
// chain id the node must serve that chain.
func Dial(ctx context.Context, endpoint string, network config.Network, timeouts config.Timeouts) (*EVMClient, error) {
	tt := timeouts.WithDefaults()

	dctx, cancel := context.WithTimeout(ctx, tt.Dial)
	defer cancel()
	client, err := ethclient.DialContext(dctx, endpoint)
	if err != nil {
		zap.L().Error("Failed to ethdial", zap.Error(err))
		return nil, faults.New(faults.KindNetwork, "blockchain.dial", hintRPC, err)
	}

	rctx, rcancel := context.WithTimeout(ctx, tt.ChainRead)
	defer rcancel()
	chainID, err := client.ChainID(rctx)
	if err != nil {
		client.Close()
		zap.L().Error("failed to get chain ID", zap.Error(err))
		return nil, faults.New(faults.KindNetwork, "blockchain.dial", hintRPC, err)
	}

	if network.ChainID != "" {
		want, ok := new(big.Int).SetString(network.ChainID, 10)
		if !ok {
			client.Close()
			return nil, faults.Newf(faults.KindConfig, "blockchain.dial", "set NETWORK to main, test or preview",
				"invalid chain id %q", network.ChainID)
		}
		if want.Cmp(chainID) != 0 {
			client.Close()
			return nil, faults.Newf(faults.KindConfig, "blockchain.dial",
				"point RPC_ADDR at a node for the credential's network",
				"node serves chain %s but network %q expects %s", chainID, network.Name, want)
		}
	}

	return NewEVMClient(client, chainID, tt), nil
}

// Close releases the underlying connection.
func (evm *EVMClient) Close() {
	if evm != nil && evm.Client != nil {
		evm.Client.Close()
	}
}

// GetCurrentBlockNumberCtx returns the latest block number using the provided context.
func (evm *EVMClient) GetCurrentBlockNumberCtx(ctx context.Context) (*big.Int, error) {
	header, err := evm.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		zap.L().Error("failed to get last block number", zap.Error(err))
		return nil, err
	}
	return header.Number, nil
}

// Balance returns the latest balance of account in wei.
func (evm *EVMClient) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, evm.Timeouts.ChainRead)
	defer cancel()
	bal, err := evm.Client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, faults.New(faults.KindNetwork, "blockchain.balance", hintRPC, err)
	}
	return bal, nil
}

// WaitForTransaction polls for a transaction receipt with exponential backoff,
// until receipt is available, context is done, or an error occurs. If maxBackoff
// is non-zero, backoff will not exceed it. Reverted receipts are returned as
// they are; the caller decides how to report them.
func (evm *EVMClient) WaitForTransaction(ctx context.Context, txHash common.Hash, maxBackoff time.Duration) (*types.Receipt, error) {
	backoff := evm.PollInterval
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		receipt, err := evm.Client.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if maxBackoff == 0 || backoff < maxBackoff {
				backoff *= 2
			}
			if maxBackoff != 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			return nil, fmt.Errorf("receipt error: %w", err)
		}
	}
}
