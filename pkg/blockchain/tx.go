package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Freeze binds a draft to the chain: nonce, EIP-1559 fees and gas limit are
// read from the client and an unsigned dynamic-fee transaction is returned.
// The fee cap is tip + 2*baseFee.
func (evm *EVMClient) Freeze(ctx context.Context, from common.Address, d *Draft) (*types.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, evm.Timeouts.ChainRead)
	defer cancel()

	nonce, err := evm.Client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	tip, err := evm.Client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}

	head, err := evm.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	value := d.Value
	if value == nil {
		value = new(big.Int)
	}

	gas, err := evm.Client.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        d.To,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Value:     value,
		Data:      d.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	zap.L().Debug("transaction frozen",
		zap.String("from", MaskAddress(from)),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
		zap.String("fee_cap", feeCap.String()))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   evm.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        d.To,
		Value:     value,
		Data:      d.Data,
	}), nil
}

// SignTx signs tx for the client's chain.
func (evm *EVMClient) SignTx(tx *types.Transaction, pk *ecdsa.PrivateKey) (*types.Transaction, error) {
	if pk == nil {
		return nil, fmt.Errorf("private key is required for transactions")
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(evm.ChainID), pk)
	if err != nil {
		zap.L().Error("failed to sign transaction", zap.Error(err))
		return nil, err
	}
	return signed, nil
}

// Sender recovers the signer of a signed transaction.
func (evm *EVMClient) Sender(tx *types.Transaction) (common.Address, error) {
	return types.Sender(types.LatestSignerForChainID(evm.ChainID), tx)
}
