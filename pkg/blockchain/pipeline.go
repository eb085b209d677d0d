package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/metrics"
	"go.uber.org/zap"
)

// Stage is a pipeline state. Stages only move forward.
type Stage int

const (
	StageBuilt Stage = iota + 1
	StageFrozen
	StageSigned
	StageSubmitted
	StageReceipted
)

func (s Stage) String() string {
	switch s {
	case StageBuilt:
		return "BUILT"
	case StageFrozen:
		return "FROZEN"
	case StageSigned:
		return "SIGNED"
	case StageSubmitted:
		return "SUBMITTED"
	case StageReceipted:
		return "RECEIPTED"
	}
	return "NONE"
}

// Status is the terminal status read from a receipt.
type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusReverted Status = "REVERTED"
)

// Result describes a pipeline run. On error it still carries the furthest
// stage reached and, once signed, the transaction id.
type Result struct {
	Status         Status `json:"status,omitempty"`
	TxID           string `json:"tx_id,omitempty"`
	Stage          Stage  `json:"-"`
	TopicID        string `json:"topic_id,omitempty"`
	AccountID      string `json:"account_id,omitempty"`
	SequenceNumber uint64 `json:"sequence_number,omitempty"`
	BlockNumber    uint64 `json:"block_number,omitempty"`
	GasUsed        uint64 `json:"gas_used,omitempty"`
}

// Execution tracks the stage of one run.
type Execution struct {
	op    string
	stage Stage
}

// Stage returns the current stage.
func (e *Execution) Stage() Stage { return e.stage }

func (e *Execution) advance(next Stage) error {
	if next <= e.stage {
		return fmt.Errorf("stage %s cannot follow %s", next, e.stage)
	}
	e.stage = next
	metrics.PipelineStageTotal.WithLabelValues(e.op, next.String()).Inc()
	return nil
}

// Pipeline runs operations for one signer against one client.
type Pipeline struct {
	client *EVMClient
	key    *ecdsa.PrivateKey
	from   common.Address
	// MaxBackoff caps the receipt polling interval. Zero means uncapped.
	MaxBackoff time.Duration
}

// NewPipeline binds client and key. key may be nil when only pre-signed
// transactions are submitted.
func NewPipeline(client *EVMClient, key *ecdsa.PrivateKey) *Pipeline {
	p := &Pipeline{client: client, key: key, MaxBackoff: 8 * time.Second}
	if addr := GetAddressFromPrivateKeyECDSA(key); addr != nil {
		p.from = *addr
	}
	return p
}

// From returns the signing account.
func (p *Pipeline) From() common.Address { return p.from }

// Run executes b through every stage. A reverted receipt is a Result with
// StatusReverted and a nil error. Errors before submission are INVALID_INPUT,
// NETWORK or CONFIG; a refusal by the node is LEDGER_REJECTED; any failure
// after submission is OUTCOME_UNKNOWN.
func (p *Pipeline) Run(ctx context.Context, b Builder) (Result, error) {
	start := time.Now()
	op := b.Operation()
	exec := &Execution{op: op}
	var res Result

	fail := func(kind faults.Kind, hint string, err error) (Result, error) {
		res.Stage = exec.stage
		metrics.PipelineResultTotal.WithLabelValues(op, string(kind)).Inc()
		zap.L().Warn("pipeline failed",
			zap.String("operation", op),
			zap.String("stage", exec.stage.String()),
			zap.String("kind", string(kind)),
			zap.String("tx_id", res.TxID),
			zap.Error(err))
		return res, faults.New(kind, "blockchain."+op, hint, err)
	}

	draft, err := b.Build(p.from)
	if err != nil {
		return fail(faults.KindInvalidInput, "fix the request parameters", err)
	}
	_ = exec.advance(StageBuilt)
	res.TopicID = draft.TopicID
	res.AccountID = draft.AccountID

	var signed *types.Transaction
	if draft.Signed != nil {
		signed = draft.Signed
		if cid := signed.ChainId(); cid != nil && cid.Sign() != 0 && cid.Cmp(p.client.ChainID) != 0 {
			return fail(faults.KindInvalidInput, "sign the transaction for the configured network",
				fmt.Errorf("transaction is signed for chain %s, node serves %s", cid, p.client.ChainID))
		}
		if _, err := p.client.Sender(signed); err != nil {
			return fail(faults.KindInvalidInput, "re-sign the transaction", fmt.Errorf("invalid signature: %w", err))
		}
		_ = exec.advance(StageSigned)
	} else {
		if p.key == nil {
			return fail(faults.KindNoCredentials, "resolve a signer before submitting", errors.New("no signing key"))
		}
		tx, err := p.client.Freeze(ctx, p.from, draft)
		if err != nil {
			var rpcErr rpc.Error
			if errors.As(err, &rpcErr) {
				return fail(faults.KindLedgerRejected, "check the account balance and the transaction parameters", err)
			}
			return fail(faults.KindNetwork, hintRPC, err)
		}
		_ = exec.advance(StageFrozen)

		signed, err = p.client.SignTx(tx, p.key)
		if err != nil {
			return fail(faults.KindInvalidInput, "check the signing key", err)
		}
		_ = exec.advance(StageSigned)
	}

	res.TxID = signed.Hash().Hex()
	res.SequenceNumber = signed.Nonce()

	sctx, cancel := context.WithTimeout(ctx, p.client.Timeouts.ChainSubmit)
	err = p.client.Client.SendTransaction(sctx, signed)
	cancel()
	if err != nil && !alreadyKnown(err) {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return fail(faults.KindLedgerRejected, "check the account balance and nonce", err)
		}
		return fail(faults.KindOutcomeUnknown, "look up the transaction id before retrying",
			fmt.Errorf("transaction %s may or may not have landed: %w", res.TxID, err))
	}
	_ = exec.advance(StageSubmitted)

	wctx, wcancel := context.WithTimeout(ctx, p.client.Timeouts.ReceiptWait)
	receipt, err := p.client.WaitForTransaction(wctx, signed.Hash(), p.MaxBackoff)
	wcancel()
	if err != nil {
		return fail(faults.KindOutcomeUnknown, "look up the transaction id before retrying",
			fmt.Errorf("transaction %s may or may not have landed: %w", res.TxID, err))
	}
	_ = exec.advance(StageReceipted)

	res.Stage = exec.stage
	res.GasUsed = receipt.GasUsed
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	res.Status = StatusSuccess
	if receipt.Status == types.ReceiptStatusFailed {
		res.Status = StatusReverted
	}

	metrics.PipelineResultTotal.WithLabelValues(op, string(res.Status)).Inc()
	metrics.PipelineDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	zap.L().Info("transaction receipted",
		zap.String("operation", op),
		zap.String("tx_id", res.TxID),
		zap.String("status", string(res.Status)),
		zap.Uint64("block", res.BlockNumber))

	return res, nil
}

func alreadyKnown(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already known")
}
