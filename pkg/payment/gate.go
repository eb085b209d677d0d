package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shamank/snet-custody-go/pkg/blockchain"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/metrics"
	"go.uber.org/zap"
)

// Rejection is the cause carried by a PAYMENT_REJECTED error.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return "payment rejected: " + r.Reason }

// ReasonOf returns the rejection reason in err's chain, or "".
func ReasonOf(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return ""
}

func rejected(op, reason string) error {
	return faults.New(faults.KindPaymentRejected, op, "", &Rejection{Reason: reason})
}

// Gate verifies and settles payments. The facilitator is optional; without
// it only local checks run and Settle is unavailable.
type Gate struct {
	facilitator  *Facilitator
	ledger       SettlementLedger
	requirements *Requirements
	timeout      time.Duration
}

// NewGate wires a gate. A nil ledger selects a MemoryLedger and nil
// requirements an empty registry.
func NewGate(facilitator *Facilitator, ledger SettlementLedger, requirements *Requirements, timeout time.Duration) *Gate {
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	if requirements == nil {
		requirements = NewRequirements()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gate{facilitator: facilitator, ledger: ledger, requirements: requirements, timeout: timeout}
}

// Requirements returns the registry the transports consult.
func (g *Gate) Requirements() *Requirements { return g.requirements }

// Facilitator returns the configured facilitator client, or nil.
func (g *Gate) Facilitator() *Facilitator { return g.facilitator }

// Verify checks p against req. Local checks run in this order: network,
// token, amount, signature, remaining fields. Then the ledger and the
// facilitator are asked. The error is non-nil only when a dependency
// could not be reached.
func (g *Gate) Verify(ctx context.Context, p Payload, req Requirement) (Decision, error) {
	d, err := g.verify(ctx, p, req)
	if err != nil {
		return Decision{}, err
	}
	metrics.PaymentDecisionsTotal.WithLabelValues(strconv.FormatBool(d.Accept), d.Reason).Inc()
	if !d.Accept {
		zap.L().Info("payment rejected",
			zap.String("reason", d.Reason),
			zap.String("network", p.Network),
			zap.String("resource", req.Resource))
	}
	return d, nil
}

func (g *Gate) verify(ctx context.Context, p Payload, req Requirement) (Decision, error) {
	reject := func(reason string) (Decision, error) { return Decision{Accept: false, Reason: reason}, nil }

	if !strings.EqualFold(strings.TrimSpace(p.Network), strings.TrimSpace(req.Network)) {
		return reject(ReasonNetworkMismatch)
	}
	if !strings.EqualFold(strings.TrimSpace(p.Token), strings.TrimSpace(req.Asset)) {
		return reject(ReasonTokenMismatch)
	}

	required, err := parseAmount(req.MaxAmountRequired)
	if err != nil {
		return Decision{}, faults.New(faults.KindConfig, "payment.verify", "check PAYMENT_MAX_AMOUNT", err)
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return reject(ReasonInvalidPayload)
	}
	if amount.Cmp(required) < 0 {
		return reject(ReasonInsufficientAmount)
	}

	payer, err := blockchain.ParseAccountID(p.Payer)
	if err != nil {
		return reject(ReasonInvalidPayload)
	}
	signer, err := signerOf(p)
	if err != nil || signer != payer {
		return reject(ReasonInvalidSignature)
	}

	if strings.TrimSpace(p.Nonce) == "" {
		return reject(ReasonInvalidPayload)
	}

	settled, err := g.ledger.Settled(ctx, settlementKey(p))
	if err != nil {
		return Decision{}, err
	}
	if settled {
		return reject(ReasonAlreadySettled)
	}

	if g.facilitator != nil {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		resp, err := g.facilitator.Verify(ctx, p, req)
		if err != nil {
			return Decision{}, err
		}
		if !resp.IsValid {
			return reject(resp.InvalidReason)
		}
	}

	return Decision{Accept: true, Payer: payer.Hex()}, nil
}

// Settle verifies p, reserves it in the ledger and asks the facilitator to
// settle it exactly once. A rejection is PAYMENT_REJECTED (see ReasonOf).
// An ambiguous facilitator reply is OUTCOME_UNKNOWN and the reservation is
// kept, so the same payment cannot be settled again from this gate.
func (g *Gate) Settle(ctx context.Context, p Payload, req Requirement) (Settlement, error) {
	if g.facilitator == nil {
		return Settlement{}, faults.Newf(faults.KindConfig, "payment.settle", "set FACILITATOR_URL", "no facilitator configured")
	}

	d, err := g.Verify(ctx, p, req)
	if err != nil {
		return Settlement{}, err
	}
	if !d.Accept {
		metrics.PaymentSettlementsTotal.WithLabelValues("rejected").Inc()
		return Settlement{}, rejected("payment.settle", d.Reason)
	}

	key := settlementKey(p)
	ok, err := g.ledger.Reserve(ctx, key)
	if err != nil {
		return Settlement{}, err
	}
	if !ok {
		metrics.PaymentSettlementsTotal.WithLabelValues("rejected").Inc()
		return Settlement{}, rejected("payment.settle", ReasonAlreadySettled)
	}

	sctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.facilitator.Settle(sctx, p, req)
	if err != nil {
		metrics.PaymentSettlementsTotal.WithLabelValues("unknown").Inc()
		zap.L().Error("payment settlement outcome unknown, reservation kept",
			zap.String("payer", p.Payer),
			zap.String("nonce", p.Nonce),
			zap.Error(err))
		return Settlement{}, err
	}

	if !resp.Success {
		if rerr := g.ledger.Release(ctx, key); rerr != nil {
			zap.L().Warn("failed to release settlement reservation", zap.String("nonce", p.Nonce), zap.Error(rerr))
		}
		metrics.PaymentSettlementsTotal.WithLabelValues("rejected").Inc()
		return Settlement{}, rejected("payment.settle", resp.ErrorReason)
	}

	s := Settlement{TxRef: resp.Transaction, Network: resp.Network, Payer: resp.Payer}
	if s.Network == "" {
		s.Network = req.Network
	}
	if s.Payer == "" {
		s.Payer = d.Payer
	}
	if err := g.ledger.Commit(ctx, key, s.TxRef); err != nil {
		// the reservation already blocks replays
		zap.L().Warn("failed to record settlement", zap.String("tx_ref", s.TxRef), zap.Error(err))
	}

	metrics.PaymentSettlementsTotal.WithLabelValues("settled").Inc()
	zap.L().Info("payment settled",
		zap.String("tx_ref", s.TxRef),
		zap.String("network", s.Network),
		zap.String("resource", req.Resource))
	return s, nil
}

// String is used in logs; it never includes the signature.
func (p Payload) String() string {
	return fmt.Sprintf("payment{network:%s payer:%s amount:%s token:%s nonce:%s}", p.Network, p.Payer, p.Amount, p.Token, p.Nonce)
}
