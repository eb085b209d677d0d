// Package signer resolves which account signs a tenant's transactions. The
// resolver asks an ordered list of credential sources and binds the first
// usable credential to a freshly dialled ledger client.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shamank/snet-custody-go/pkg/blockchain"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/metrics"
	"go.uber.org/zap"
)

// Outcome is the result of asking one credential source.
type Outcome int

const (
	// OutcomeNotConfigured means the source has nothing for this tenant.
	OutcomeNotConfigured Outcome = iota
	// OutcomeResolved means the source produced a usable candidate.
	OutcomeResolved
	// OutcomeFailed means the source had something but could not use it.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeFailed:
		return "failed"
	}
	return "not_configured"
}

const (
	SourceTenant   = "tenant"
	SourceOperator = "operator"
)

// Candidate is a parsed credential waiting for a client.
type Candidate struct {
	AccountID common.Address
	Network   config.Network
	key       *ecdsa.PrivateKey
}

// CredentialSource produces a candidate for a tenant.
type CredentialSource interface {
	Name() string
	Lookup(ctx context.Context, tenantID string) (Candidate, Outcome, error)
}

func newCandidate(accountID, privateKey, network string) (Candidate, error) {
	acct, err := blockchain.ParseAccountID(accountID)
	if err != nil {
		return Candidate{}, err
	}
	addr, key, err := blockchain.ParsePrivateKeyECDSA(privateKey)
	if err != nil {
		return Candidate{}, err
	}
	if addr != acct {
		return Candidate{}, fmt.Errorf("private key does not belong to account %s", blockchain.MaskAddress(acct))
	}
	n, err := config.NetworkByName(network)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{AccountID: acct, Network: n, key: key}, nil
}

// SecretGetter is implemented by *credential.Store.
type SecretGetter interface {
	Get(ctx context.Context, tenantID string) (*credential.Secret, error)
}

// TenantSource reads the tenant's stored credential.
type TenantSource struct {
	Store SecretGetter
}

func (TenantSource) Name() string { return SourceTenant }

func (s TenantSource) Lookup(ctx context.Context, tenantID string) (Candidate, Outcome, error) {
	if tenantID == "" || s.Store == nil {
		return Candidate{}, OutcomeNotConfigured, nil
	}
	secret, err := s.Store.Get(ctx, tenantID)
	if err != nil {
		return Candidate{}, OutcomeFailed, err
	}
	if secret == nil {
		return Candidate{}, OutcomeNotConfigured, nil
	}
	c, err := newCandidate(secret.AccountID, secret.PrivateKey, secret.Network)
	if err != nil {
		return Candidate{}, OutcomeFailed, err
	}
	return c, OutcomeResolved, nil
}

// OperatorSource uses the process-wide operator account.
type OperatorSource struct {
	Operator config.Operator
	Network  config.Network
}

func (OperatorSource) Name() string { return SourceOperator }

func (s OperatorSource) Lookup(context.Context, string) (Candidate, Outcome, error) {
	if !s.Operator.Configured() {
		return Candidate{}, OutcomeNotConfigured, nil
	}
	c, err := newCandidate(s.Operator.AccountID, s.Operator.PrivateKey, s.Network.Name)
	if err != nil {
		return Candidate{}, OutcomeFailed, err
	}
	c.Network = s.Network
	return c, OutcomeResolved, nil
}

// Context is a resolved signer bound to a live client. It lives for one
// logical operation; call Close when done.
type Context struct {
	AccountID common.Address
	Network   config.Network
	Client    *blockchain.EVMClient
	Source    string

	key *ecdsa.PrivateKey
}

// String never includes the key.
func (c *Context) String() string {
	return fmt.Sprintf("signer{account:%s network:%s source:%s}", blockchain.MaskAddress(c.AccountID), c.Network.Name, c.Source)
}

// Pipeline returns a transaction pipeline for this signer.
func (c *Context) Pipeline() *blockchain.Pipeline {
	return blockchain.NewPipeline(c.Client, c.key)
}

// Execute runs b through the pipeline.
func (c *Context) Execute(ctx context.Context, b blockchain.Builder) (blockchain.Result, error) {
	return c.Pipeline().Run(ctx, b)
}

// SignMessage personal-signs message with the signer key.
func (c *Context) SignMessage(message []byte) ([]byte, error) {
	return blockchain.GetSignature(message, c.key)
}

// Close releases the client and drops the key reference.
func (c *Context) Close() {
	if c == nil {
		return
	}
	c.Client.Close()
	c.key = nil
}

// Resolver tries sources in order. Nothing is cached between calls.
type Resolver struct {
	sources []CredentialSource
	dial    blockchain.Dialer
	// Trace, when set, is called for every source attempt.
	Trace func(source string, outcome Outcome)
}

// NewResolver returns a resolver over sources, which are asked in order.
func NewResolver(dial blockchain.Dialer, sources ...CredentialSource) *Resolver {
	return &Resolver{sources: sources, dial: dial}
}

// Resolve returns the first resolved candidate bound to a new client.
// Sources that fail are logged and skipped; so is a candidate whose network
// the node does not serve. When nothing resolves the error is NO_CREDENTIALS,
// or CONFIG if a candidate was skipped for its network. Any other dial
// failure is returned as it is.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*Context, error) {
	tenantID = strings.TrimSpace(tenantID)
	var (
		failures []error
		mismatch error
	)

	for _, src := range r.sources {
		cand, outcome, err := src.Lookup(ctx, tenantID)

		var client *blockchain.EVMClient
		if outcome == OutcomeResolved {
			client, err = r.dial(ctx, cand.Network)
			if err != nil {
				if faults.KindOf(err) != faults.KindConfig {
					r.trace(src.Name(), outcome)
					return nil, err
				}
				outcome, mismatch = OutcomeFailed, err
			}
		}
		r.trace(src.Name(), outcome)

		switch outcome {
		case OutcomeFailed:
			zap.L().Warn("credential source failed, trying next",
				zap.String("tenant_id", tenantID),
				zap.String("source", src.Name()),
				zap.String("kind", string(faults.KindOf(err))),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		case OutcomeNotConfigured:
			continue
		}

		zap.L().Debug("signer resolved",
			zap.String("tenant_id", tenantID),
			zap.String("source", src.Name()),
			zap.String("account", blockchain.MaskAddress(cand.AccountID)),
			zap.String("network", cand.Network.Name))

		return &Context{
			AccountID: cand.AccountID,
			Network:   cand.Network,
			Client:    client,
			Source:    src.Name(),
			key:       cand.key,
		}, nil
	}

	hint := "set OPERATOR_ACCOUNT_ID and OPERATOR_PRIVATE_KEY"
	msg := "no tenant and no operator credentials configured"
	if tenantID != "" {
		hint = "add ledger credentials for this tenant"
		msg = fmt.Sprintf("no usable credentials for tenant %s and no operator fallback", tenantID)
	}
	var cause error = errors.New(msg)
	if len(failures) > 0 {
		cause = fmt.Errorf("%s: %w", msg, errors.Join(failures...))
	}
	if mismatch != nil {
		return nil, faults.New(faults.KindConfig, "signer.resolve", faults.HintOf(mismatch), cause)
	}
	return nil, faults.New(faults.KindNoCredentials, "signer.resolve", hint, cause)
}

func (r *Resolver) trace(source string, o Outcome) {
	metrics.SignerResolutionsTotal.WithLabelValues(source, o.String()).Inc()
	if r.Trace != nil {
		r.Trace(source, o)
	}
}
