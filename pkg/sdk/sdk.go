// Package sdk is the entry point of the custody core. Core wires the vault,
// credential store, signer resolver, payload offloader, transaction pipeline
// and payment gate from one Config.
package sdk

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shamank/snet-custody-go/pkg/blockchain"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/credential/postgres"
	"github.com/shamank/snet-custody-go/pkg/credential/sqlite"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/model"
	"github.com/shamank/snet-custody-go/pkg/payment"
	"github.com/shamank/snet-custody-go/pkg/signer"
	"github.com/shamank/snet-custody-go/pkg/storage"
	"github.com/shamank/snet-custody-go/pkg/vault"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// init configures a default global zap logger. Applications may replace it
// with zap.ReplaceGlobals(...) or call SetupLogger.
func init() {
	SetupLogger(false)
}

// SetupLogger installs the console logger, at debug level when debug is set.
func SetupLogger(debug bool) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	c := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := c.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

// Option overrides a dependency New would otherwise build from Config.
type Option func(*options)

type options struct {
	dialer     blockchain.Dialer
	repository credential.Repository
	ledger     payment.SettlementLedger
	offloader  *storage.Offloader
}

// WithDialer replaces the RPC dialer.
func WithDialer(d blockchain.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithRepository replaces the credential repository.
func WithRepository(r credential.Repository) Option { return func(o *options) { o.repository = r } }

// WithLedger replaces the settlement ledger.
func WithLedger(l payment.SettlementLedger) Option { return func(o *options) { o.ledger = l } }

// WithOffloader replaces the payload offloader.
func WithOffloader(off *storage.Offloader) Option { return func(o *options) { o.offloader = off } }

// Core is the concrete custody implementation. It holds no per-tenant state:
// every operation resolves its signer afresh and releases it when done.
type Core struct {
	cfg *config.Config

	dialer    blockchain.Dialer
	cipher    *vault.Cipher
	cipherErr error
	store     *credential.Store
	resolver  *signer.Resolver
	offloader *storage.Offloader
	gate      *payment.Gate

	closers []func()
}

// New validates cfg and builds a Core. Persistence is chosen from cfg:
// Postgres when DATABASE_URL is set, else SQLite when SQLITE_PATH is set,
// else an in-memory repository. The settlement ledger is Redis when
// REDIS_URL is set and in-memory otherwise.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, faults.New(faults.KindConfig, "sdk.new", "", err)
	}
	cfg.Timeouts = cfg.Timeouts.WithDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Core{cfg: cfg}

	c.cipher, c.cipherErr = vault.New(cfg.Vault)
	if c.cipherErr != nil {
		zap.L().Warn("credential vault disabled, only the operator account can sign", zap.Error(c.cipherErr))
	} else {
		zap.L().Debug("credential vault ready", zap.String("key_fingerprint", c.cipher.Fingerprint()))
	}

	repo := o.repository
	if repo == nil && c.cipherErr == nil {
		var err error
		if repo, err = c.openRepository(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	if repo != nil && c.cipherErr == nil {
		c.store = credential.NewStore(repo, c.cipher)
	}

	ledger := o.ledger
	if ledger == nil {
		if cfg.Redis.URL != "" {
			rl, err := payment.NewRedisLedger(ctx, cfg.Redis)
			if err != nil {
				c.Close()
				return nil, err
			}
			c.closers = append(c.closers, func() { _ = rl.Close() })
			ledger = rl
		} else {
			ledger = payment.NewMemoryLedger()
		}
	}
	requirements := payment.NewRequirements()
	if req, ok := payment.DefaultRequirement(cfg.Payment); ok {
		requirements.Set(payment.DefaultResource, req)
	}
	c.gate = payment.NewGate(
		payment.NewFacilitator(cfg.Payment.FacilitatorURL, cfg.Timeouts.Facilitator),
		ledger, requirements, cfg.Timeouts.Facilitator)

	c.offloader = o.offloader
	if c.offloader == nil {
		c.offloader = storage.New(cfg.Storage, cfg.Timeouts)
	}

	c.dialer = o.dialer
	if c.dialer == nil {
		c.dialer = blockchain.NewDialer(cfg.RPCAddr, cfg.Timeouts)
	}
	var sources []signer.CredentialSource
	if c.store != nil {
		sources = append(sources, signer.TenantSource{Store: c.store})
	}
	sources = append(sources, signer.OperatorSource{Operator: cfg.Operator, Network: cfg.Network})
	c.resolver = signer.NewResolver(c.dialer, sources...)

	zap.L().Info("custody core ready",
		zap.String("network", cfg.Network.Name),
		zap.Bool("tenant_credentials", c.store != nil),
		zap.Bool("operator_configured", cfg.Operator.Configured()),
		zap.Bool("dev_mode", cfg.DevMode))
	return c, nil
}

func (c *Core) openRepository(ctx context.Context) (credential.Repository, error) {
	switch {
	case c.cfg.Database.PostgresURL != "":
		repo, err := postgres.Connect(ctx, c.cfg.Database.PostgresURL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, repo.Close)
		return repo, nil
	case c.cfg.Database.SQLitePath != "":
		repo, err := sqlite.Open(c.cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = repo.Close() })
		return repo, nil
	}
	zap.L().Warn("no DATABASE_URL or SQLITE_PATH, credentials are kept in memory")
	return credential.NewMemoryRepository(), nil
}

// Config returns the validated configuration.
func (c *Core) Config() *config.Config { return c.cfg }

// Gate returns the payment gate for mounting its transports.
func (c *Core) Gate() *payment.Gate { return c.gate }

// Close releases persistence and cache connections.
func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// ResolveSigner returns the signer for tenantID. The caller must Close it.
func (c *Core) ResolveSigner(ctx context.Context, tenantID string) (*signer.Context, error) {
	return c.resolver.Resolve(ctx, tenantID)
}

// UploadPayload offloads payload to content-addressed storage.
func (c *Core) UploadPayload(ctx context.Context, payload any) (storage.ContentID, error) {
	return c.offloader.Upload(ctx, payload)
}

// FetchPayload reads back a payload uploaded with UploadPayload.
func (c *Core) FetchPayload(ctx context.Context, id string) (json.RawMessage, error) {
	return c.offloader.Fetch(ctx, id)
}

// MessageResult is returned by SubmitMessage.
type MessageResult struct {
	Status         blockchain.Status `json:"status,omitempty"`
	TxID           string            `json:"tx_id,omitempty"`
	ContentID      string            `json:"content_id,omitempty"`
	TopicID        string            `json:"topic_id,omitempty"`
	SequenceNumber uint64            `json:"sequence_number"`
}

// SubmitMessage posts a message to a topic. A payload is offloaded first and
// its content id becomes the message.
func (c *Core) SubmitMessage(ctx context.Context, req model.SubmitMessageRequest, tenantID string) (MessageResult, error) {
	topic, err := blockchain.ParseAccountID(req.TopicID)
	if err != nil {
		return MessageResult{}, faults.New(faults.KindInvalidInput, "sdk.submit_message", "", err)
	}
	if len(req.Payload) == 0 && req.Message == "" {
		return MessageResult{}, faults.Newf(faults.KindInvalidInput, "sdk.submit_message", "", "message or payload is required")
	}

	sc, err := c.ResolveSigner(ctx, tenantID)
	if err != nil {
		return MessageResult{}, err
	}
	defer sc.Close()

	var out MessageResult
	message := req.Message
	if len(req.Payload) > 0 {
		id, err := c.UploadPayload(ctx, req.Payload)
		if err != nil {
			return MessageResult{}, err
		}
		out.ContentID = id.String()
		message = out.ContentID
	}

	res, err := sc.Execute(ctx, &blockchain.SubmitMessage{Topic: topic, Message: []byte(message)})
	out.Status, out.TxID, out.TopicID, out.SequenceNumber = res.Status, res.TxID, res.TopicID, res.SequenceNumber
	return out, err
}

// TransferResult is returned by Transfer.
type TransferResult struct {
	Status blockchain.Status `json:"status,omitempty"`
	TxID   string            `json:"tx_id,omitempty"`
}

// Transfer moves req.Amount coins from the tenant's account to req.To.
func (c *Core) Transfer(ctx context.Context, req model.TransferRequest, tenantID string) (TransferResult, error) {
	to, err := blockchain.ParseAccountID(req.To)
	if err != nil {
		return TransferResult{}, faults.New(faults.KindInvalidInput, "sdk.transfer", "", err)
	}
	amount, err := blockchain.ParseAmount(req.Amount)
	if err != nil {
		return TransferResult{}, faults.New(faults.KindInvalidInput, "sdk.transfer", "", err)
	}

	sc, err := c.ResolveSigner(ctx, tenantID)
	if err != nil {
		return TransferResult{}, err
	}
	defer sc.Close()

	res, err := sc.Execute(ctx, blockchain.NewTransfer(sc.AccountID, to, amount))
	return TransferResult{Status: res.Status, TxID: res.TxID}, err
}

// AccountResult is returned by CreateAccount. PrivateKey is only filled in
// dev mode.
type AccountResult struct {
	Status     blockchain.Status `json:"status,omitempty"`
	TxID       string            `json:"tx_id,omitempty"`
	AccountID  string            `json:"account_id"`
	EVMAddress string            `json:"evm_address"`
	PrivateKey string            `json:"private_key,omitempty"`
}

// CreateAccount generates a new account funded by the tenant's signer.
func (c *Core) CreateAccount(ctx context.Context, req model.CreateAccountRequest, tenantID string) (AccountResult, error) {
	op := &blockchain.CreateAccount{}
	if req.InitialBalance != "" {
		amount, err := blockchain.ParseAmount(req.InitialBalance)
		if err != nil {
			return AccountResult{}, faults.New(faults.KindInvalidInput, "sdk.create_account", "", err)
		}
		op.InitialBalance = amount
	}

	sc, err := c.ResolveSigner(ctx, tenantID)
	if err != nil {
		return AccountResult{}, err
	}
	defer sc.Close()

	res, err := sc.Execute(ctx, op)
	out := AccountResult{Status: res.Status, TxID: res.TxID, AccountID: res.AccountID}
	if err != nil || res.Status != blockchain.StatusSuccess {
		return out, err
	}

	out.EVMAddress = strings.ToLower(res.AccountID)
	if c.cfg.DevMode {
		out.PrivateKey = hex.EncodeToString(crypto.FromECDSA(op.Key()))
		zap.L().Warn("returning generated private key (dev mode)", zap.String("account", out.AccountID))
	}
	return out, nil
}

// SubmitSignedBytes submits a transaction signed elsewhere through the
// tenant's ledger connection.
func (c *Core) SubmitSignedBytes(ctx context.Context, req model.SignedBytesRequest, tenantID string) (blockchain.Result, error) {
	sc, err := c.ResolveSigner(ctx, tenantID)
	if err != nil {
		return blockchain.Result{}, err
	}
	defer sc.Close()
	return sc.Execute(ctx, &blockchain.SignedBytes{Envelope: req.Envelope})
}

// Requirement returns the payment requirement for resource ("" is the default).
func (c *Core) Requirement(resource string) (payment.Requirement, bool) {
	return c.gate.Requirements().Lookup(resource)
}

// VerifyPayment checks p against req without settling it.
func (c *Core) VerifyPayment(ctx context.Context, p payment.Payload, req payment.Requirement) (payment.Decision, error) {
	return c.gate.Verify(ctx, p, req)
}

// SettlePayment verifies and settles p.
func (c *Core) SettlePayment(ctx context.Context, p payment.Payload, req payment.Requirement) (payment.Settlement, error) {
	return c.gate.Settle(ctx, p, req)
}

func (c *Core) credentialStore() (*credential.Store, error) {
	if c.store == nil {
		if c.cipherErr != nil {
			return nil, c.cipherErr
		}
		return nil, faults.Newf(faults.KindConfig, "sdk.credentials", "set DATABASE_URL or SQLITE_PATH", "no credential repository")
	}
	return c.store, nil
}

// UpsertCredential stores (or replaces) the tenant's ledger credential.
func (c *Core) UpsertCredential(ctx context.Context, tenantID string, secret credential.Secret, actor string) (credential.Record, error) {
	store, err := c.credentialStore()
	if err != nil {
		return credential.Record{}, err
	}
	if secret.Network == "" {
		secret.Network = c.cfg.Network.Name
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Database)
	defer cancel()
	return store.Upsert(ctx, tenantID, credential.ProviderLedgerAccount, secret, actor)
}

// CredentialRecord returns the tenant's credential metadata without the secret.
func (c *Core) CredentialRecord(ctx context.Context, tenantID string) (credential.Record, error) {
	store, err := c.credentialStore()
	if err != nil {
		return credential.Record{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Database)
	defer cancel()
	return store.Record(ctx, tenantID, credential.ProviderLedgerAccount)
}

// DeactivateCredential disables the tenant's credential; later operations
// fall back to the operator account.
func (c *Core) DeactivateCredential(ctx context.Context, tenantID, actor string) error {
	store, err := c.credentialStore()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Database)
	defer cancel()
	return store.Deactivate(ctx, tenantID, credential.ProviderLedgerAccount, actor)
}

// Invoke decodes a tool call of the given kind and runs it.
func (c *Core) Invoke(ctx context.Context, kind string, raw []byte, tenantID string) (any, error) {
	req, err := model.Decode(kind, raw)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("invoke", zap.String("kind", kind), zap.String("tenant_id", tenantID))

	switch r := req.(type) {
	case *model.SubmitMessageRequest:
		return c.SubmitMessage(ctx, *r, tenantID)
	case *model.TransferRequest:
		return c.Transfer(ctx, *r, tenantID)
	case *model.CreateAccountRequest:
		return c.CreateAccount(ctx, *r, tenantID)
	case *model.SignedBytesRequest:
		return c.SubmitSignedBytes(ctx, *r, tenantID)
	case *model.UploadPayloadRequest:
		id, err := c.UploadPayload(ctx, r.Payload)
		if err != nil {
			return nil, err
		}
		return map[string]string{"content_id": id.String()}, nil
	case *model.FetchPayloadRequest:
		return c.FetchPayload(ctx, r.ContentID)
	}
	return nil, faults.Newf(faults.KindInvalidInput, "sdk.invoke", "", "unsupported operation %q", kind)
}
