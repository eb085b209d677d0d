package sdk

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-cid"
	"github.com/shamank/snet-custody-go/internal/testutil/evmstub"
	"github.com/shamank/snet-custody-go/pkg/blockchain"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/model"
	"github.com/shamank/snet-custody-go/pkg/payment"
	"github.com/shamank/snet-custody-go/pkg/storage"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const testTopic = "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"

type keyPair struct {
	addr common.Address
	hex  string
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return keyPair{addr: crypto.PubkeyToAddress(k.PublicKey), hex: hex.EncodeToString(crypto.FromECDSA(k))}
}

// memBackend keeps uploads in a map and names them after their filename.
type memBackend struct {
	name       string
	configured bool
	blobs      map[string][]byte
}

func newMemBackend(name string) *memBackend {
	return &memBackend{name: name, configured: true, blobs: map[string][]byte{}}
}

func (b *memBackend) Name() string     { return b.name }
func (b *memBackend) Configured() bool { return b.configured }

func (b *memBackend) Upload(_ context.Context, filename string, data []byte) (storage.ContentID, error) {
	sum, err := cid.Prefix{Version: 1, Codec: cid.Raw, MhType: 0x12, MhLength: -1}.Sum(data)
	if err != nil {
		return storage.ContentID{}, err
	}
	hash := sum.String()
	b.blobs[hash] = data
	return storage.ContentID{Backend: b.name, Hash: hash, Filename: filename}, nil
}

func (b *memBackend) Fetch(_ context.Context, id storage.ContentID) ([]byte, error) {
	data, ok := b.blobs[id.Hash]
	if !ok {
		return nil, faults.Newf(faults.KindNotFound, "mem.fetch", "", "no %s", id.Hash)
	}
	return data, nil
}

type fixture struct {
	core    *Core
	stub    *evmstub.Client
	primary *memBackend
	dialErr error
}

func (f *fixture) dial(context.Context, config.Network) (*blockchain.EVMClient, error) {
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return blockchain.NewEVMClient(f.stub, big.NewInt(1337), config.Timeouts{}), nil
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := &config.Config{RPCAddr: "http://127.0.0.1:8545"}
	if mutate != nil {
		mutate(cfg)
	}
	f := &fixture{stub: evmstub.New(), primary: newMemBackend(storage.BackendLighthouse)}
	off := storage.NewOffloader(f.primary, nil, config.Timeouts{})

	core, err := New(context.Background(), cfg,
		WithDialer(f.dial),
		WithRepository(credential.NewMemoryRepository()),
		WithLedger(payment.NewMemoryLedger()),
		WithOffloader(off))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(core.Close)
	f.core = core
	return f
}

func withOperator(op keyPair) func(*config.Config) {
	return func(c *config.Config) {
		c.Operator = config.Operator{AccountID: op.addr.Hex(), PrivateKey: op.hex}
	}
}

func sender(t *testing.T, tx *types.Transaction) common.Address {
	t.Helper()
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), tx)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	return from
}

func TestNewRequiresRPCAddr(t *testing.T) {
	_, err := New(context.Background(), &config.Config{})
	if !errors.Is(err, faults.Config) {
		t.Fatalf("expected CONFIG, got %v", err)
	}
}

func TestSubmitMessageWithOperator(t *testing.T) {
	op := newKeyPair(t)
	f := newFixture(t, withOperator(op))

	res, err := f.core.SubmitMessage(context.Background(), model.SubmitMessageRequest{TopicID: testTopic, Message: "hello"}, "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if res.Status != blockchain.StatusSuccess || res.TxID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.ContentID != "" {
		t.Fatalf("plain message must not be offloaded, got %q", res.ContentID)
	}
	tx := f.stub.LastSent()
	if string(tx.Data()) != "hello" {
		t.Fatalf("calldata = %q", tx.Data())
	}
	if got := sender(t, tx); got != op.addr {
		t.Fatalf("signed by %s, want operator %s", got.Hex(), op.addr.Hex())
	}
	if !f.stub.Closed {
		t.Fatal("client should be closed after the operation")
	}
}

func TestSubmitMessageOffloadsPayload(t *testing.T) {
	f := newFixture(t, withOperator(newKeyPair(t)))

	res, err := f.core.SubmitMessage(context.Background(), model.SubmitMessageRequest{
		TopicID: testTopic,
		Payload: json.RawMessage(`{"b":1,"a":[true]}`),
	}, "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if id, err := storage.ParseContentID(res.ContentID); err != nil || id.Backend != storage.BackendLighthouse || id.Hash != res.ContentID {
		t.Fatalf("content id = %q, want a bare primary hash (%+v, %v)", res.ContentID, id, err)
	}
	if got := string(f.stub.LastSent().Data()); got != res.ContentID {
		t.Fatalf("calldata %q, want the content id %q", got, res.ContentID)
	}

	raw, err := f.core.FetchPayload(context.Background(), res.ContentID)
	if err != nil {
		t.Fatalf("FetchPayload: %v", err)
	}
	if string(raw) != `{"a":[true],"b":1}` {
		t.Fatalf("fetched %s", raw)
	}
}

func TestSubmitMessageValidation(t *testing.T) {
	f := newFixture(t, withOperator(newKeyPair(t)))

	for _, req := range []model.SubmitMessageRequest{
		{TopicID: "not-an-address", Message: "x"},
		{TopicID: testTopic},
	} {
		if _, err := f.core.SubmitMessage(context.Background(), req, ""); !errors.Is(err, faults.InvalidInput) {
			t.Fatalf("%+v: expected INVALID_INPUT, got %v", req, err)
		}
	}
	if len(f.stub.Sent) != 0 {
		t.Fatal("nothing should be submitted")
	}
}

func TestNoCredentials(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.core.SubmitMessage(context.Background(), model.SubmitMessageRequest{TopicID: testTopic, Message: "x"}, "")
	if !errors.Is(err, faults.NoCredentials) {
		t.Fatalf("expected NO_CREDENTIALS, got %v", err)
	}
	if hint := faults.HintOf(err); !strings.Contains(hint, "OPERATOR_PRIVATE_KEY") {
		t.Fatalf("hint = %q", hint)
	}
}

func TestTenantCredentialLifecycle(t *testing.T) {
	op := newKeyPair(t)
	tenant := newKeyPair(t)
	f := newFixture(t, func(c *config.Config) {
		withOperator(op)(c)
		c.Vault.MasterKey = "correct horse battery staple"
	})
	ctx := context.Background()

	rec, err := f.core.UpsertCredential(ctx, "tenant-a", credential.Secret{AccountID: tenant.addr.Hex(), PrivateKey: tenant.hex}, "admin")
	if err != nil {
		t.Fatalf("UpsertCredential: %v", err)
	}
	if rec.CredentialData != "" || rec.Status != credential.StatusActive {
		t.Fatalf("unexpected record %+v", rec)
	}

	to := newKeyPair(t).addr.Hex()
	res, err := f.core.Transfer(ctx, model.TransferRequest{To: to, Amount: "0.5"}, "tenant-a")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if res.Status != blockchain.StatusSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	tx := f.stub.LastSent()
	if got := sender(t, tx); got != tenant.addr {
		t.Fatalf("signed by %s, want tenant %s", got.Hex(), tenant.addr.Hex())
	}
	want, _ := new(big.Int).SetString("500000000000000000", 10)
	if tx.Value().Cmp(want) != 0 {
		t.Fatalf("value = %s", tx.Value())
	}

	if err := f.core.DeactivateCredential(ctx, "tenant-a", "admin"); err != nil {
		t.Fatalf("DeactivateCredential: %v", err)
	}
	rec, err = f.core.CredentialRecord(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("CredentialRecord: %v", err)
	}
	if rec.Status != credential.StatusInactive {
		t.Fatalf("status = %s", rec.Status)
	}

	if _, err := f.core.SubmitMessage(ctx, model.SubmitMessageRequest{TopicID: testTopic, Message: "x"}, "tenant-a"); err != nil {
		t.Fatalf("SubmitMessage after deactivation: %v", err)
	}
	if got := sender(t, f.stub.LastSent()); got != op.addr {
		t.Fatalf("expected operator fallback, signed by %s", got.Hex())
	}
}

func TestCredentialsRequireVault(t *testing.T) {
	tenant := newKeyPair(t)
	f := newFixture(t, nil)

	_, err := f.core.UpsertCredential(context.Background(), "tenant-a", credential.Secret{AccountID: tenant.addr.Hex(), PrivateKey: tenant.hex}, "admin")
	if !errors.Is(err, faults.Config) {
		t.Fatalf("expected CONFIG, got %v", err)
	}
	if !strings.Contains(faults.HintOf(err), "VAULT_MASTER_KEY") {
		t.Fatalf("hint = %q", faults.HintOf(err))
	}
}

func TestCreateAccountKeyOnlyInDevMode(t *testing.T) {
	for _, dev := range []bool{false, true} {
		op := newKeyPair(t)
		f := newFixture(t, func(c *config.Config) {
			withOperator(op)(c)
			c.DevMode = dev
		})

		res, err := f.core.CreateAccount(context.Background(), model.CreateAccountRequest{InitialBalance: "1"}, "")
		if err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
		if !common.IsHexAddress(res.AccountID) {
			t.Fatalf("account id = %q", res.AccountID)
		}
		if got := f.stub.LastSent().To(); got == nil || got.Hex() != res.AccountID {
			t.Fatalf("funding went to %v, want %s", got, res.AccountID)
		}
		if (res.PrivateKey != "") != dev {
			t.Fatalf("dev=%v: private key returned = %v", dev, res.PrivateKey != "")
		}
		if dev {
			key, err := crypto.HexToECDSA(res.PrivateKey)
			if err != nil {
				t.Fatalf("returned key: %v", err)
			}
			if crypto.PubkeyToAddress(key.PublicKey).Hex() != res.AccountID {
				t.Fatal("returned key does not derive the account id")
			}
		}
	}
}

func TestInvoke(t *testing.T) {
	f := newFixture(t, withOperator(newKeyPair(t)))
	ctx := context.Background()

	out, err := f.core.Invoke(ctx, string(model.KindSubmitMessage), []byte(`{"topic_id":"`+testTopic+`","message":"hi"}`), "")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res, ok := out.(MessageResult); !ok || res.Status != blockchain.StatusSuccess {
		t.Fatalf("unexpected result %#v", out)
	}

	out, err = f.core.Invoke(ctx, string(model.KindUploadPayload), []byte(`{"payload":{"x":1}}`), "")
	if err != nil {
		t.Fatalf("Invoke upload: %v", err)
	}
	id := out.(map[string]string)["content_id"]
	out, err = f.core.Invoke(ctx, string(model.KindFetchPayload), []byte(`{"content_id":"`+id+`"}`), "")
	if err != nil {
		t.Fatalf("Invoke fetch: %v", err)
	}
	if string(out.(json.RawMessage)) != `{"x":1}` {
		t.Fatalf("fetched %s", out)
	}

	if _, err := f.core.Invoke(ctx, "mint_nft", []byte(`{}`), ""); !errors.Is(err, faults.InvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if _, err := f.core.Invoke(ctx, string(model.KindTransfer), []byte(`{"to":"nope"}`), ""); !errors.Is(err, faults.InvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestPaymentRequirementFromConfig(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Payment = config.Payment{PayTo: "0x00000000000000000000000000000000000000bb", Asset: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", MaxAmountRequired: "1000"}
	})

	req, ok := f.core.Requirement("")
	if !ok {
		t.Fatal("expected the default requirement to be registered")
	}
	if req.Network != "test" || req.Resource != payment.DefaultResource {
		t.Fatalf("unexpected requirement %+v", req)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	p, err := payment.Sign(payment.Payload{Network: "test", Amount: "1000", Token: req.Asset}, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	d, err := f.core.VerifyPayment(context.Background(), p, req)
	if err != nil || !d.Accept {
		t.Fatalf("VerifyPayment = %+v, %v", d, err)
	}
	if _, err := f.core.SettlePayment(context.Background(), p, req); !errors.Is(err, faults.Config) {
		t.Fatalf("settling without a facilitator should be CONFIG, got %v", err)
	}
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t, nil)

	r := f.core.Heartbeat(context.Background())
	if r.Status != StatusUp {
		t.Fatalf("status = %s: %+v", r.Status, r.Components)
	}
	got := map[string]string{}
	for _, h := range r.Components {
		got[h.Name] = h.Status
	}
	want := map[string]string{
		"ledger":             StatusUp,
		"storage.lighthouse": StatusUp,
		"facilitator":        StatusDisabled,
		"credentials":        StatusDisabled,
	}
	for name, status := range want {
		if got[name] != status {
			t.Fatalf("%s = %q, want %q (all: %v)", name, got[name], status, got)
		}
	}
	if r.ServingStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatal("expected SERVING")
	}

	f.dialErr = faults.Newf(faults.KindNetwork, "dial", "check RPC_ADDR", "refused")
	r = f.core.Heartbeat(context.Background())
	if r.Status != StatusDown || r.ServingStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected down, got %s", r.Status)
	}
	if r.Components[0].Hint != "check RPC_ADDR" {
		t.Fatalf("hint = %q", r.Components[0].Hint)
	}
}
