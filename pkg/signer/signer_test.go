package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shamank/snet-custody-go/internal/testutil/evmstub"
	"github.com/shamank/snet-custody-go/pkg/blockchain"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/faults"
)

type stubStore struct {
	secrets map[string]*credential.Secret
	err     error
	calls   int
}

func (s *stubStore) Get(_ context.Context, tenantID string) (*credential.Secret, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.secrets[tenantID], nil
}

type keyPair struct {
	addr string
	hex  string
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return keyPair{addr: crypto.PubkeyToAddress(k.PublicKey).Hex(), hex: hex.EncodeToString(crypto.FromECDSA(k))}
}

type dialRecorder struct {
	stubs    []*evmstub.Client
	networks []config.Network
	err      error
	// serves, when set, is the only network the node accepts.
	serves *config.Network
}

func (d *dialRecorder) dial(_ context.Context, n config.Network) (*blockchain.EVMClient, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.serves != nil && n.ChainID != d.serves.ChainID {
		return nil, faults.Newf(faults.KindConfig, "blockchain.dial", "point RPC_ADDR at a node for the credential's network",
			"node serves chain %s but network %q expects %s", d.serves.ChainID, n.Name, n.ChainID)
	}
	stub := evmstub.New()
	d.stubs = append(d.stubs, stub)
	d.networks = append(d.networks, n)
	return blockchain.NewEVMClient(stub, big.NewInt(1337), config.Timeouts{}), nil
}

type traceEntry struct {
	source  string
	outcome Outcome
}

func newResolver(store SecretGetter, op config.Operator, d *dialRecorder) (*Resolver, *[]traceEntry) {
	r := NewResolver(d.dial,
		TenantSource{Store: store},
		OperatorSource{Operator: op, Network: config.Sepolia},
	)
	var trace []traceEntry
	r.Trace = func(source string, o Outcome) { trace = append(trace, traceEntry{source, o}) }
	return r, &trace
}

func TestResolveTenantCredential(t *testing.T) {
	tenant := newKeyPair(t)
	operator := newKeyPair(t)
	store := &stubStore{secrets: map[string]*credential.Secret{
		"tenant-1": {AccountID: tenant.addr, PrivateKey: tenant.hex, Network: "preview"},
	}}
	d := &dialRecorder{}
	r, trace := newResolver(store, config.Operator{AccountID: operator.addr, PrivateKey: operator.hex}, d)

	sc, err := r.Resolve(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer sc.Close()

	if sc.Source != SourceTenant || sc.AccountID.Hex() != tenant.addr {
		t.Fatalf("resolved %s", sc)
	}
	if sc.Network != config.Holesky || d.networks[0] != config.Holesky {
		t.Fatalf("network = %#v", sc.Network)
	}
	if len(*trace) != 1 || (*trace)[0] != (traceEntry{SourceTenant, OutcomeResolved}) {
		t.Fatalf("trace = %+v", *trace)
	}
}

func TestResolveFallsBackToOperator(t *testing.T) {
	operator := newKeyPair(t)
	other := newKeyPair(t)

	tests := []struct {
		name       string
		store      *stubStore
		wantTenant Outcome
	}{
		{name: "tenant missing", store: &stubStore{}, wantTenant: OutcomeNotConfigured},
		{name: "decrypt failure", store: &stubStore{err: faults.Newf(faults.KindAuthFailed, "vault.decrypt", "", "tag mismatch")}, wantTenant: OutcomeFailed},
		{name: "store error", store: &stubStore{err: errors.New("connection reset")}, wantTenant: OutcomeFailed},
		{name: "key does not match account", store: &stubStore{secrets: map[string]*credential.Secret{
			"tenant-1": {AccountID: other.addr, PrivateKey: operator.hex, Network: "test"},
		}}, wantTenant: OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &dialRecorder{}
			r, trace := newResolver(tt.store, config.Operator{AccountID: operator.addr, PrivateKey: operator.hex}, d)

			sc, err := r.Resolve(context.Background(), "tenant-1")
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			defer sc.Close()

			if sc.Source != SourceOperator || sc.AccountID.Hex() != operator.addr {
				t.Fatalf("resolved %s", sc)
			}
			want := []traceEntry{{SourceTenant, tt.wantTenant}, {SourceOperator, OutcomeResolved}}
			if len(*trace) != 2 || (*trace)[0] != want[0] || (*trace)[1] != want[1] {
				t.Fatalf("trace = %+v, want %+v", *trace, want)
			}
			if len(d.stubs) != 1 {
				t.Fatalf("dialled %d clients", len(d.stubs))
			}
		})
	}
}

func TestResolveNoCredentials(t *testing.T) {
	d := &dialRecorder{}
	r, _ := newResolver(&stubStore{}, config.Operator{}, d)

	_, err := r.Resolve(context.Background(), "tenant-1")
	if !errors.Is(err, faults.NoCredentials) {
		t.Fatalf("expected NO_CREDENTIALS, got %v", err)
	}
	if !strings.Contains(faults.HintOf(err), "add ledger credentials") {
		t.Fatalf("hint = %q", faults.HintOf(err))
	}

	_, err = r.Resolve(context.Background(), "")
	if !errors.Is(err, faults.NoCredentials) {
		t.Fatalf("expected NO_CREDENTIALS, got %v", err)
	}
	if !strings.Contains(faults.HintOf(err), "OPERATOR_ACCOUNT_ID") {
		t.Fatalf("hint = %q", faults.HintOf(err))
	}
	if len(d.stubs) != 0 {
		t.Fatal("dialled without a credential")
	}
}

func TestResolveNoCredentialsKeepsFailures(t *testing.T) {
	r, _ := newResolver(&stubStore{err: faults.Newf(faults.KindAuthFailed, "vault.decrypt", "", "tag mismatch")}, config.Operator{}, &dialRecorder{})

	_, err := r.Resolve(context.Background(), "tenant-1")
	if faults.KindOf(err) != faults.KindNoCredentials {
		t.Fatalf("KindOf = %s", faults.KindOf(err))
	}
	if !strings.Contains(err.Error(), "tag mismatch") {
		t.Fatalf("underlying failure dropped: %v", err)
	}
}

func TestResolveDialFailureIsFatal(t *testing.T) {
	operator := newKeyPair(t)
	d := &dialRecorder{err: faults.Newf(faults.KindNetwork, "blockchain.dial", "check RPC_ADDR", "refused")}
	r, trace := newResolver(&stubStore{}, config.Operator{AccountID: operator.addr, PrivateKey: operator.hex}, d)

	_, err := r.Resolve(context.Background(), "tenant-1")
	if !errors.Is(err, faults.Network) {
		t.Fatalf("expected NETWORK, got %v", err)
	}
	if errors.Is(err, faults.NoCredentials) {
		t.Fatal("dial failure must not be reported as missing credentials")
	}
	if len(*trace) != 2 {
		t.Fatalf("trace = %+v", *trace)
	}
}

func TestResolveTenantOnOtherNetworkFallsBack(t *testing.T) {
	tenant := newKeyPair(t)
	operator := newKeyPair(t)
	store := &stubStore{secrets: map[string]*credential.Secret{
		"tenant-1": {AccountID: tenant.addr, PrivateKey: tenant.hex, Network: "main"},
	}}
	d := &dialRecorder{serves: &config.Sepolia}
	r, trace := newResolver(store, config.Operator{AccountID: operator.addr, PrivateKey: operator.hex}, d)

	sc, err := r.Resolve(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer sc.Close()

	if sc.Source != SourceOperator || sc.AccountID.Hex() != operator.addr || sc.Network != config.Sepolia {
		t.Fatalf("resolved %s", sc)
	}
	want := []traceEntry{{SourceTenant, OutcomeFailed}, {SourceOperator, OutcomeResolved}}
	if len(*trace) != 2 || (*trace)[0] != want[0] || (*trace)[1] != want[1] {
		t.Fatalf("trace = %+v, want %+v", *trace, want)
	}
}

func TestResolveNetworkMismatchWithoutFallback(t *testing.T) {
	tenant := newKeyPair(t)
	store := &stubStore{secrets: map[string]*credential.Secret{
		"tenant-1": {AccountID: tenant.addr, PrivateKey: tenant.hex, Network: "main"},
	}}
	r, _ := newResolver(store, config.Operator{}, &dialRecorder{serves: &config.Sepolia})

	_, err := r.Resolve(context.Background(), "tenant-1")
	if faults.KindOf(err) != faults.KindConfig {
		t.Fatalf("KindOf = %s (%v)", faults.KindOf(err), err)
	}
	if !strings.Contains(faults.HintOf(err), "RPC_ADDR") {
		t.Fatalf("hint = %q", faults.HintOf(err))
	}
	if !strings.Contains(err.Error(), "node serves chain") {
		t.Fatalf("underlying mismatch dropped: %v", err)
	}
}

func TestResolveDecryptsEveryCall(t *testing.T) {
	tenant := newKeyPair(t)
	store := &stubStore{secrets: map[string]*credential.Secret{
		"tenant-1": {AccountID: tenant.addr, PrivateKey: tenant.hex, Network: "test"},
	}}
	d := &dialRecorder{}
	r, _ := newResolver(store, config.Operator{}, d)

	for i := 0; i < 3; i++ {
		sc, err := r.Resolve(context.Background(), "tenant-1")
		if err != nil {
			t.Fatal(err)
		}
		sc.Close()
	}
	if store.calls != 3 {
		t.Fatalf("store called %d times, want 3", store.calls)
	}
	if len(d.stubs) != 3 {
		t.Fatalf("dialled %d clients, want 3", len(d.stubs))
	}
	for _, s := range d.stubs {
		if !s.Closed {
			t.Fatal("client not closed")
		}
	}
}

func TestOperatorSourceMalformed(t *testing.T) {
	src := OperatorSource{Operator: config.Operator{AccountID: "0x01", PrivateKey: "nothex"}, Network: config.Sepolia}
	_, outcome, err := src.Lookup(context.Background(), "")
	if outcome != OutcomeFailed || err == nil {
		t.Fatalf("Lookup = %s, %v", outcome, err)
	}
	if strings.Contains(err.Error(), "nothex") {
		t.Fatal("error leaks key material")
	}
}

func TestContextExecuteAndString(t *testing.T) {
	operator := newKeyPair(t)
	d := &dialRecorder{}
	r, _ := newResolver(nil, config.Operator{AccountID: operator.addr, PrivateKey: operator.hex}, d)

	sc, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	if strings.Contains(sc.String(), operator.hex) || strings.Contains(sc.String(), operator.addr) {
		t.Fatalf("String leaks details: %s", sc)
	}

	res, err := sc.Execute(context.Background(), &blockchain.SubmitMessage{Topic: common.HexToAddress("0xaa"), Message: []byte("hello")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != blockchain.StatusSuccess || len(d.stubs[0].Sent) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	sig, err := sc.SignMessage([]byte("m"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := blockchain.RecoverSigner([]byte("m"), sig)
	if err != nil || got != sc.AccountID {
		t.Fatalf("signature recovered %s, %v", got.Hex(), err)
	}
}
