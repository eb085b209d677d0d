package blockchain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shamank/snet-custody-go/internal/testutil/evmstub"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/faults"
)

func TestDial_Unreachable(t *testing.T) {
	start := time.Now()
	_, err := Dial(context.Background(), "http://127.0.0.1:1", config.Sepolia, config.Timeouts{Dial: time.Second, ChainRead: time.Second})
	if err == nil {
		t.Fatal("expected error dialing")
	}
	if !errors.Is(err, faults.Network) {
		t.Fatalf("expected NETWORK error, got %v", err)
	}
	if time.Since(start) > 6*time.Second {
		t.Fatalf("Dial took too long")
	}
}

func TestDial_BadScheme(t *testing.T) {
	_, err := Dial(context.Background(), "ftp://example", config.Sepolia, config.Timeouts{})
	if !errors.Is(err, faults.Network) {
		t.Fatalf("expected NETWORK error, got %v", err)
	}
}

func TestEVMClientBalanceAndClose(t *testing.T) {
	stub := evmstub.New()
	stub.Balance = big.NewInt(42)
	evm := NewEVMClient(stub, big.NewInt(1337), config.Timeouts{})

	bal, err := evm.Balance(context.Background(), common.HexToAddress("0x01"))
	if err != nil || bal.Int64() != 42 {
		t.Fatalf("Balance = %v, %v", bal, err)
	}
	n, err := evm.GetCurrentBlockNumberCtx(context.Background())
	if err != nil || n.Int64() != 100 {
		t.Fatalf("block = %v, %v", n, err)
	}
	evm.Close()
	if !stub.Closed {
		t.Fatal("Close not propagated")
	}

	stub.ReadErr = errors.New("down")
	if _, err := evm.Balance(context.Background(), common.HexToAddress("0x01")); !errors.Is(err, faults.Network) {
		t.Fatalf("expected NETWORK, got %v", err)
	}
}
