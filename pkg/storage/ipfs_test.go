package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shamank/snet-custody-go/pkg/faults"
)

// kuboNode is a minimal stand-in for the Kubo RPC endpoints we call.
type kuboNode struct {
	t     *testing.T
	mu    sync.Mutex
	blobs map[string][]byte
}

func newKuboNode(t *testing.T) *httptest.Server {
	n := &kuboNode{t: t, blobs: map[string][]byte{}}
	return httptest.NewServer(n)
}

func (n *kuboNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v0/version":
		_ = json.NewEncoder(w).Encode(map[string]string{"Version": "0.36.0"})
	case "/api/v0/add":
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var data []byte
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			if strings.Contains(part.Header.Get("Content-Type"), "directory") {
				continue
			}
			data, _ = io.ReadAll(part)
		}
		hash := testCID(n.t, string(data))
		n.mu.Lock()
		n.blobs[hash] = data
		n.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"Name": hash, "Hash": hash, "Size": "1"})
	case "/api/v0/cat":
		n.mu.Lock()
		data, ok := n.blobs[r.URL.Query().Get("arg")]
		n.mu.Unlock()
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"Message": "block was not found locally", "Code": 0, "Type": "error"})
			return
		}
		_, _ = w.Write(data)
	default:
		http.NotFound(w, r)
	}
}

func TestIPFSBackendRoundTrip(t *testing.T) {
	srv := newKuboNode(t)
	defer srv.Close()

	b, err := NewIPFSBackend(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewIPFSBackend: %v", err)
	}
	if !b.Configured() {
		t.Fatal("backend not configured")
	}

	id, err := b.Upload(context.Background(), "payload-x.json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id.Backend != BackendIPFS || id.Filename != "payload-x.json" {
		t.Fatalf("unexpected id %+v", id)
	}

	data, err := b.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("Fetch = %q", data)
	}
}

func TestIPFSBackendFetchMissing(t *testing.T) {
	srv := newKuboNode(t)
	defer srv.Close()

	b, err := NewIPFSBackend(srv.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Fetch(context.Background(), ContentID{Backend: BackendIPFS, Hash: testCID(t, "absent")})
	if !errors.Is(err, faults.Network) {
		t.Fatalf("expected NETWORK error, got %v", err)
	}
}

func TestIPFSBackendUnreachable(t *testing.T) {
	srv := newKuboNode(t)
	url := srv.URL
	srv.Close()

	b, err := NewIPFSBackend(url, 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Upload(context.Background(), "f.json", []byte("{}"))
	if !errors.Is(err, faults.Network) {
		t.Fatalf("expected NETWORK error, got %v", err)
	}
	if !strings.Contains(faults.HintOf(err), "ipfs daemon") {
		t.Fatalf("hint = %q", faults.HintOf(err))
	}
}

func TestIPFSBackendVersion(t *testing.T) {
	srv := newKuboNode(t)
	defer srv.Close()

	b, err := NewIPFSBackend(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewIPFSBackend: %v", err)
	}
	v, err := b.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "0.36.0" {
		t.Fatalf("Version = %q", v)
	}

	srv.Close()
	if _, err := b.Version(context.Background()); !errors.Is(err, faults.Network) {
		t.Fatalf("expected NETWORK once the node is gone, got %v", err)
	}
}
