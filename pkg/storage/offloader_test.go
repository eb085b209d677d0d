package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/faults"
)

type fakeBackend struct {
	name       string
	configured bool
	hash       string
	uploadErr  error
	stored     map[string][]byte
	uploads    int
}

func (f *fakeBackend) Name() string     { return f.name }
func (f *fakeBackend) Configured() bool { return f.configured }

func (f *fakeBackend) Upload(_ context.Context, filename string, data []byte) (ContentID, error) {
	f.uploads++
	if f.uploadErr != nil {
		return ContentID{}, f.uploadErr
	}
	if f.stored == nil {
		f.stored = map[string][]byte{}
	}
	f.stored[f.hash] = data
	id := ContentID{Backend: f.name, Hash: f.hash}
	if f.name == BackendIPFS {
		id.Filename = filename
	}
	return id, nil
}

func (f *fakeBackend) Fetch(_ context.Context, id ContentID) ([]byte, error) {
	data, ok := f.stored[id.Hash]
	if !ok {
		return nil, faults.Newf(faults.KindNotFound, "fake.fetch", "", "missing")
	}
	return data, nil
}

func TestOffloaderPrefersPrimary(t *testing.T) {
	primary := &fakeBackend{name: BackendLighthouse, configured: true, hash: testCID(t, "p")}
	secondary := &fakeBackend{name: BackendIPFS, configured: true, hash: testCID(t, "s")}
	off := NewOffloader(primary, secondary, config.Timeouts{})

	id, err := off.Upload(context.Background(), map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id.Backend != BackendLighthouse || secondary.uploads != 0 {
		t.Fatalf("id = %+v, secondary uploads = %d", id, secondary.uploads)
	}
	if got := string(primary.stored[primary.hash]); got != `{"a":1,"b":2}` {
		t.Fatalf("stored %s", got)
	}

	raw, err := off.Fetch(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(raw) != `{"a":1,"b":2}` {
		t.Fatalf("Fetch = %s", raw)
	}
}

func TestOffloaderFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		primary *fakeBackend
	}{
		{"primary fails", &fakeBackend{name: BackendLighthouse, configured: true, uploadErr: errors.New("502")}},
		{"primary not configured", &fakeBackend{name: BackendLighthouse}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secondary := &fakeBackend{name: BackendIPFS, configured: true, hash: testCID(t, "s")}
			off := NewOffloader(tt.primary, secondary, config.Timeouts{})

			id, err := off.Upload(context.Background(), map[string]string{"k": "v"})
			if err != nil {
				t.Fatalf("Upload: %v", err)
			}
			if id.Backend != BackendIPFS || !strings.HasPrefix(id.Filename, "payload-") {
				t.Fatalf("unexpected id %+v", id)
			}
			if _, err := ParseContentID(id.String()); err != nil {
				t.Fatalf("id does not round trip: %v", err)
			}
			raw, err := off.Fetch(context.Background(), id.String())
			if err != nil || string(raw) != `{"k":"v"}` {
				t.Fatalf("Fetch = %s, %v", raw, err)
			}
		})
	}
}

func TestOffloaderAllFail(t *testing.T) {
	off := NewOffloader(
		&fakeBackend{name: BackendLighthouse},
		&fakeBackend{name: BackendIPFS, configured: true, uploadErr: errors.New("connection refused")},
		config.Timeouts{},
	)

	_, err := off.Upload(context.Background(), map[string]int{"n": 1})
	if !errors.Is(err, faults.OffloadFailed) {
		t.Fatalf("expected OFFLOAD_FAILED, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"lighthouse: not configured", "connection refused", "set LIGHTHOUSE_API_KEY", "ipfs daemon"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %q", msg, want)
		}
	}
}

func TestOffloaderRejectsBadPayload(t *testing.T) {
	off := NewOffloader(nil, nil, config.Timeouts{})
	if _, err := off.Upload(context.Background(), nil); !errors.Is(err, faults.InvalidInput) {
		t.Fatalf("nil payload: %v", err)
	}
	if _, err := off.Upload(context.Background(), map[string]any{"f": func() {}}); !errors.Is(err, faults.InvalidInput) {
		t.Fatalf("func payload: %v", err)
	}
}

func TestOffloaderFetchWithoutSecondary(t *testing.T) {
	off := NewOffloader(&fakeBackend{name: BackendLighthouse}, nil, config.Timeouts{})
	_, err := off.Fetch(context.Background(), "ipfs://"+testCID(t, "x"))
	if !errors.Is(err, faults.Config) {
		t.Fatalf("expected CONFIG, got %v", err)
	}
}

func TestOffloaderFetchNotJSON(t *testing.T) {
	h := testCID(t, "x")
	primary := &fakeBackend{name: BackendLighthouse, stored: map[string][]byte{h: []byte("not json")}}
	off := NewOffloader(primary, nil, config.Timeouts{})
	_, err := off.Fetch(context.Background(), h)
	if !errors.Is(err, faults.InvalidFormat) {
		t.Fatalf("expected INVALID_FORMAT, got %v", err)
	}
}

func TestCanonicalJSONAndFilename(t *testing.T) {
	a, err := CanonicalJSON(map[string]any{"z": []int{1, 2}, "a": map[string]any{"y": 1.5, "b": nil}})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != `{"a":{"b":null,"y":1.5},"z":[1,2]}` {
		t.Fatalf("CanonicalJSON = %s", a)
	}
	big, err := CanonicalJSON(map[string]any{"n": uint64(18446744073709551615)})
	if err != nil || string(big) != `{"n":18446744073709551615}` {
		t.Fatalf("large numbers must survive: %s, %v", big, err)
	}

	name := PayloadFilename(a)
	if len(name) != len("payload-")+12+len(".json") || name != PayloadFilename(a) {
		t.Fatalf("PayloadFilename = %q", name)
	}
}
