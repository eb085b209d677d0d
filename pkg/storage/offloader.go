package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/metrics"
	"go.uber.org/zap"
)

// Offloader stores payloads on the primary backend and falls back to the
// secondary one. It holds no mutable state and is safe for concurrent use.
type Offloader struct {
	primary   Backend
	secondary Backend
	timeouts  config.Timeouts
}

// NewOffloader returns an offloader over the given backends. Either may be nil.
func NewOffloader(primary, secondary Backend, timeouts config.Timeouts) *Offloader {
	return &Offloader{primary: primary, secondary: secondary, timeouts: timeouts.WithDefaults()}
}

// New builds the Lighthouse and IPFS backends from cfg. An IPFS client that
// cannot be built is logged and left unconfigured.
func New(cfg config.Storage, timeouts config.Timeouts) *Offloader {
	timeouts = timeouts.WithDefaults()
	primary := NewLighthouseBackend(cfg, timeouts.StorageUpload)

	var secondary Backend
	ipfs, err := NewIPFSBackend(cfg.IpfsURL, timeouts.StorageUpload)
	if err != nil {
		zap.L().Error("ipfs backend unavailable", zap.String("url", cfg.IpfsURL), zap.Error(err))
	} else {
		secondary = ipfs
	}
	return NewOffloader(primary, secondary, timeouts)
}

// Backends returns the configured backends, primary first.
func (o *Offloader) Backends() []Backend {
	var out []Backend
	for _, b := range []Backend{o.primary, o.secondary} {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// CanonicalJSON encodes payload with object keys sorted and no insignificant
// whitespace, so equal payloads always produce equal bytes.
func CanonicalJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// PayloadFilename names an upload after the first 12 hex chars of its digest.
func PayloadFilename(data []byte) string {
	sum := sha256.Sum256(data)
	return "payload-" + hex.EncodeToString(sum[:])[:12] + ".json"
}

// Upload serializes payload and stores it, returning exactly one content id.
func (o *Offloader) Upload(ctx context.Context, payload any) (ContentID, error) {
	if payload == nil {
		return ContentID{}, faults.Newf(faults.KindInvalidInput, "storage.upload", "", "payload is empty")
	}
	data, err := CanonicalJSON(payload)
	if err != nil {
		return ContentID{}, faults.New(faults.KindInvalidInput, "storage.upload", "", fmt.Errorf("payload is not JSON-serializable: %w", err))
	}
	filename := PayloadFilename(data)

	var (
		failures []string
		hints    []string
	)
	for _, b := range []struct {
		backend Backend
		name    string
		hint    string
	}{
		{o.primary, BackendLighthouse, lighthouseHint},
		{o.secondary, BackendIPFS, ipfsHint},
	} {
		if b.backend == nil || !b.backend.Configured() {
			metrics.OffloadUploadTotal.WithLabelValues(b.name, "skipped").Inc()
			failures = append(failures, b.name+": not configured")
			hints = append(hints, b.hint)
			continue
		}

		id, err := o.uploadOne(ctx, b.backend, filename, data)
		if err == nil {
			metrics.OffloadUploadTotal.WithLabelValues(b.name, "ok").Inc()
			zap.L().Info("payload offloaded",
				zap.String("backend", b.name),
				zap.String("content_id", id.String()),
				zap.Int("bytes", len(data)))
			return id, nil
		}
		metrics.OffloadUploadTotal.WithLabelValues(b.name, "error").Inc()
		zap.L().Warn("payload upload failed", zap.String("backend", b.name), zap.Error(err))
		failures = append(failures, fmt.Sprintf("%s: %v", b.name, err))
		hints = append(hints, b.hint)

		if errors.Is(err, context.Canceled) {
			break
		}
	}

	return ContentID{}, faults.Newf(faults.KindOffloadFailed, "storage.upload", strings.Join(hints, "; "),
		"all storage backends failed (%s)", strings.Join(failures, "; "))
}

func (o *Offloader) uploadOne(ctx context.Context, b Backend, filename string, data []byte) (ContentID, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.StorageUpload)
	defer cancel()
	return b.Upload(ctx, filename, data)
}

// Fetch reads the payload behind id from the backend named in it.
func (o *Offloader) Fetch(ctx context.Context, id string) (json.RawMessage, error) {
	ref, err := ParseContentID(id)
	if err != nil {
		return nil, err
	}

	var b Backend
	switch ref.Backend {
	case BackendLighthouse:
		// the gateway is public, no api key needed
		b = o.primary
	case BackendIPFS:
		if o.secondary != nil && o.secondary.Configured() {
			b = o.secondary
		}
	}
	if b == nil {
		return nil, faults.Newf(faults.KindConfig, "storage.fetch", ipfsHint, "no backend available for %s", ref)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeouts.StorageFetch)
	defer cancel()

	start := time.Now()
	data, err := b.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, faults.Newf(faults.KindInvalidFormat, "storage.fetch", "", "content %s is not JSON", ref)
	}
	zap.L().Debug("payload fetched", zap.String("content_id", ref.String()), zap.Duration("took", time.Since(start)))
	return json.RawMessage(data), nil
}
