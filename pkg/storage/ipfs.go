package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipfs/kubo/client/rpc"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"go.uber.org/zap"
)

const ipfsHint = "run an IPFS node (ipfs daemon) reachable at IPFS_URL"

// IPFSBackend talks to a Kubo node over its HTTP RPC API.
type IPFSBackend struct {
	api *rpc.HttpApi
	url string
}

// NewIPFSBackend connects a Kubo RPC client to url. Nothing is sent until
// the first upload or fetch.
func NewIPFSBackend(url string, timeout time.Duration) (*IPFSBackend, error) {
	api, err := NewIPFSClient(url, timeout)
	if err != nil {
		return nil, err
	}
	return &IPFSBackend{api: api, url: url}, nil
}

// NewIPFSClient constructs a Kubo HTTP API client pointed at url.
func NewIPFSClient(url string, timeout time.Duration) (*rpc.HttpApi, error) {
	httpClient := &http.Client{Timeout: timeout}
	client, err := rpc.NewURLApiWithClient(url, httpClient)
	if err != nil {
		return nil, faults.New(faults.KindConfig, "ipfs.connect", "check IPFS_URL", err)
	}
	return client, nil
}

func (b *IPFSBackend) Name() string { return BackendIPFS }

func (b *IPFSBackend) Configured() bool { return b != nil && b.api != nil }

// Upload adds data with `ipfs add` and pins it.
func (b *IPFSBackend) Upload(ctx context.Context, filename string, data []byte) (ContentID, error) {
	if !b.Configured() {
		return ContentID{}, faults.Newf(faults.KindConfig, "ipfs.upload", ipfsHint, "ipfs client not configured")
	}

	var out struct {
		Name string `json:"Name"`
		Hash string `json:"Hash"`
		Size string `json:"Size"`
	}
	err := b.api.Request("add").
		Option("pin", true).
		Option("cid-version", 1).
		FileBody(bytes.NewReader(data)).
		Exec(ctx, &out)
	if err != nil {
		zap.L().Error("error uploading to ipfs", zap.String("url", b.url), zap.Error(err))
		return ContentID{}, faults.New(faults.KindNetwork, "ipfs.upload", ipfsHint, err)
	}
	if err := validateHash(out.Hash); err != nil {
		return ContentID{}, faults.New(faults.KindNetwork, "ipfs.upload", "", err)
	}

	zap.L().Debug("Successfully uploaded to IPFS", zap.String("hash", out.Hash))
	return ContentID{Backend: BackendIPFS, Hash: out.Hash, Filename: filename}, nil
}

// Fetch reads id with `ipfs cat`.
func (b *IPFSBackend) Fetch(ctx context.Context, id ContentID) (content []byte, err error) {
	if !b.Configured() {
		return nil, faults.Newf(faults.KindConfig, "ipfs.fetch", ipfsHint, "ipfs client not configured")
	}

	zap.L().Debug("Hash Used to retrieve from IPFS", zap.String("hash", id.Hash))

	resp, err := b.api.Request("cat", id.Hash).Send(ctx)
	if err != nil {
		return nil, faults.New(faults.KindNetwork, "ipfs.fetch", ipfsHint, err)
	}
	defer func(resp *rpc.Response) {
		if cerr := resp.Close(); cerr != nil {
			zap.L().Error("error closing response in ipfs", zap.String("hash", id.Hash), zap.Error(cerr))
		}
	}(resp)

	if resp.Error != nil {
		return nil, faults.New(faults.KindNetwork, "ipfs.fetch", "", fmt.Errorf("cat %s: %w", id.Hash, resp.Error))
	}
	content, err = io.ReadAll(resp.Output)
	if err != nil {
		return nil, faults.New(faults.KindNetwork, "ipfs.fetch", "", err)
	}
	return content, nil
}

// Version asks the node for its version. It is used as a reachability probe.
func (b *IPFSBackend) Version(ctx context.Context) (string, error) {
	if !b.Configured() {
		return "", faults.Newf(faults.KindConfig, "ipfs.version", ipfsHint, "ipfs client not configured")
	}
	var out struct {
		Version string `json:"Version"`
	}
	if err := b.api.Request("version").Exec(ctx, &out); err != nil {
		return "", faults.New(faults.KindNetwork, "ipfs.version", ipfsHint, err)
	}
	return out.Version, nil
}
