// Package storage offloads large payloads to content-addressed storage and
// reads them back. Lighthouse (Filecoin) is the primary backend; a Kubo IPFS
// node is the secondary one.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/shamank/snet-custody-go/pkg/faults"
)

const (
	// IpfsPrefix is the URI scheme prefix recognized for IPFS content.
	IpfsPrefix = "ipfs://"
	// FilecoinPrefix is the URI scheme prefix recognized for Filecoin/Lighthouse content.
	FilecoinPrefix = "filecoin://"
)

const (
	BackendLighthouse = "lighthouse"
	BackendIPFS       = "ipfs"
)

// Backend stores and retrieves blobs by content id.
type Backend interface {
	Name() string
	Configured() bool
	Upload(ctx context.Context, filename string, data []byte) (ContentID, error)
	Fetch(ctx context.Context, id ContentID) ([]byte, error)
}

// ContentID identifies an offloaded payload and the backend holding it.
type ContentID struct {
	Backend  string `json:"backend"`
	Hash     string `json:"hash"`
	Filename string `json:"filename,omitempty"`
}

// String renders the bare hash for the primary backend and
// ipfs://<hash>[/<filename>] for the secondary one.
func (c ContentID) String() string {
	if c.Backend == BackendIPFS {
		if c.Filename != "" {
			return IpfsPrefix + c.Hash + "/" + c.Filename
		}
		return IpfsPrefix + c.Hash
	}
	return c.Hash
}

// ParseContentID parses a string produced by ContentID.String. A bare CID
// or a filecoin:// reference is taken to live on the primary backend.
func ParseContentID(s string) (ContentID, error) {
	s = strings.TrimSpace(s)
	var id ContentID
	switch {
	case strings.HasPrefix(s, IpfsPrefix):
		id.Backend = BackendIPFS
		rest := strings.TrimPrefix(s, IpfsPrefix)
		id.Hash, id.Filename, _ = strings.Cut(rest, "/")
	case strings.HasPrefix(s, FilecoinPrefix):
		id.Backend = BackendLighthouse
		id.Hash = strings.TrimPrefix(s, FilecoinPrefix)
	default:
		id.Backend = BackendLighthouse
		id.Hash = s
	}
	if err := validateHash(id.Hash); err != nil {
		return ContentID{}, faults.New(faults.KindInvalidInput, "storage.parse", "", err)
	}
	return id, nil
}

func validateHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("empty content hash")
	}
	if _, err := cid.Decode(hash); err != nil {
		return fmt.Errorf("invalid content hash %q: %w", hash, err)
	}
	return nil
}
