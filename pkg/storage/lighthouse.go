package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"go.uber.org/zap"
)

const lighthouseHint = "set LIGHTHOUSE_API_KEY"

// LighthouseBackend uploads through the Lighthouse node API and reads back
// through its HTTP gateway.
type LighthouseBackend struct {
	APIKey    string
	UploadURL string
	Gateway   string
	Client    *http.Client
}

// NewLighthouseBackend builds the primary backend from storage settings.
func NewLighthouseBackend(cfg config.Storage, timeout time.Duration) *LighthouseBackend {
	return &LighthouseBackend{
		APIKey:    cfg.LighthouseAPIKey,
		UploadURL: cfg.LighthouseUploadURL,
		Gateway:   cfg.LighthouseURL,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (l *LighthouseBackend) Name() string { return BackendLighthouse }

func (l *LighthouseBackend) Configured() bool { return l != nil && l.APIKey != "" }

type lighthouseAddResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Upload posts data as a multipart file and returns its content id.
func (l *LighthouseBackend) Upload(ctx context.Context, filename string, data []byte) (ContentID, error) {
	if !l.Configured() {
		return ContentID{}, faults.Newf(faults.KindConfig, "lighthouse.upload", lighthouseHint, "lighthouse api key not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return ContentID{}, err
	}
	if _, err = fw.Write(data); err != nil {
		return ContentID{}, err
	}
	if err = mw.Close(); err != nil {
		return ContentID{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.UploadURL, &body)
	if err != nil {
		return ContentID{}, faults.New(faults.KindConfig, "lighthouse.upload", "check LIGHTHOUSE_UPLOAD_URL", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+l.APIKey)

	resp, err := l.client().Do(req)
	if err != nil {
		return ContentID{}, faults.New(faults.KindNetwork, "lighthouse.upload", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ContentID{}, faults.New(faults.KindNetwork, "lighthouse.upload", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		hint := ""
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			hint = "check LIGHTHOUSE_API_KEY"
		}
		return ContentID{}, faults.Newf(faults.KindNetwork, "lighthouse.upload", hint, "unexpected status %d", resp.StatusCode)
	}

	var out lighthouseAddResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ContentID{}, faults.New(faults.KindNetwork, "lighthouse.upload", "", fmt.Errorf("decode response: %w", err))
	}
	if err := validateHash(out.Hash); err != nil {
		return ContentID{}, faults.New(faults.KindNetwork, "lighthouse.upload", "", err)
	}

	zap.L().Debug("uploaded to lighthouse", zap.String("hash", out.Hash), zap.String("size", out.Size))
	return ContentID{Backend: BackendLighthouse, Hash: out.Hash}, nil
}

// Fetch reads id from the gateway at {Gateway}{hash}.
func (l *LighthouseBackend) Fetch(ctx context.Context, id ContentID) ([]byte, error) {
	return GetLighthouseFile(ctx, l.client(), l.Gateway, id.Hash)
}

func (l *LighthouseBackend) client() *http.Client {
	if l.Client != nil {
		return l.Client
	}
	return http.DefaultClient
}

// GetLighthouseFile fetches a blob with a GET to {lighthouseEndpoint}{cID}.
// The CID is appended as is, so the endpoint needs its trailing slash.
func GetLighthouseFile(ctx context.Context, client *http.Client, lighthouseEndpoint, cID string) ([]byte, error) {
	zap.L().Debug("Getting lighthouse file", zap.String("cid", cID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lighthouseEndpoint+cID, nil)
	if err != nil {
		return nil, faults.New(faults.KindConfig, "lighthouse.fetch", "check LIGHTHOUSE_URL", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, faults.New(faults.KindNetwork, "lighthouse.fetch", "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, faults.Newf(faults.KindNotFound, "lighthouse.fetch", "", "content %s not found", cID)
	case resp.StatusCode != http.StatusOK:
		return nil, faults.Newf(faults.KindNetwork, "lighthouse.fetch", "", "unexpected status %d", resp.StatusCode)
	}

	file, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.New(faults.KindNetwork, "lighthouse.fetch", "", err)
	}
	return file, nil
}
