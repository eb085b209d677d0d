package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shamank/snet-custody-go/pkg/faults"
)

// Facilitator is an HTTP client for a payment facilitator exposing
// POST /verify and POST /settle.
type Facilitator struct {
	BaseURL string
	Client  *http.Client
}

// NewFacilitator returns a client for baseURL, or nil when baseURL is empty.
func NewFacilitator(baseURL string, timeout time.Duration) *Facilitator {
	if baseURL == "" {
		return nil
	}
	return &Facilitator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type facilitatorRequest struct {
	PaymentPayload      Payload     `json:"paymentPayload"`
	PaymentRequirements Requirement `json:"paymentRequirements"`
}

// VerifyResponse is the body of a /verify reply.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the body of a /settle reply.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// Verify asks the facilitator whether p satisfies req. Transport failures
// are NETWORK errors.
func (f *Facilitator) Verify(ctx context.Context, p Payload, req Requirement) (VerifyResponse, error) {
	var out VerifyResponse
	status, body, err := f.post(ctx, "/verify", p, req)
	if err != nil {
		return out, faults.New(faults.KindNetwork, "facilitator.verify", "check FACILITATOR_URL", err)
	}
	if status >= 500 {
		return out, faults.Newf(faults.KindNetwork, "facilitator.verify", "", "unexpected status %d", status)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, faults.New(faults.KindNetwork, "facilitator.verify", "", fmt.Errorf("decode response (status %d): %w", status, err))
	}
	if !out.IsValid && out.InvalidReason == "" {
		out.InvalidReason = "facilitator_rejected"
	}
	return out, nil
}

// Settle asks the facilitator to execute the payment. Anything that does
// not clearly say success or failure is OUTCOME_UNKNOWN.
func (f *Facilitator) Settle(ctx context.Context, p Payload, req Requirement) (SettleResponse, error) {
	var out SettleResponse
	status, body, err := f.post(ctx, "/settle", p, req)
	if err != nil {
		return out, faults.New(faults.KindOutcomeUnknown, "facilitator.settle", "check the facilitator before retrying this payment", err)
	}
	if status >= 500 {
		return out, faults.Newf(faults.KindOutcomeUnknown, "facilitator.settle", "check the facilitator before retrying this payment", "unexpected status %d", status)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, faults.New(faults.KindOutcomeUnknown, "facilitator.settle", "", fmt.Errorf("decode response (status %d): %w", status, err))
	}
	if !out.Success && out.ErrorReason == "" {
		out.ErrorReason = "settlement_failed"
	}
	return out, nil
}

func (f *Facilitator) post(ctx context.Context, path string, p Payload, req Requirement) (int, []byte, error) {
	raw, err := json.Marshal(facilitatorRequest{PaymentPayload: p, PaymentRequirements: req})
	if err != nil {
		return 0, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// Supported calls GET /supported and returns the raw reply. It is used as a
// reachability probe.
func (f *Facilitator) Supported(ctx context.Context) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/supported", nil)
	if err != nil {
		return nil, faults.New(faults.KindConfig, "facilitator.supported", "check FACILITATOR_URL", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, faults.New(faults.KindNetwork, "facilitator.supported", "check FACILITATOR_URL", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, faults.New(faults.KindNetwork, "facilitator.supported", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, faults.Newf(faults.KindNetwork, "facilitator.supported", "", "unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
