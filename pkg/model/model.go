package model

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/xeipuuv/gojsonschema"
)

// Kind names an operation.
type Kind string

const (
	KindSubmitMessage Kind = "submit_message"
	KindTransfer      Kind = "transfer"
	KindCreateAccount Kind = "create_account"
	KindSubmitSigned  Kind = "submit_signed"
	KindUploadPayload Kind = "upload_payload"
	KindFetchPayload  Kind = "fetch_payload"
)

// Request is implemented by every request type.
type Request interface {
	Kind() Kind
}

// SubmitMessageRequest posts a message to a topic. When Payload is set it
// is offloaded first and the content id becomes the message.
type SubmitMessageRequest struct {
	TopicID string          `json:"topic_id"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TransferRequest moves Amount coins from the signer to To.
type TransferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// CreateAccountRequest creates a fresh account funded with InitialBalance coins.
type CreateAccountRequest struct {
	InitialBalance string `json:"initial_balance,omitempty"`
}

// SignedBytesRequest submits a transaction signed elsewhere.
type SignedBytesRequest struct {
	Envelope string `json:"envelope"`
}

// UploadPayloadRequest offloads Payload without touching the ledger.
type UploadPayloadRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// FetchPayloadRequest reads back an offloaded payload.
type FetchPayloadRequest struct {
	ContentID string `json:"content_id"`
}

func (*SubmitMessageRequest) Kind() Kind { return KindSubmitMessage }
func (*TransferRequest) Kind() Kind      { return KindTransfer }
func (*CreateAccountRequest) Kind() Kind { return KindCreateAccount }
func (*SignedBytesRequest) Kind() Kind   { return KindSubmitSigned }
func (*UploadPayloadRequest) Kind() Kind { return KindUploadPayload }
func (*FetchPayloadRequest) Kind() Kind  { return KindFetchPayload }

type entry struct {
	schema *gojsonschema.Schema
	new    func() Request
}

var registry = map[Kind]entry{}

func register(k Kind, schema string, newFn func() Request) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic("model: invalid schema for " + string(k) + ": " + err.Error())
	}
	registry[k] = entry{schema: s, new: newFn}
}

func init() {
	register(KindSubmitMessage, submitMessageSchema, func() Request { return &SubmitMessageRequest{} })
	register(KindTransfer, transferSchema, func() Request { return &TransferRequest{} })
	register(KindCreateAccount, createAccountSchema, func() Request { return &CreateAccountRequest{} })
	register(KindSubmitSigned, signedBytesSchema, func() Request { return &SignedBytesRequest{} })
	register(KindUploadPayload, uploadPayloadSchema, func() Request { return &UploadPayloadRequest{} })
	register(KindFetchPayload, fetchPayloadSchema, func() Request { return &FetchPayloadRequest{} })
}

// Kinds lists the registered kinds in sorted order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decode validates raw against the schema of kind and returns the typed request.
func Decode(kind string, raw []byte) (Request, error) {
	e, ok := registry[Kind(strings.TrimSpace(kind))]
	if !ok {
		return nil, faults.Newf(faults.KindInvalidInput, "model.decode", "", "unknown operation kind %q", kind)
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, faults.New(faults.KindInvalidInput, "model.decode", "", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return nil, faults.Newf(faults.KindInvalidInput, "model.decode", "", "%s request is invalid: %s", kind, strings.Join(msgs, "; "))
	}

	req := e.new()
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, faults.New(faults.KindInvalidInput, "model.decode", "", err)
	}
	return req, nil
}
