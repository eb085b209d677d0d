package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shamank/snet-custody-go/pkg/faults"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// EncodeHeader renders v as base64 JSON for a header value.
func EncodeHeader(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePayload parses a base64 JSON header value.
func DecodePayload(value string) (Payload, error) {
	var p Payload
	value = strings.TrimSpace(value)
	if value == "" {
		return p, errors.New("empty payment header")
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		if raw, err = base64.RawURLEncoding.DecodeString(value); err != nil {
			return p, err
		}
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}

type settlementKeyCtx struct{}

// SettlementFromContext returns the settlement the transport recorded for
// this request.
func SettlementFromContext(ctx context.Context) (Settlement, bool) {
	s, ok := ctx.Value(settlementKeyCtx{}).(Settlement)
	return s, ok
}

type paymentRequired struct {
	Error   string        `json:"error"`
	Accepts []Requirement `json:"accepts"`
}

// Middleware settles the X-PAYMENT header before passing the request on.
// Paths without a registered requirement are not gated.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := g.requirements.Lookup(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(PaymentHeader)
		if header == "" {
			writePaymentRequired(w, ReasonMissingPayment, req)
			return
		}
		p, err := DecodePayload(header)
		if err != nil {
			writePaymentRequired(w, ReasonInvalidPayload, req)
			return
		}

		s, err := g.Settle(r.Context(), p, req)
		if err != nil {
			if reason := ReasonOf(err); reason != "" {
				writePaymentRequired(w, reason, req)
				return
			}
			zap.L().Error("payment middleware failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, string(faults.KindOf(err)), httpStatus(err))
			return
		}

		if enc, err := EncodeHeader(s); err == nil {
			w.Header().Set(PaymentResponseHeader, enc)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), settlementKeyCtx{}, s)))
	})
}

func writePaymentRequired(w http.ResponseWriter, reason string, req Requirement) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(paymentRequired{Error: reason, Accepts: []Requirement{req}})
}

func httpStatus(err error) int {
	switch faults.KindOf(err) {
	case faults.KindNetwork:
		return http.StatusServiceUnavailable
	case faults.KindOutcomeUnknown:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// UnaryServerInterceptor gates gRPC methods that have a requirement
// registered under their full method name. The payload travels in the
// x-payment metadata key.
func (g *Gate) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, in any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		req, ok := g.requirements.Lookup(info.FullMethod)
		if !ok {
			return handler(ctx, in)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(PaymentMetadataKey)
		if len(values) == 0 {
			return nil, status.Error(codes.PermissionDenied, ReasonMissingPayment)
		}
		p, err := DecodePayload(values[0])
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, ReasonInvalidPayload)
		}

		s, err := g.Settle(ctx, p, req)
		if err != nil {
			if reason := ReasonOf(err); reason != "" {
				return nil, status.Error(codes.PermissionDenied, reason)
			}
			return nil, status.Error(grpcCode(err), err.Error())
		}

		if enc, err := EncodeHeader(s); err == nil {
			_ = grpc.SetHeader(ctx, metadata.Pairs(PaymentResponseMetadataKey, enc))
		}
		return handler(context.WithValue(ctx, settlementKeyCtx{}, s), in)
	}
}

func grpcCode(err error) codes.Code {
	switch faults.KindOf(err) {
	case faults.KindNetwork:
		return codes.Unavailable
	case faults.KindConfig:
		return codes.FailedPrecondition
	}
	return codes.Unknown
}
