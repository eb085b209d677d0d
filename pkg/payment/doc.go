// Package payment implements a pay-per-call gate.
//
// A caller signs a Payload (see Sign) naming the network, token, amount and
// a fresh nonce. The gate checks it against the Requirement registered for
// the resource and rejects with one of the Reason* codes:
//
//	network_mismatch, token_mismatch, insufficient_amount,
//	invalid_signature, invalid_payload, already_settled
//
// Accepted payments are settled through a facilitator (FACILITATOR_URL).
// Every settlement is reserved in a SettlementLedger first (Redis when
// REDIS_URL is set), so a payment whose outcome is unknown is never sent to
// the facilitator a second time.
//
// # Transports
//
// HTTP: Gate.Middleware reads the base64 JSON payload from X-PAYMENT,
// answers 402 with the requirement when it is missing or rejected, and sets
// X-PAYMENT-RESPONSE on success.
//
//	r := chi.NewRouter()
//	r.With(gate.Middleware).Post(payment.DefaultResource, handler)
//
// gRPC: Gate.UnaryServerInterceptor does the same with the x-payment
// metadata key and the x-payment-response header.
package payment
