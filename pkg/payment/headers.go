package payment

const (
	// PaymentHeader carries the base64 JSON Payload on HTTP requests.
	PaymentHeader = "X-PAYMENT"
	// PaymentResponseHeader carries the base64 JSON Settlement on HTTP responses.
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
	// PaymentMetadataKey is the gRPC metadata key for the Payload.
	PaymentMetadataKey = "x-payment"
	// PaymentResponseMetadataKey is the gRPC header key for the Settlement.
	PaymentResponseMetadataKey = "x-payment-response"
)
