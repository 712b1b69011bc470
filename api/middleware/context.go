package middleware

import "context"

type contextKey string

const ctxRequestID contextKey = "request_id"

// RequestIDFromContext returns the request id assigned by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID stores the request identifier for handlers that stamp it on outbox events.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRequestID, requestID)
}
