package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// ContextWithClient attaches the caller's address and User-Agent, which are
// stored with the import history entry.
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyIPAddress, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// IPAddressFromContext extracts the client IP address, or "".
func IPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// UserAgentFromContext extracts the client User-Agent, or "".
func UserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}
