package goEnroll

import "context"

type contextKey uint8

const (
	ctxKeyClientIP contextKey = iota
	ctxKeyTenantID
)

// defaultTenantID is used when the caller attaches no tenant.
const defaultTenantID = "0"

// WithClientIP describes the with client ip operation and its observable behavior.
//
// WithClientIP does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// WithTenantID describes the with tenant id operation and its observable behavior.
//
// WithTenantID does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyTenantID, tenantID)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeyClientIP).(string)
	return ip
}

func tenantIDFromContext(ctx context.Context) string {
	if tid, ok := ctx.Value(ctxKeyTenantID).(string); ok && tid != "" {
		return tid
	}
	return defaultTenantID
}
