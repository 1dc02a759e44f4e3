// Package requestcontext carries request-scoped metadata (request ID, client
// address, user agent, authenticated account) through context.Context.
package requestcontext

import (
	"context"
	"strings"

	"github.com/mssola/useragent"

	id "bastion/pkg/domain"
)

type (
	requestIDKey struct{}
	clientIPKey  struct{}
	userAgentKey struct{}
	accountKey   struct{}
	roleKey      struct{}
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request ID or "" outside an HTTP request.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey{}).(string)
	return v
}

// Device returns a coarse "browser/os" label for audit logs, or "unknown".
func Device(ctx context.Context) string {
	raw := UserAgent(ctx)
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	browser = strings.ToLower(strings.TrimSpace(browser))
	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if browser == "" {
		browser = "unknown"
	}
	if os == "" {
		os = "unknown"
	}
	if ua.Mobile() {
		return browser + "/" + os + "/mobile"
	}
	return browser + "/" + os
}

// WithAccount stores the authenticated account and role set by the bearer middleware.
func WithAccount(ctx context.Context, accountID id.AccountID, role string) context.Context {
	ctx = context.WithValue(ctx, accountKey{}, accountID)
	return context.WithValue(ctx, roleKey{}, role)
}

// AccountID returns the authenticated account or the nil ID.
func AccountID(ctx context.Context) id.AccountID {
	v, _ := ctx.Value(accountKey{}).(id.AccountID)
	return v
}

func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey{}).(string)
	return v
}
