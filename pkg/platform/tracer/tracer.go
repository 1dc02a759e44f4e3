// Package tracer is a thin tracing abstraction over OpenTelemetry.
//
// Services depend on Tracer rather than the otel API so tests can pass
// NoopTracer and production wires OTelTracer against the global provider.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanCaptchaVerify, tracer.Bool(tracer.AttrRemoteIPPresent, true))
//	defer span.End(err)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashEmail returns a short SHA-256 prefix of the normalized address so traces
// can be correlated without carrying the address itself.
func HashEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:8])
}

const (
	SpanSignup         = "auth.signup"
	SpanLogin          = "auth.login"
	SpanRequestReset   = "auth.password_reset.request"
	SpanResetPassword  = "auth.password_reset.complete"
	SpanChangePassword = "auth.password_change"
	SpanRequestVerify  = "auth.email_verification.request"
	SpanVerifyEmail    = "auth.email_verification.complete"
	SpanCaptchaVerify  = "captcha.verify"
	SpanRateLimitAllow = "ratelimit.allow"
)

const (
	AttrEmailHash       = "account.email_hash"
	AttrAccountID       = "account.id"
	AttrOutcome         = "outcome"
	AttrLocked          = "account.locked"
	AttrBucket          = "ratelimit.bucket"
	AttrAllowed         = "ratelimit.allowed"
	AttrRemoteIPPresent = "captcha.remote_ip_present"
	AttrCircuitOpen     = "circuit.open"
)

const (
	EventLockoutTriggered = "lockout.triggered"
	EventResetTokenStored = "reset_token.stored"
)
