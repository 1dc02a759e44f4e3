package service

import (
	"context"
	"time"

	"bastion/pkg/platform/privacy"
	"bastion/pkg/requestcontext"
)

// Audit event names.
const (
	eventAccountCreated      = "account_created"
	eventLoginSucceeded      = "login_succeeded"
	eventAccountLocked       = "account_locked"
	eventAuthFailed          = "auth_failed"
	eventResetRequested      = "password_reset_requested"
	eventPasswordReset       = "password_reset_completed"
	eventPasswordChanged     = "password_changed"
	eventVerificationSent    = "email_verification_requested"
	eventEmailVerified       = "email_verified"
	eventMailDeliveryFailure = "mail_delivery_failed"
)

// logAudit records a security-relevant event with the request's client metadata.
func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	attributes = append(attributes, clientAttrs(ctx)...)
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// authFailure logs a rejected attempt with its internal reason. Callers still
// return the least informative error to the client.
func (s *Service) authFailure(ctx context.Context, reason string, isError bool, attributes ...any) {
	attributes = append(attributes, clientAttrs(ctx)...)
	args := append(attributes, "event", eventAuthFailed, "reason", reason, "log_type", "standard")
	if isError {
		s.logger.ErrorContext(ctx, eventAuthFailed, args...)
	} else {
		s.logger.WarnContext(ctx, eventAuthFailed, args...)
	}
	if s.metrics != nil {
		s.metrics.IncrementAuthFailures(reason)
	}
}

func clientAttrs(ctx context.Context) []any {
	var out []any
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		out = append(out, "request_id", requestID)
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		out = append(out, "client_ip", privacy.AnonymizeIP(ip))
	}
	if requestcontext.UserAgent(ctx) != "" {
		out = append(out, "device", requestcontext.Device(ctx))
	}
	return out
}

func (s *Service) incrementAccountsCreated() {
	if s.metrics != nil {
		s.metrics.IncrementAccountsCreated()
	}
}

func (s *Service) incrementTokensIssued() {
	if s.metrics != nil {
		s.metrics.IncrementTokensIssued()
	}
}

func (s *Service) incrementLoginAttempt(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementLoginAttempt(outcome)
	}
}

func (s *Service) incrementLockouts() {
	if s.metrics != nil {
		s.metrics.IncrementLockouts()
	}
}

func (s *Service) incrementResetRequests(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementResetRequests(outcome)
	}
}

func (s *Service) incrementResetsCompleted() {
	if s.metrics != nil {
		s.metrics.IncrementResetsCompleted()
	}
}

func (s *Service) incrementEmailsVerified() {
	if s.metrics != nil {
		s.metrics.IncrementEmailsVerified()
	}
}

func (s *Service) incrementMailDeliveryFailures(messageType string) {
	if s.metrics != nil {
		s.metrics.IncrementMailDeliveryFailures(messageType)
	}
}

func (s *Service) observeLoginDuration(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveLoginDuration(float64(time.Since(start).Milliseconds()))
	}
}

func (s *Service) observeOperation(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperationDuration(operation, float64(time.Since(start).Milliseconds()))
	}
}
