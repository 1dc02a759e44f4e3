// Package email hands password-reset and verification tokens to the mail
// pipeline. Rendering and SMTP delivery happen downstream.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bastion/internal/platform/kafka/producer"
	"bastion/pkg/platform/middleware/requesttime"
	"bastion/pkg/platform/privacy"
	"bastion/pkg/platform/tracer"
	"bastion/pkg/requestcontext"
)

// Message types carried in the message_type header and body.
const (
	TypePasswordReset     = "password_reset"
	TypeEmailVerification = "email_verification"
)

// Message is the JSON payload consumed by the mail worker.
type Message struct {
	Type      string    `json:"type"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	RequestID string    `json:"request_id,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Publisher is the subset of the Kafka producer the sender needs.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaSender publishes mail requests to a topic, keyed by a hash of the
// address so messages for one recipient stay ordered on one partition.
type KafkaSender struct {
	publisher Publisher
	topic     string
}

func NewKafkaSender(publisher Publisher, topic string) *KafkaSender {
	return &KafkaSender{publisher: publisher, topic: topic}
}

func (s *KafkaSender) SendPasswordResetMessage(ctx context.Context, email, rawToken string) error {
	return s.send(ctx, TypePasswordReset, email, rawToken)
}

func (s *KafkaSender) SendVerificationMessage(ctx context.Context, email, rawToken string) error {
	return s.send(ctx, TypeEmailVerification, email, rawToken)
}

func (s *KafkaSender) send(ctx context.Context, msgType, email, rawToken string) error {
	body, err := json.Marshal(Message{
		Type:      msgType,
		Email:     email,
		Token:     rawToken,
		RequestID: requestcontext.RequestID(ctx),
		IssuedAt:  requesttime.Now(ctx),
	})
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msgType, err)
	}

	err = s.publisher.Produce(ctx, &producer.Message{
		Topic:   s.topic,
		Key:     []byte(tracer.HashEmail(email)),
		Value:   body,
		Headers: map[string]string{"message_type": msgType},
	})
	if err != nil {
		return fmt.Errorf("publish %s message: %w", msgType, err)
	}
	return nil
}

// LogSender is used when no broker is configured. It records that a message
// would have been sent. Tokens are never written to the log.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendPasswordResetMessage(ctx context.Context, email, _ string) error {
	s.log(ctx, TypePasswordReset, email)
	return nil
}

func (s *LogSender) SendVerificationMessage(ctx context.Context, email, _ string) error {
	s.log(ctx, TypeEmailVerification, email)
	return nil
}

func (s *LogSender) log(ctx context.Context, msgType, email string) {
	s.logger.InfoContext(ctx, "mail delivery skipped, no broker configured",
		"message_type", msgType,
		"email", privacy.MaskEmail(email),
		"request_id", requestcontext.RequestID(ctx),
	)
}
