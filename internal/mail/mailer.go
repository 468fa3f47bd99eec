package mail

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cosmicplatform/api/internal/config"
)

// Mailer is outbound notification delivery. Implementations are best-effort;
// the auth workflow logs delivery failures and carries on.
type Mailer interface {
	SendVerification(ctx context.Context, to string, displayName string, token string) error
	SendPasswordReset(ctx context.Context, to string, displayName string, token string) error
}

const outboxStream = "mail:outbox"

// OutboxMailer publishes mail jobs onto a redis stream consumed by a delivery
// worker, so a slow or down provider never stalls a request.
type OutboxMailer struct {
	client *redis.Client
	cfg    config.MailConfig
	log    zerolog.Logger
}

func NewOutboxMailer(client *redis.Client, cfg config.MailConfig, log zerolog.Logger) *OutboxMailer {
	return &OutboxMailer{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

func (m *OutboxMailer) SendVerification(ctx context.Context, to string, displayName string, token string) error {
	return m.enqueue(ctx, map[string]any{
		"template": "verify_email",
		"to":       to,
		"name":     displayName,
		"link":     fmt.Sprintf("%s/verify-email?token=%s", m.cfg.BaseURL, token),
		"from":     m.cfg.FromAddress,
	})
}

func (m *OutboxMailer) SendPasswordReset(ctx context.Context, to string, displayName string, token string) error {
	return m.enqueue(ctx, map[string]any{
		"template": "password_reset",
		"to":       to,
		"name":     displayName,
		"link":     fmt.Sprintf("%s/reset-password?token=%s", m.cfg.BaseURL, token),
		"from":     m.cfg.FromAddress,
	})
}

func (m *OutboxMailer) enqueue(ctx context.Context, payload map[string]any) error {
	id, err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: outboxStream,
		Values: payload,
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}

	m.log.Debug().
		Str("stream", outboxStream).
		Str("entry_id", id).
		Str("template", fmt.Sprint(payload["template"])).
		Msg("mail enqueued")
	return nil
}

// NoopMailer discards everything. Used in tests and local setups without a
// mail worker.
type NoopMailer struct{}

func (NoopMailer) SendVerification(ctx context.Context, to string, displayName string, token string) error {
	return nil
}

func (NoopMailer) SendPasswordReset(ctx context.Context, to string, displayName string, token string) error {
	return nil
}
