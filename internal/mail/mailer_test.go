package mail

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cosmicplatform/api/internal/config"
)

func newOutboxUnderTest(t *testing.T) (*OutboxMailer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := config.MailConfig{
		BaseURL:     "https://cosmic.example",
		FromAddress: "no-reply@cosmic.example",
	}
	return NewOutboxMailer(client, cfg, zerolog.Nop()), client
}

func TestOutboxMailerSendVerification(t *testing.T) {
	mailer, client := newOutboxUnderTest(t)
	ctx := context.Background()

	require.NoError(t, mailer.SendVerification(ctx, "nova@x.io", "Nova", "tok123"))

	entries, err := client.XRange(ctx, outboxStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "verify_email", values["template"])
	assert.Equal(t, "nova@x.io", values["to"])
	assert.Equal(t, "Nova", values["name"])
	assert.Equal(t, "https://cosmic.example/verify-email?token=tok123", values["link"])
	assert.Equal(t, "no-reply@cosmic.example", values["from"])
}

func TestOutboxMailerSendPasswordReset(t *testing.T) {
	mailer, client := newOutboxUnderTest(t)
	ctx := context.Background()

	require.NoError(t, mailer.SendPasswordReset(ctx, "nova@x.io", "Nova", "tok456"))

	entries, err := client.XRange(ctx, outboxStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "password_reset", values["template"])
	assert.Equal(t, "https://cosmic.example/reset-password?token=tok456", values["link"])
}

func TestOutboxMailerQueuesInOrder(t *testing.T) {
	mailer, client := newOutboxUnderTest(t)
	ctx := context.Background()

	require.NoError(t, mailer.SendVerification(ctx, "a@x.io", "A", "t1"))
	require.NoError(t, mailer.SendPasswordReset(ctx, "b@x.io", "B", "t2"))

	count, err := client.XLen(ctx, outboxStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestOutboxMailerRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	mailer := NewOutboxMailer(client, config.MailConfig{}, zerolog.Nop())
	err := mailer.SendVerification(context.Background(), "nova@x.io", "Nova", "tok")
	assert.Error(t, err)
}
