package bootstrap

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/briefing-platform/internal/config"
	"github.com/wolfman30/briefing-platform/internal/dispatch"
	"github.com/wolfman30/briefing-platform/internal/notify"
	"github.com/wolfman30/briefing-platform/internal/store"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

func quietLogger() *logging.Logger { return logging.NewWithWriter(io.Discard, "error") }

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, quietLogger(), true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, quietLogger(), true))
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	cfg := &appconfig.Config{RedisAddr: "127.0.0.1:1"}
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, quietLogger(), true))
}

func TestBuildRepositoryWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}
	client := BuildRedisClient(context.Background(), cfg, quietLogger(), true)
	require.NotNil(t, client)
	defer client.Close()

	inner := store.NewMemory()
	repo, snap := BuildRepository(inner, client, cfg, quietLogger())
	assert.NotNil(t, snap)
	assert.NotSame(t, inner, repo)
}

func TestBuildRepositoryWithoutCache(t *testing.T) {
	inner := store.NewMemory()
	repo, snap := BuildRepository(inner, nil, nil, quietLogger())
	assert.Nil(t, snap)
	assert.Same(t, inner, repo)
}

func TestBuildPostgresPoolRequiresURL(t *testing.T) {
	_, err := BuildPostgresPool(context.Background(), &appconfig.Config{})
	require.Error(t, err)
}

func TestBuildWhatsAppClientRequiresCredentials(t *testing.T) {
	_, err := BuildWhatsAppClient(&appconfig.Config{WhatsAppPhoneNumberID: "123"}, quietLogger())
	require.Error(t, err)

	client, err := BuildWhatsAppClient(&appconfig.Config{
		WhatsAppPhoneNumberID: "123",
		WhatsAppAccessToken:   "token",
	}, quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestBuildQueue(t *testing.T) {
	q, err := BuildQueue(&appconfig.Config{UseMemoryQueue: true, MemoryQueueBuffer: 4}, nil)
	require.NoError(t, err)
	assert.IsType(t, &dispatch.MemoryQueue{}, q)

	_, err = BuildQueue(&appconfig.Config{BriefingQueueURL: "http://localhost:4566/queue/briefings"}, nil)
	require.Error(t, err)

	awsCfg := aws.Config{Region: "us-east-1"}
	q, err = BuildQueue(&appconfig.Config{BriefingQueueURL: "http://localhost:4566/queue/briefings"}, &awsCfg)
	require.NoError(t, err)
	assert.IsType(t, &dispatch.SQSQueue{}, q)
}

func TestBuildEmailSender(t *testing.T) {
	assert.Nil(t, BuildEmailSender(&appconfig.Config{EmailProvider: "sendgrid"}, nil, quietLogger()))
	assert.Nil(t, BuildEmailSender(&appconfig.Config{EmailProvider: "ses"}, nil, quietLogger()))
	assert.IsType(t, &notify.StubEmailSender{}, BuildEmailSender(&appconfig.Config{EmailProvider: "stub"}, nil, quietLogger()))
	assert.IsType(t, &notify.SendGridSender{}, BuildEmailSender(&appconfig.Config{SendGridAPIKey: "key"}, nil, quietLogger()))

	awsCfg := aws.Config{Region: "us-east-1"}
	assert.IsType(t, &notify.SESSender{}, BuildEmailSender(&appconfig.Config{EmailProvider: "ses"}, &awsCfg, quietLogger()))
}

func TestBuildCompletionHooksRegistersConfiguredBackends(t *testing.T) {
	awsCfg := aws.Config{Region: "us-east-1"}
	cfg := &appconfig.Config{
		EmailProvider: "stub",
		NotifyEmails:  []string{"studio@example.com"},
		ArchiveBucket: "briefing-archive",
	}
	d := BuildCompletionHooks(cfg, CompletionDeps{AWS: &awsCfg}, quietLogger())
	assert.Equal(t, []string{"notify", "archive"}, d.Names())

	d = BuildCompletionHooks(&appconfig.Config{EmailProvider: "stub"}, CompletionDeps{}, quietLogger())
	assert.Empty(t, d.Names())
}
