package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "approvals.db")
	cfg.Security.BackendSecret = "test-secret"
	cfg.Telegram.BotToken = "123:abc"
	// Unroutable so nothing leaves the test process
	cfg.Telegram.APIBaseURL = "http://127.0.0.1:1"
	cfg.Telegram.Timeout = 200 * time.Millisecond
	cfg.Worker.SweepInterval = time.Hour
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	require.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	require.Error(t, err)

	_, err = NewContainer(DefaultConfig(), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend_secret")
}

func TestContainer_StartAndClose(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.NotNil(t, c.Orchestrator())
	assert.NotNil(t, c.HTTPServer())
	assert.Equal(t, "telegram", c.Notifier().Channel())
	assert.Equal(t, []string{"TimeoutSweeper"}, c.Workers().WorkerNames())

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	health := c.Health(context.Background())
	assert.True(t, health.Components["database"].Healthy)
	assert.True(t, health.Components["workers"].Healthy)
	// Bot API is unreachable in tests
	assert.False(t, health.Components["channel"].Healthy)
	assert.False(t, health.Overall)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	require.Error(t, c.Close())
	require.Error(t, c.Start(context.Background()))
}

func TestContainer_LarkChannel(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChannelType = ChannelLark
	cfg.Lark.AppID = "cli_test"
	cfg.Lark.AppSecret = "secret"
	cfg.Lark.VerifyToken = "token"

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, "lark", c.Notifier().Channel())
}

func TestProvideChannel_Unsupported(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelType = "slack"
	_, err := ProvideChannel(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestProvideDeduper_MemoryWhenNoRedis(t *testing.T) {
	cfg := DefaultConfig()
	bundle, err := ProvideDeduper(context.Background(), &cfg.Redis, &cfg.Engine, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, bundle.Redis)

	first, err := bundle.Deduper.FirstSeen(context.Background(), "telegram:1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := bundle.Deduper.FirstSeen(context.Background(), "telegram:1")
	require.NoError(t, err)
	assert.False(t, again)
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("approval_id", "a-1", 42, "skipped", "error", errors.New("boom"), "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "approval_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}
