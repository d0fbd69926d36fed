package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sokoflow/sokoflow/runtime/session"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

var (
	testRedisClient *goredis.Client
	skipRedisTests  bool
	redisSetupDone  bool
)

func setupRedis() {
	redisSetupDone = true
	ctx := context.Background()

	var (
		container testcontainers.Container
		err       error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("docker not available: %v", r)
			}
		}()
		container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
	}()
	if err != nil {
		fmt.Printf("Docker not available, Redis tests will be skipped: %v\n", err)
		skipRedisTests = true
		return
	}

	host, err := container.Host(ctx)
	if err != nil {
		skipRedisTests = true
		return
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		skipRedisTests = true
		return
	}
	testRedisClient = goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := testRedisClient.Ping(ctx).Err(); err != nil {
		skipRedisTests = true
	}
}

func getStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}
	if !redisSetupDone {
		setupRedis()
	}
	if skipRedisTests {
		t.Skip("Docker not available, skipping Redis test")
	}
	require.NoError(t, testRedisClient.FlushDB(context.Background()).Err())
	s, err := New(Options{Client: testRedisClient, TTL: ttl})
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := getStore(t, 0)
	ctx := context.Background()

	sess := session.New("cust-1", "biz-1")
	sess.AppendChat(workflow.Message{Role: "user", Name: "customer", Content: "hello"})
	require.NoError(t, s.Save(ctx, sess))

	loaded, err := s.Load(ctx, sess.Key())
	require.NoError(t, err)
	assert.Equal(t, "cust-1", loaded.CustomerID)
	assert.Equal(t, "biz-1", loaded.BusinessID)
	require.Len(t, loaded.ChatHistory, 1)
	assert.Equal(t, "hello", loaded.ChatHistory[0].Content)
	require.NotNil(t, loaded.Processes)
}

func TestStoreLoadMissing(t *testing.T) {
	s := getStore(t, 0)
	_, err := s.Load(context.Background(), "no:body")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestStoreDelete(t *testing.T) {
	s := getStore(t, 0)
	ctx := context.Background()

	sess := session.New("cust-1", "biz-1")
	require.NoError(t, s.Save(ctx, sess))
	require.NoError(t, s.Delete(ctx, sess.Key()))
	_, err := s.Load(ctx, sess.Key())
	require.ErrorIs(t, err, session.ErrNotFound)

	// Deleting an absent key is a no-op.
	require.NoError(t, s.Delete(ctx, sess.Key()))
}

func TestStoreTTLRefreshOnSave(t *testing.T) {
	s := getStore(t, time.Hour)
	ctx := context.Background()

	sess := session.New("cust-1", "biz-1")
	require.NoError(t, s.Save(ctx, sess))
	ttl, err := testRedisClient.TTL(ctx, keyPrefix+sess.Key()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestStoreValidation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	s := getStore(t, 0)
	_, err = s.Load(context.Background(), "")
	require.Error(t, err)
	require.Error(t, s.Save(context.Background(), nil))
	require.Error(t, s.Delete(context.Background(), ""))
}
