package eventrelay

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestDecode(t *testing.T) {
	ch := subscriptions.Change{
		Kind:    subscriptions.ChangePreference,
		UserID:  primitive.NewObjectID(),
		OrgID:   primitive.NewObjectID(),
		GroupID: primitive.NewObjectID(),
		Value:   true,
	}
	payload, err := encode("instance-a", ch)
	require.NoError(t, err)

	got, ok, err := decode("instance-b", payload)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ch, got)

	_, ok, err = decode("instance-a", payload)
	require.NoError(t, err)
	assert.False(t, ok, "own messages are skipped")

	_, _, err = decode("instance-b", `{"origin":"x","change":{"kind":"bogus"}}`)
	assert.Error(t, err)

	_, _, err = decode("instance-b", "not json")
	assert.Error(t, err)
}

type recordingApplier struct {
	mu      sync.Mutex
	changes []subscriptions.Change
}

func (a *recordingApplier) ApplyRemote(ch subscriptions.Change) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, ch)
}

func (a *recordingApplier) snapshot() []subscriptions.Change {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]subscriptions.Change(nil), a.changes...)
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("ALERTHUB_TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis unavailable (%s): %v", url, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRelay_DeliversToOtherInstances(t *testing.T) {
	client := testRedis(t)
	channel := "alerthub-test-" + primitive.NewObjectID().Hex()
	ctx := context.Background()

	a := New(client, channel, zap.NewNop())
	b := New(client, channel, zap.NewNop())
	appliedA, appliedB := &recordingApplier{}, &recordingApplier{}
	require.NoError(t, a.Start(ctx, appliedA))
	defer a.Stop()
	require.NoError(t, b.Start(ctx, appliedB))
	defer b.Stop()

	ch := subscriptions.Change{Kind: subscriptions.ChangeFollow, UserID: primitive.NewObjectID(), OrgID: primitive.NewObjectID(), Value: true}
	require.NoError(t, a.Publish(ctx, ch))

	require.Eventually(t, func() bool { return len(appliedB.snapshot()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, ch, appliedB.snapshot()[0])
	assert.Empty(t, appliedA.snapshot(), "publisher must not apply its own change")
}

func TestRelay_StopWithoutStart(t *testing.T) {
	r := New(nil, "unused", zap.NewNop())
	r.Stop()
}
