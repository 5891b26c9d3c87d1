package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, maxEntries int) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := newRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), RedisOptions{
		MaxEntries: maxEntries,
		TTL:        time.Hour,
	})
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestNewRedisClientConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	rc, err := NewRedisClient(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	require.NoError(t, rc.Ping(context.Background()))
	assert.Equal(t, DefaultMaxEntries, rc.maxEntries)
}

func TestRedisAppendStoresDateKeyedHash(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedis(t, 10)

	require.NoError(t, rc.Append(ctx, sample("p1", 2, 64)))
	require.NoError(t, rc.Append(ctx, sample("p1", 1, 61)))
	require.NoError(t, rc.Append(ctx, sample("p2", 1, 90)))

	dates, err := mr.HKeys("history:p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-01", "2024-02-02"}, dates)
	assert.JSONEq(t, `{"heart_rate": 61}`, onlyHeartRate(t, mr.HGet("history:p1", "2024-02-01")))
	assert.Equal(t, time.Hour, mr.TTL("history:p1"))
	assert.True(t, mr.Exists("history:p2"))
}

func TestRedisAppendReplacesSameDate(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestRedis(t, 10)

	require.NoError(t, rc.Append(ctx, sample("p1", 1, 60)))
	require.NoError(t, rc.Append(ctx, sample("p1", 1, 75)))

	recent, err := rc.Recent(ctx, "p1", "", 7)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 75.0, recent[0].HeartRate)
}

func TestRedisAppendTrimsOldest(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedis(t, 3)

	for _, day := range []int{4, 1, 6, 2, 5, 3} {
		require.NoError(t, rc.Append(ctx, sample("p1", day, float64(day))))
	}

	dates, err := mr.HKeys("history:p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-04", "2024-02-05", "2024-02-06"}, dates)
}

func TestRedisRecentOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestRedis(t, 30)

	for _, day := range []int{5, 1, 3, 2, 4, 6} {
		require.NoError(t, rc.Append(ctx, sample("p1", day, float64(day))))
	}

	recent, err := rc.Recent(ctx, "p1", "", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "2024-02-04", recent[0].Date)
	assert.Equal(t, "2024-02-05", recent[1].Date)
	assert.Equal(t, "2024-02-06", recent[2].Date)

	before, err := rc.Recent(ctx, "p1", "2024-02-04", 7)
	require.NoError(t, err)
	require.Len(t, before, 3)
	assert.Equal(t, "2024-02-01", before[0].Date)
	assert.Equal(t, "2024-02-03", before[2].Date)
	assert.Equal(t, 3.0, before[2].HeartRate)

	unknown, err := rc.Recent(ctx, "nobody", "", 7)
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestRedisRecentErrors(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedis(t, 30)

	mr.HSet("history:p1", "2024-02-01", "not json")
	_, err := rc.Recent(ctx, "p1", "", 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode history entry p1/2024-02-01")

	mr.SetError("ERR injected failure")
	_, err = rc.Recent(ctx, "p2", "", 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load history for patient p2")
	require.Error(t, rc.Append(ctx, sample("p2", 1, 60)))
}

// onlyHeartRate reduces a stored entry to its heart_rate field.
func onlyHeartRate(t *testing.T, stored string) string {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(stored), &entry))
	out, err := json.Marshal(map[string]any{"heart_rate": entry["heart_rate"]})
	require.NoError(t, err)
	return string(out)
}
