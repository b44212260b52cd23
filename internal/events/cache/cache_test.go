package cache

import (
	"context"
	"testing"
	"time"

	"ms-events/internal/filter"
	"ms-events/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func sampleEvent() *models.Event {
	e := &models.Event{ID: 1, UUID: "7d3c3a2e-5b8c-4f3e-9d55-0f1c6b1b7a11"}
	return e.SetTitle("DrupalCon New Orleans").
		SetDate(time.Date(2016, 5, 9, 9, 0, 0, 0, time.UTC)).
		SetDescription("<p>Hi</p>", filter.BasicHTML)
}

func TestRedis_SetAndGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewRedis(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleEvent()))

	got, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleEvent().UUID, got.UUID)
	assert.Equal(t, "DrupalCon New Orleans", got.Title())
	assert.Equal(t, "2016-05-09T09:00:00", got.StoredDate)
	assert.Equal(t, filter.BasicHTML, got.DescriptionFormat)
}

func TestRedis_Miss(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewRedis(client, time.Minute)

	got, ok, err := c.Get(context.Background(), 42)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestRedis_TTLAndDelete(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedis(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleEvent()))
	assert.Equal(t, time.Minute, mr.TTL("event:1"))

	require.NoError(t, c.Delete(ctx, 1))
	assert.False(t, mr.Exists("event:1"))
}

func TestRedis_SetAfterDeleteIsRefused(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedis(client, time.Minute)
	ctx := context.Background()

	// A load read the old row, then a save evicted before the load cached it.
	stale := sampleEvent()
	require.NoError(t, c.Delete(ctx, 1))
	require.NoError(t, c.Set(ctx, stale))

	assert.False(t, mr.Exists("event:1"))
	_, ok, err := c.Get(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(DefaultTombstoneTTL + time.Second)
	require.NoError(t, c.Set(ctx, sampleEvent()))
	assert.True(t, mr.Exists("event:1"))
	assert.Equal(t, time.Minute, mr.TTL("event:1"))
}

func TestRedis_ExpiredEntryIsMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedis(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleEvent()))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_CorruptEntryIsMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedis(client, time.Minute)

	require.NoError(t, mr.Set("event:1", "{not json"))

	_, ok, err := c.Get(context.Background(), 1)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("event:1"))
}
