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

type payload struct {
	Name string `json:"name"`
}

func TestLayered_L1OnlyRoundTrip(t *testing.T) {
	c := New(nil, time.Minute, time.Minute, "")
	ctx := context.Background()

	var out payload
	assert.False(t, c.Get(ctx, "k1", &out))

	c.Set(ctx, "k1", payload{Name: "order_placed_alert"}, time.Minute)
	assert.True(t, c.Get(ctx, "k1", &out))
	assert.Equal(t, "order_placed_alert", out.Name)

	c.Invalidate(ctx, "k1")
	assert.False(t, c.Get(ctx, "k1", &out))
}

func TestLayered_L2FallbackOnL1Miss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(client, time.Minute, time.Minute, "test:")
	ctx := context.Background()

	c.Set(ctx, "tmpl:order_placed_alert", payload{Name: "hit"}, time.Minute)

	// Simulate a second instance with a cold L1 but warm L2.
	c2 := New(client, time.Minute, time.Minute, "test:")
	var out payload
	assert.True(t, c2.Get(ctx, "tmpl:order_placed_alert", &out))
	assert.Equal(t, "hit", out.Name)
}
