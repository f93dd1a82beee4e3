package cache_test

import (
	"testing"
	"time"

	"github.com/smallbiznis/fanbase/internal/cache"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsStoredValueUntilExpiry(t *testing.T) {
	c := cache.NewTTLCache[string, int]()
	c.Set("a", 1, time.Hour)

	got, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, got)

	_, ok = c.Get("missing")
	require.False(t, ok)
}

func TestExpiredEntryIsDropped(t *testing.T) {
	c := cache.NewTTLCache[string, int]()
	c.Set("a", 1, time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestSetWithNonPositiveTTLIsIgnored(t *testing.T) {
	c := cache.NewTTLCache[string, int]()
	c.Set("a", 1, 0)

	_, ok := c.Get("a")
	require.False(t, ok)
}
