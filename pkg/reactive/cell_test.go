package reactive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValueBeforeSet(t *testing.T) {
	c := NewCell[int]()
	require.False(t, c.Ready())
	_, err := c.Value()
	require.ErrorIs(t, err, ErrNotReady)
}

func TestSetAndGet(t *testing.T) {
	c := NewCell[string]()
	c.Set("a")
	require.True(t, c.Ready())
	v, err := c.Value()
	require.NoError(t, err)
	require.Equal(t, "a", v)
	c.Set("b")
	v, err = c.Value()
	require.NoError(t, err)
	require.Equal(t, "b", v)
}

func TestSubscribe(t *testing.T) {
	c := NewCell[int]()
	var got []int
	cancel := c.Subscribe(func(v int) { got = append(got, v) })
	c.Set(1)
	c.Set(1) // content-equal values still notify
	c.Set(2)
	cancel()
	c.Set(3)
	require.Equal(t, []int{1, 1, 2}, got)
}

func TestAwaitReady(t *testing.T) {
	c := NewCell[int]()
	ctx, cf := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cf()
	require.Error(t, c.AwaitReady(ctx))

	done := make(chan error, 1)
	go func() { done <- c.AwaitReady(context.Background()) }()
	c.Set(7)
	require.NoError(t, <-done)
	// Already ready: returns immediately.
	require.NoError(t, c.AwaitReady(context.Background()))
}

func TestAwaitUpdate(t *testing.T) {
	c := NewCell[int]()
	c.Set(1)
	done := make(chan error, 1)
	go func() { done <- c.AwaitUpdate(context.Background()) }()
	// Give the waiter time to subscribe before the update lands.
	time.Sleep(10 * time.Millisecond)
	c.Set(2)
	require.NoError(t, <-done)
}
