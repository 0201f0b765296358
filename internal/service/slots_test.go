package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotLimiter_Bounded(t *testing.T) {
	l := NewSlotLimiter(2)
	assert.Equal(t, 2, l.Size())

	r1, ok := l.TryAcquire()
	require.True(t, ok)
	r2, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, l.InUse())

	_, ok = l.TryAcquire()
	assert.False(t, ok)

	r1()
	r1()
	assert.Equal(t, 1, l.InUse())

	r3, ok := l.TryAcquire()
	require.True(t, ok)
	r2()
	r3()
	assert.Equal(t, 0, l.InUse())
}

func TestSlotLimiter_AcquireHonoursContext(t *testing.T) {
	l := NewSlotLimiter(0)
	assert.Equal(t, 1, l.Size())

	release, ok := l.TryAcquire()
	require.True(t, ok)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.InUse())
}
