package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type flakyBroker struct {
	err   error
	calls int
}

func (b *flakyBroker) Publish(context.Context, Broadcast) error {
	b.calls++
	return b.err
}

func TestBreakerOpensAfterThresholdAndRecovers(t *testing.T) {
	inner := &flakyBroker{err: errors.New("redis down")}
	br := NewBreakerBroker(inner, BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	br.now = func() time.Time { return clock }

	ctx := context.Background()
	assert.Error(t, br.Publish(ctx, Broadcast{}))
	assert.Error(t, br.Publish(ctx, Broadcast{}))
	assert.Equal(t, "open", br.State())

	// open circuit fails fast without touching redis
	assert.ErrorIs(t, br.Publish(ctx, Broadcast{}), ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)

	// after cooldown a trial call goes through and closes the circuit
	clock = clock.Add(2 * time.Minute)
	inner.err = nil
	assert.NoError(t, br.Publish(ctx, Broadcast{}))
	assert.Equal(t, "closed", br.State())
	assert.Equal(t, 3, inner.calls)
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	inner := &flakyBroker{err: errors.New("still down")}
	br := NewBreakerBroker(inner, BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})

	clock := time.Now()
	br.now = func() time.Time { return clock }

	ctx := context.Background()
	assert.Error(t, br.Publish(ctx, Broadcast{}))
	assert.Equal(t, "open", br.State())

	clock = clock.Add(2 * time.Second)
	assert.Error(t, br.Publish(ctx, Broadcast{}))
	assert.Equal(t, "open", br.State())
	assert.ErrorIs(t, br.Publish(ctx, Broadcast{}), ErrCircuitOpen)
}
