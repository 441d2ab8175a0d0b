package realtime

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type Broker interface {
	Publish(ctx context.Context, b Broadcast) error
}

type BreakerConfig struct {
	Timeout          time.Duration // hard timeout per publish
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half_open"
)

// BreakerBroker stops calling a failing broker for a cooldown period so
// document writes do not wait on a dead Redis.
type BreakerBroker struct {
	inner Broker
	cfg   BreakerConfig
	now   func() time.Time

	mu                  sync.Mutex
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewBreakerBroker(inner Broker, cfg BreakerConfig) *BreakerBroker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &BreakerBroker{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: stateClosed,
	}
}

func (b *BreakerBroker) Publish(ctx context.Context, bc Broadcast) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	pubCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	err := b.inner.Publish(pubCtx, bc)
	b.afterRequest(err)

	return err
}

func (b *BreakerBroker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.state)
}

func (b *BreakerBroker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = stateHalfOpen
		b.halfOpenInFlight = 1
		return true
	case stateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (b *BreakerBroker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if err == nil {
		b.consecutiveFailures = 0
		b.state = stateClosed
		return
	}

	b.consecutiveFailures++

	// a failed trial reopens immediately
	if b.state == stateHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}
