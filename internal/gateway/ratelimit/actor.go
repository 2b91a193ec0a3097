package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/blackroad-os/edge-router/pkg/contracts"
)

// ErrUnavailable is returned by Allow when the actor could not process a
// request before its context deadline — the gateway must treat this as
// fail-open (spec.md §1, §5): allow the request and emit
// rate_limit.unavailable rather than block the caller.
var ErrUnavailable = errors.New("ratelimit: actor unavailable")

const requestQueueDepth = 256

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type request struct {
	ctx      context.Context
	identity string
	limit    int
	window   time.Duration
	reply    chan response
}

type response struct {
	result Result
	err    error
}

// Actor is the single writer for every rate-limit bucket: all increments
// flow through its one goroutine as serialized messages, so the counter
// for a given identity is never updated concurrently (spec.md §5).
type Actor struct {
	store  contracts.BucketStore
	reqCh  chan request
	stopCh chan struct{}
}

// NewActor constructs an Actor backed by store (a MemoryBucketStore for a
// single instance, or a RedisBucketStore shared across instances).
func NewActor(store contracts.BucketStore) *Actor {
	return &Actor{
		store:  store,
		reqCh:  make(chan request, requestQueueDepth),
		stopCh: make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled or Stop is called. It must
// be started in its own goroutine before the gateway serves traffic.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case req := <-a.reqCh:
			req.reply <- a.process(req)
		}
	}
}

// Stop halts the actor's Run loop.
func (a *Actor) Stop() {
	close(a.stopCh)
}

func (a *Actor) process(req request) response {
	windowStart := time.Now().Truncate(req.window)
	count, err := a.store.Increment(req.ctx, req.identity, windowStart, req.window)
	if err != nil {
		return response{err: err}
	}

	remaining := req.limit - count
	if remaining < 0 {
		remaining = 0
	}
	allowed := count <= req.limit
	retryAfter := time.Duration(0)
	if !allowed {
		retryAfter = windowStart.Add(req.window).Sub(time.Now())
		if retryAfter < 0 {
			retryAfter = 0
		}
	}
	return response{result: Result{Allowed: allowed, Remaining: remaining, RetryAfter: retryAfter}}
}

// Allow submits one increment for identity within the given limit/window
// and blocks for the actor's reply. If the actor's queue is full or ctx is
// cancelled before a reply arrives, it returns ErrUnavailable — the
// gateway must fail open on this error, never fail closed.
func (a *Actor) Allow(ctx context.Context, identity string, limit int, window time.Duration) (Result, error) {
	req := request{ctx: ctx, identity: identity, limit: limit, window: window, reply: make(chan response, 1)}

	select {
	case a.reqCh <- req:
	case <-ctx.Done():
		// Fires when ctx is already done at submit time; the result is the
		// same fail-open ErrUnavailable as the default arm.
		return Result{}, ErrUnavailable
	default:
		return Result{}, ErrUnavailable
	}

	select {
	case resp := <-req.reply:
		if resp.err != nil {
			return Result{}, ErrUnavailable
		}
		return resp.result, nil
	case <-ctx.Done():
		return Result{}, ErrUnavailable
	}
}
