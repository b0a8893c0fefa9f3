package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
)

// inFlightFetch tracks a single upstream fetch that multiple flows may wait for.
type inFlightFetch struct {
	done    chan struct{}
	result  *models.WeatherSnapshot
	err     error
	waiters int
	cancel  context.CancelFunc
}

// requestCoalescer shares one upstream fetch among concurrent callers for the same key.
// The fetch runs detached from any single caller and is cancelled only when every
// waiter has given up.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

// newRequestCoalescer creates a requestCoalescer. timeout bounds how long a caller
// waits for a shared fetch; 0 waits until the caller's context ends.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight fetch for key or starts one with fn. shared reports
// whether the caller joined an existing fetch.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(ctx context.Context) (*models.WeatherSnapshot, error)) (snapshot *models.WeatherSnapshot, shared bool, err error) {
	rc.mu.Lock()
	f, exists := rc.inFlight[key]
	if exists {
		f.waiters++
		observability.FetchCoalescedTotal.Inc()
	} else {
		fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &inFlightFetch{done: make(chan struct{}), waiters: 1, cancel: cancel}
		rc.inFlight[key] = f
		go rc.run(fetchCtx, key, f, fn)
	}
	rc.mu.Unlock()

	waitCtx := ctx
	if rc.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	select {
	case <-f.done:
		return f.result, exists, f.err
	case <-waitCtx.Done():
		rc.leave(key, f)
		return nil, exists, waitCtx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, f *inFlightFetch, fn func(ctx context.Context) (*models.WeatherSnapshot, error)) {
	defer f.cancel()
	defer func() {
		if r := recover(); r != nil {
			f.result, f.err = nil, &panicError{value: r}
		}
		close(f.done)
		rc.cleanup(key, f)
	}()
	f.result, f.err = fn(ctx)
}

// leave drops one waiter. The last waiter out cancels the fetch and unregisters it
// so later callers start fresh instead of joining a cancelled fetch.
func (rc *requestCoalescer) leave(key string, f *inFlightFetch) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if rc.inFlight[key] == f {
		delete(rc.inFlight, key)
	}
}

// cleanup removes the in-flight fetch for key if it is still f.
func (rc *requestCoalescer) cleanup(key string, f *inFlightFetch) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.inFlight[key] == f {
		delete(rc.inFlight, key)
	}
}
