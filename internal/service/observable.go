package service

import (
	"sync"
	"sync/atomic"
)

// Observable holds a current value that readers load without locking and that
// subscribers receive over channels. A slow subscriber only ever misses
// intermediate values: when its buffer is full the oldest pending value is dropped.
type Observable[T any] struct {
	value atomic.Pointer[T]
	clone func(T) T

	mu     sync.Mutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// NewObservable creates an Observable holding initial. T must be safe to share.
func NewObservable[T any](initial T) *Observable[T] {
	return NewCopyingObservable(initial, nil)
}

// NewCopyingObservable creates an Observable for values with shared backing
// data. clone is applied on Set and again on every read and delivery, so no two
// holders ever alias the stored value.
func NewCopyingObservable[T any](initial T, clone func(T) T) *Observable[T] {
	o := &Observable[T]{subs: make(map[uint64]chan T), clone: clone}
	initial = o.copy(initial)
	o.value.Store(&initial)
	return o
}

func (o *Observable[T]) copy(v T) T {
	if o.clone == nil {
		return v
	}
	return o.clone(v)
}

// Value returns the current value.
func (o *Observable[T]) Value() T {
	return o.copy(*o.value.Load())
}

// Set stores v and delivers it to every subscriber.
func (o *Observable[T]) Set(v T) {
	v = o.copy(v)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value.Store(&v)
	for _, ch := range o.subs {
		offer(ch, o.copy(v))
	}
}

// offer sends without blocking, evicting the oldest buffered value if needed.
// Only Set sends, and Set holds o.mu, so the retry cannot lose to another sender.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Subscribe returns a channel that first receives the current value and then every
// subsequent Set. buffer below 1 is raised to 1. Call the returned func to unsubscribe;
// it closes the channel.
func (o *Observable[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	ch <- o.copy(*o.value.Load())

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if sub, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(sub)
			}
		})
	}
}

// Close closes every subscriber channel. Later Subscribe calls get a closed channel.
func (o *Observable[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}
