package main

import "sync"

// ProgressEvent reports stage progress within a run
type ProgressEvent struct {
	RunID   string
	Phase   Phase
	Stage   Stage
	Label   string
	Percent int
}

// Subscription is returned by every On* registration; Unsubscribe is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops delivery to the listener
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Broadcaster delivers values synchronously, in emission order, to every
// listener registered at the time of emission.
type Broadcaster[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]func(T)
	order     []uint64
}

// Subscribe registers fn and returns its unsubscribe token
func (b *Broadcaster[T]) Subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[uint64]func(T))
	}
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.order = append(b.order, id)
	return &Subscription{cancel: func() { b.remove(id) }}
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
}

// Emit calls listeners outside the lock so they may (un)subscribe re-entrantly.
func (b *Broadcaster[T]) Emit(v T) {
	b.mu.Lock()
	fns := make([]func(T), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of active listeners
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Events groups the four event categories a pipeline publishes
type Events struct {
	stateChange Broadcaster[WorkflowState]
	progress    Broadcaster[ProgressEvent]
	errors      Broadcaster[Diagnostic]
	complete    Broadcaster[[]File]
}

// OnStateChange receives a snapshot after every state transition
func (e *Events) OnStateChange(fn func(WorkflowState)) *Subscription {
	return e.stateChange.Subscribe(fn)
}

// OnProgress receives stage progress
func (e *Events) OnProgress(fn func(ProgressEvent)) *Subscription {
	return e.progress.Subscribe(fn)
}

// OnError receives diagnostics, fatal or not
func (e *Events) OnError(fn func(Diagnostic)) *Subscription {
	return e.errors.Subscribe(fn)
}

// OnComplete receives the emitted files once per completed run
func (e *Events) OnComplete(fn func([]File)) *Subscription {
	return e.complete.Subscribe(fn)
}
