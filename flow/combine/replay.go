package combine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/google/uuid"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// ErrAlreadyConnected is returned by a second Replay.Connect.
var ErrAlreadyConnected = errors.New("replay is already connected")

// Replay records the items of one source and replays them to subscribers.
// A subscriber first receives the recorded history, then every later item
// until the source ends. With a positive size only the most recent size
// items are kept; otherwise history is unbounded.
//
// Live items are queued per subscriber without bound, so a slow subscriber
// never holds back the source or the others.
type Replay[T any] struct {
	mu        sync.Mutex
	size      int
	history   *deque.Deque[T]
	subs      map[uuid.UUID]*core.Queue[T]
	connected bool
	closed    bool
	err       error
}

// NewReplay creates a Replay keeping the last size items, or all of them
// when size <= 0.
func NewReplay[T any](size int) *Replay[T] {
	return &Replay[T]{
		size:    size,
		history: deque.New[T](),
		subs:    make(map[uuid.UUID]*core.Queue[T]),
	}
}

// Connect reads src into the replay until it ends and returns its error.
// Cancelling ctx stops the read and ends every subscription with the
// context's error.
func (r *Replay[T]) Connect(ctx context.Context, src core.Stream[T]) error {
	r.mu.Lock()
	if r.connected {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	r.connected = true
	r.mu.Unlock()

	for res := range src.Emit(ctx) {
		switch {
		case res.IsValue():
			r.publish(res.Value())
		case res.IsError():
			r.close(res.Error())
			return res.Error()
		}
	}
	r.close(ctx.Err())
	return ctx.Err()
}

// History returns a copy of the recorded items.
func (r *Replay[T]) History() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]T, 0, r.history.Len())
	for i := 0; i < r.history.Len(); i++ {
		items = append(items, r.history.At(i))
	}
	return items
}

func (r *Replay[T]) publish(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.history.PushBack(v)
	if r.size > 0 && r.history.Len() > r.size {
		r.history.PopFront()
	}
	for _, q := range r.subs {
		q.Push(v)
	}
}

// close ends the recording; only the first call counts.
func (r *Replay[T]) close(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed, r.err = true, err
	for _, q := range r.subs {
		q.Close(err)
	}
}

// Subscribe returns a stream of the recorded history followed by live
// items. Each Emit of the returned stream is a new subscription.
func (r *Replay[T]) Subscribe() core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], core.BufferSize(ctx))
		id, sub := r.attach()

		go func() {
			defer close(out)
			defer r.detach(id)
			for {
				v, ok, err := sub.Next(ctx)
				switch {
				case ok:
					if !core.Send(ctx, out, core.Ok(v)) {
						return
					}
				case err != nil && ctx.Err() == nil:
					core.Send(ctx, out, core.Err[T](err))
					return
				default:
					return
				}
			}
		}()
		return out
	})
}

// attach registers a subscriber whose queue starts with the current history.
func (r *Replay[T]) attach() (uuid.UUID, *core.Queue[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := core.NewQueue[T]()
	for i := 0; i < r.history.Len(); i++ {
		sub.Push(r.history.At(i))
	}
	if r.closed {
		sub.Close(r.err)
	}
	id := uuid.New()
	r.subs[id] = sub
	return id, sub
}

func (r *Replay[T]) detach(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// Subscribers returns the number of active subscriptions.
func (r *Replay[T]) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// ReplayFlow passes items through unchanged while recording them into a
// new Replay of the given size, which is returned alongside. Late
// subscribers of the Replay receive the recorded history and then the
// items still to come. The recording ends with the first run of the flow.
func ReplayFlow[T any](size int) (flow.Flow[T, T], *Replay[T]) {
	r := NewReplay[T](size)
	r.connected = true

	f := flow.New(fmt.Sprintf("replay(%d)", size), func(_ context.Context, in flow.Stream[T]) flow.Stream[T] {
		return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
			out := make(chan core.Result[T], core.BufferSize(ctx))
			ctx, cancel := context.WithCancel(ctx)
			upstream := in.Emit(ctx)

			go func() {
				defer close(out)
				defer cancel()

				for res := range upstream {
					switch {
					case res.IsValue():
						r.publish(res.Value())
					case res.IsError():
						r.close(res.Error())
					}
					if !core.Send(ctx, out, res) || res.IsError() {
						break
					}
				}
				r.close(ctx.Err())
			}()
			return out
		})
	})
	return f, r
}
