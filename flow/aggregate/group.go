package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// Group is one key's items, in arrival order.
type Group[K comparable, T any] struct {
	Key   K
	Items []T
}

type groupConfig struct {
	MaxSize int           `validate:"gte=0"`
	Idle    time.Duration `validate:"gte=0"`
}

// GroupOption configures GroupBy.
type GroupOption func(*groupConfig)

// WithMaxGroupSize emits a group as soon as it holds n items. Zero disables
// the limit.
func WithMaxGroupSize(n int) GroupOption {
	return func(c *groupConfig) {
		c.MaxSize = n
	}
}

// WithGroupIdle emits a group once it has received no item for d. Zero
// disables idle flushing.
func WithGroupIdle(d time.Duration) GroupOption {
	return func(c *groupConfig) {
		c.Idle = d
	}
}

// GroupBy collects items by key. A group is emitted when it reaches the
// maximum size, when it has been idle for the configured duration, or when
// the stream ends; at the end, remaining groups are emitted in the order
// their keys were first seen. With no options every group is held until the
// end of the stream. A key that was flushed starts a new group when it
// shows up again.
func GroupBy[T any, K comparable](keyFn func(T) K, opts ...GroupOption) flow.Flow[T, Group[K, T]] {
	if keyFn == nil {
		panic(core.Misconfigured("group_by", "nil key function"))
	}
	var cfg groupConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	core.MustValidate("group_by", cfg)

	name := fmt.Sprintf("group_by(%s)", flow.FuncName(keyFn))
	return stage(name, func(ctx context.Context, upstream <-chan core.Result[T], out sink[Group[K, T]]) {
		groups := newGroupSet[K, T]()

		var (
			timer *time.Timer
			idle  <-chan time.Time
		)
		if cfg.Idle > 0 {
			timer = time.NewTimer(cfg.Idle)
			timer.Stop()
			defer timer.Stop()
			idle = timer.C
		}
		rearm := func() {
			if timer == nil {
				return
			}
			timer.Stop()
			if oldest, ok := groups.oldest(); ok {
				timer.Reset(time.Until(oldest.Add(cfg.Idle)))
			}
		}
		sendAll := func(gs []Group[K, T]) bool {
			for _, g := range gs {
				if !out.send(g) {
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-idle:
				if !sendAll(groups.takeIdle(time.Now(), cfg.Idle)) {
					return
				}
				rearm()
			case res, ok := <-upstream:
				if !ok {
					if ctx.Err() == nil {
						sendAll(groups.takeAll())
					}
					return
				}
				if !res.IsValue() {
					if !passOn(out, res) {
						return
					}
					continue
				}

				v := res.Value()
				key, err := protect(name, func() K { return keyFn(v) })
				if err != nil {
					out.fail(err)
					return
				}
				if n := groups.add(key, v, time.Now()); cfg.MaxSize > 0 && n >= cfg.MaxSize {
					if !out.send(groups.take(key)) {
						return
					}
				}
				rearm()
			}
		}
	})
}

type pendingGroup[T any] struct {
	items []T
	last  time.Time
}

// groupSet holds open groups and the order their keys were first seen.
type groupSet[K comparable, T any] struct {
	order []K
	byKey map[K]*pendingGroup[T]
}

func newGroupSet[K comparable, T any]() *groupSet[K, T] {
	return &groupSet[K, T]{byKey: make(map[K]*pendingGroup[T])}
}

// add appends v to key's group and returns the group's new size.
func (s *groupSet[K, T]) add(key K, v T, now time.Time) int {
	g, ok := s.byKey[key]
	if !ok {
		g = &pendingGroup[T]{}
		s.byKey[key] = g
		s.order = append(s.order, key)
	}
	g.items = append(g.items, v)
	g.last = now
	return len(g.items)
}

func (s *groupSet[K, T]) take(key K) Group[K, T] {
	g := s.byKey[key]
	delete(s.byKey, key)
	s.order = lo.Without(s.order, key)
	return Group[K, T]{Key: key, Items: g.items}
}

func (s *groupSet[K, T]) takeIdle(now time.Time, idle time.Duration) []Group[K, T] {
	expired := lo.Filter(s.order, func(key K, _ int) bool {
		return now.Sub(s.byKey[key].last) >= idle
	})
	return lo.Map(expired, func(key K, _ int) Group[K, T] { return s.take(key) })
}

func (s *groupSet[K, T]) takeAll() []Group[K, T] {
	all := lo.Map(s.order, func(key K, _ int) Group[K, T] {
		return Group[K, T]{Key: key, Items: s.byKey[key].items}
	})
	s.order = nil
	clear(s.byKey)
	return all
}

// oldest returns the earliest last-update time among open groups.
func (s *groupSet[K, T]) oldest() (time.Time, bool) {
	if len(s.order) == 0 {
		return time.Time{}, false
	}
	return lo.MinBy(lo.Values(s.byKey), func(a, b *pendingGroup[T]) bool {
		return a.last.Before(b.last)
	}).last, true
}
