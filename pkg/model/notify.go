package model

import (
	"github.com/koskimas/strata/internal/maps"
	"github.com/koskimas/strata/internal/ref"
	"go.uber.org/zap"
)

// Change describes a change of the resolved value at a subscribed path. Both
// values are plain data.
type Change struct {
	Path string
	Old  any
	New  any
}

type subscription struct {
	path   *ref.SchemaPath
	last   any
	fn     func(Change)
	active bool
}

// OnChange calls `fn` whenever the resolved value at `path` changes. Writes
// that leave the resolved value as it was, like writes shadowed by a stratum
// of higher precedence, do not call `fn`. Within a Batch, `fn` is called at
// most once, after the batch. The returned function cancels the
// subscription.
func (m *Model) OnChange(path string, fn func(Change)) (func(), error) {
	sp, err := m.resolvePath(path)
	if err != nil {
		return nil, err
	}

	v, _ := m.get(sp)

	sub := &subscription{
		path:   sp,
		last:   Plain(v),
		fn:     fn,
		active: true,
	}

	root := sp.Path.Root()
	m.subs[root] = append(m.subs[root], sub)

	return func() { m.unsubscribe(root, sub) }, nil
}

func (m *Model) unsubscribe(root string, sub *subscription) {
	sub.active = false

	subs := m.subs[root]
	for i, s := range subs {
		if s == sub {
			m.subs[root] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}

	if len(m.subs[root]) == 0 {
		delete(m.subs, root)
	}
}

// Batch runs `fn` and defers change notifications until it returns, so each
// subscriber is notified at most once for all writes `fn` makes. Batches
// nest; notifications are sent when the outermost batch ends, also when `fn`
// fails.
func (m *Model) Batch(fn func() error) error {
	m.batchDepth++

	defer func() {
		m.batchDepth--
		if m.batchDepth == 0 {
			m.flush()
		}
	}()

	return fn()
}

// touch invalidates the resolution of the top level trait `id` after a write
// and notifies its subscribers unless a batch is running.
func (m *Model) touch(id string) {
	m.invalidate(id)
	m.pending[id] = true

	if m.batchDepth == 0 {
		m.flush()
	}
}

func (m *Model) flush() {
	if len(m.pending) == 0 {
		return
	}

	pending := m.pending
	m.pending = make(map[string]bool)

	changes := make([]func(), 0)

	for _, root := range maps.SortedKeys(pending) {
		for _, sub := range m.subs[root] {
			v, _ := m.get(sub.path)
			next := Plain(v)

			if equal(sub.last, next) {
				continue
			}

			change := Change{
				Path: sub.path.Path.String(),
				Old:  sub.last,
				New:  next,
			}

			sub.last = next

			s := sub
			changes = append(changes, func() {
				if s.active {
					s.fn(change)
				}
			})
		}
	}

	if len(changes) > 0 {
		m.log.Debug("notifying subscribers", zap.Int("changes", len(changes)), zap.Int("traits", len(pending)))
	}

	for _, c := range changes {
		c()
	}
}
