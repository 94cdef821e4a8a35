package effects

import (
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// runningEffect is one started instance of an effect.
//
// All fields are owned by the loop goroutine; dispatchers only carry the
// pointer.
type runningEffect[V any] struct {
	id     uuid.UUID
	key    Key
	effect Effect[V]
	cancel CancelFunc
	// done is set once the effect reported completion; a done instance is
	// never kept.
	done bool
	// live is true while the instance occupies the registry.
	live bool
}

// stop marks the instance dead and runs its teardown. Dispatches the
// teardown itself issues are therefore already stale.
func (r *runningEffect[V]) stop() error {
	if !r.live {
		return nil
	}
	r.live = false
	cancel := r.cancel
	r.cancel = nil
	if cancel == nil {
		return nil
	}
	return guard(ErrCancel, string(r.key), func() error {
		cancel()
		return nil
	})
}

// registry is the ordered set of running instances of one loop. Order is the
// order of the desired list that produced them.
type registry[V any] struct {
	entries []*runningEffect[V]
}

func (r *registry[V]) len() int {
	return len(r.entries)
}

// snapshot returns a copy of the entries, safe to consume while the registry
// is being rebuilt.
func (r *registry[V]) snapshot() []*runningEffect[V] {
	out := make([]*runningEffect[V], len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *registry[V]) replace(entries []*runningEffect[V]) {
	r.entries = entries
}

// drain empties the registry and returns what it held.
func (r *registry[V]) drain() []*runningEffect[V] {
	entries := r.entries
	r.entries = nil
	return entries
}

// stopAll stops every instance in order, even if an earlier one fails.
func stopAll[V any](entries []*runningEffect[V]) error {
	var errs error
	for _, entry := range entries {
		errs = multierr.Append(errs, entry.stop())
	}
	return errs
}

// takeMatch finds the first reusable instance for eff in remaining. It
// returns the instance, or nil, and remaining without it. Done instances are
// never reusable.
func takeMatch[V any](
	remaining []*runningEffect[V],
	eff Effect[V],
	key Key,
	equal EqualFunc[V],
) (*runningEffect[V], []*runningEffect[V]) {
	for i, entry := range remaining {
		if entry.done {
			continue
		}
		same := entry.key == key
		if equal != nil {
			same = equal(entry.effect, eff)
		}
		if !same {
			continue
		}
		rest := append(remaining[:i:i], remaining[i+1:]...)
		return entry, rest
	}
	return nil, remaining
}
