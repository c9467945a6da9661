package listing

import (
	"context"
	"errors"
	"sync"

	"diagdesk/internal/metrics"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateErrored State = "errored"
)

var (
	// ErrDiscarded is returned by Load after the view has been discarded.
	ErrDiscarded = errors.New("view discarded")
	// ErrSuperseded is returned when a newer fetch replaced the rows a caller
	// asked for before it could read them.
	ErrSuperseded = errors.New("list superseded by a newer request")
)

// Ticket identifies one in-flight fetch. Tag names the query whose rows it
// will bring back.
type Ticket struct {
	key string
	tag string
	seq uint64
}

// View holds one fetched collection, its filter and the current page.
type View[T any] struct {
	name string
	seq  *Sequencer

	mu        sync.RWMutex
	state     State
	rows      []T
	tag       string
	held      bool
	filtered  []T
	keep      func(T) bool
	page      int
	size      int
	err       error
	discarded bool
}

// NewView creates an idle view. seq may be shared between views; nil creates a private one.
func NewView[T any](name string, pageSize int, seq *Sequencer) *View[T] {
	if seq == nil {
		seq = NewSequencer()
	}
	return &View[T]{
		name:  name,
		seq:   seq,
		state: StateIdle,
		page:  1,
		size:  pageSize,
	}
}

// Begin moves the view to loading and supersedes any fetch already in flight.
// The view name is the query key.
func (v *View[T]) Begin() Ticket {
	return v.BeginFor("")
}

// BeginFor is Begin for the query named tag.
func (v *View[T]) BeginFor(tag string) Ticket {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.discarded {
		v.state = StateLoading
	}
	return Ticket{key: v.name, tag: tag, seq: v.seq.Next(v.name)}
}

// Resolve applies a fetch result. It reports false when the result was dropped
// because a newer fetch was issued or the view was discarded.
func (v *View[T]) Resolve(t Ticket, rows []T, err error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.discarded {
		return false
	}
	if !v.seq.IsCurrent(t.key, t.seq) || v.state != StateLoading {
		metrics.IncStale(v.name)
		return false
	}

	if err != nil {
		v.state = StateErrored
		v.err = err
		return true
	}
	v.state = StateLoaded
	v.err = nil
	v.rows = rows
	v.tag = t.tag
	v.held = true
	v.refilter()
	return true
}

// Load runs fetch under a fresh ticket and applies the result.
func (v *View[T]) Load(ctx context.Context, fetch func(context.Context) ([]T, error)) error {
	return v.LoadFor(ctx, "", fetch)
}

// LoadFor runs fetch for the query named tag. A result dropped in favour of a
// newer fetch yields ErrSuperseded, never the newer fetch's rows.
func (v *View[T]) LoadFor(ctx context.Context, tag string, fetch func(context.Context) ([]T, error)) error {
	t := v.BeginFor(tag)
	rows, err := fetch(ctx)
	if !v.Resolve(t, rows, err) {
		if v.Discarded() {
			return ErrDiscarded
		}
		return ErrSuperseded
	}
	return err
}

// Holds reports whether the view currently keeps the rows of tag.
func (v *View[T]) Holds(tag string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.held && v.tag == tag && !v.discarded
}

// Query installs keep and moves to page n in one step, and returns that page
// of the rows fetched for tag. It fails with ErrSuperseded when the view
// holds another query's rows.
func (v *View[T]) Query(tag string, keep func(T) bool, n int) (Page[T], error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.discarded {
		return Page[T]{}, ErrDiscarded
	}
	if !v.held || v.tag != tag {
		return Page[T]{}, ErrSuperseded
	}
	v.keep = keep
	v.page = n
	v.refilter()
	return Paginate(v.filtered, v.page, v.size), nil
}

// SetFilter installs a new predicate and returns to page 1.
func (v *View[T]) SetFilter(keep func(T) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keep = keep
	v.page = 1
	v.refilter()
}

// SetPage moves to page n, clamped to the available pages.
func (v *View[T]) SetPage(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.page = Paginate(v.filtered, n, v.size).Number
}

// Page returns the current page of the filtered rows.
func (v *View[T]) Page() Page[T] {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Paginate(v.filtered, v.page, v.size)
}

// Filtered returns every row passing the current filter.
func (v *View[T]) Filtered() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]T(nil), v.filtered...)
}

// Rows returns the unfiltered result set.
func (v *View[T]) Rows() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]T(nil), v.rows...)
}

func (v *View[T]) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *View[T]) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Discard detaches the view; later results are ignored.
func (v *View[T]) Discard() {
	v.mu.Lock()
	v.discarded = true
	v.mu.Unlock()
}

func (v *View[T]) Discarded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.discarded
}

// refilter must be called with mu held.
func (v *View[T]) refilter() {
	v.filtered = Filter(v.rows, v.keep)
	v.page = Paginate(v.filtered, v.page, v.size).Number
}
