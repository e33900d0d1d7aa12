package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	ErrUnavailable = errors.New("asset unavailable")
	ErrNoLocation  = errors.New("asset has no location")
)

// State is the loading state of a single asset instance.
//
//	Pending -> LoadedPrimary
//	Pending -> TryingSecondary -> LoadedSecondary
//	Pending -> TryingSecondary -> Unavailable
type State int

const (
	StatePending State = iota
	StateLoadedPrimary
	StateTryingSecondary
	StateLoadedSecondary
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoadedPrimary:
		return "loaded_primary"
	case StateTryingSecondary:
		return "trying_secondary"
	case StateLoadedSecondary:
		return "loaded_secondary"
	case StateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateLoadedPrimary || s == StateLoadedSecondary || s == StateUnavailable
}

// LoadFunc attempts to load one URL. A nil error means the asset loaded.
type LoadFunc func(ctx context.Context, url string) error

type Attempt struct {
	URL string
	Err error
}

type Resolution struct {
	State    State
	URL      string
	Attempts []Attempt
}

func (r Resolution) Loaded() bool {
	return r.State == StateLoadedPrimary || r.State == StateLoadedSecondary
}

// Err is nil for a loaded asset and wraps ErrUnavailable otherwise.
func (r Resolution) Err() error {
	if r.Loaded() {
		return nil
	}
	if len(r.Attempts) == 0 {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, r.Attempts[len(r.Attempts)-1].Err)
}

// Slot is one presentation slot for an asset. It walks the state machine at
// most once; onUnavailable runs exactly once when the slot ends unavailable.
type Slot struct {
	pair          Pair
	onUnavailable func()

	mu       sync.Mutex
	state    State
	url      string
	attempts []Attempt
	hideOnce sync.Once
}

func NewSlot(pair Pair, onUnavailable func()) *Slot {
	return &Slot{
		pair:          pair,
		onUnavailable: onUnavailable,
		state:         StatePending,
	}
}

func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolve tries the primary URL and, only if that fails, the secondary URL.
// There is no third attempt. Calling Resolve on a slot that already reached
// a terminal state returns that state without loading again.
func (s *Slot) Resolve(ctx context.Context, load LoadFunc) Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return s.resolution()
	}

	steps := []struct {
		url     string
		success State
		failure State
	}{
		{s.pair.PrimaryURL, StateLoadedPrimary, StateTryingSecondary},
		{s.pair.SecondaryURL, StateLoadedSecondary, StateUnavailable},
	}

	for _, step := range steps {
		err := s.attempt(ctx, load, step.url)
		s.attempts = append(s.attempts, Attempt{URL: step.url, Err: err})
		if err == nil {
			s.state = step.success
			s.url = step.url
			return s.resolution()
		}
		s.state = step.failure
	}

	s.markUnavailable()
	return s.resolution()
}

// MarkUnavailable forces the slot into its terminal unavailable state, for
// example when a renderer fails to decode an asset that did load. Repeated
// calls are no-ops.
func (s *Slot) MarkUnavailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markUnavailable()
}

func (s *Slot) markUnavailable() {
	s.state = StateUnavailable
	s.url = ""
	s.hideOnce.Do(func() {
		if s.onUnavailable != nil {
			s.onUnavailable()
		}
	})
}

func (s *Slot) attempt(ctx context.Context, load LoadFunc, url string) error {
	if url == "" {
		return ErrNoLocation
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return load(ctx, url)
}

func (s *Slot) resolution() Resolution {
	attempts := make([]Attempt, len(s.attempts))
	copy(attempts, s.attempts)
	return Resolution{State: s.state, URL: s.url, Attempts: attempts}
}

// ResolveWithFallback runs a fresh slot for pair.
func ResolveWithFallback(ctx context.Context, pair Pair, load LoadFunc) Resolution {
	return NewSlot(pair, nil).Resolve(ctx, load)
}

// ResolveAll resolves independent slots concurrently. Completion order does
// not matter; results line up with the slots argument.
func ResolveAll(ctx context.Context, load LoadFunc, slots ...*Slot) []Resolution {
	results := make([]Resolution, len(slots))

	var g errgroup.Group
	for i, slot := range slots {
		g.Go(func() error {
			results[i] = slot.Resolve(ctx, load)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
