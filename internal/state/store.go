package state

import (
	"sync"
	"time"

	"github.com/tunelab/genrescope/internal/backend"
	"github.com/tunelab/genrescope/internal/media"
)

// Phase is the step a submission has reached. The zero value is PhaseIdle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProbing
	PhaseUploading
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProbing:
		return "probing"
	case PhaseUploading:
		return "uploading"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Diagnostic is the outcome of a standalone connectivity test.
type Diagnostic struct {
	Seq       uint64
	Running   bool
	OK        bool
	Message   string
	Health    backend.Health
	CheckedAt time.Time
}

// State is the value the UI renders. It is replaced wholesale on every
// transition and never mutated in place.
type State struct {
	Phase        Phase
	Progress     int
	Result       *backend.Prediction
	ErrorMessage string

	// File is the chosen payload, kept across terminal phases so the user can
	// resubmit it.
	File *media.File

	// Generation increases every time a submission starts, is reset, or a new
	// file is chosen. Asynchronous work only lands if its generation is current.
	Generation   uint64
	SubmissionID string

	Diagnostic Diagnostic
	UpdatedAt  time.Time
}

// Busy reports whether a submission is in flight.
func (s State) Busy() bool {
	return s.Phase == PhaseProbing || s.Phase == PhaseUploading
}

// Terminal reports whether the current submission has finished.
func (s State) Terminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}

// Store holds the current State and fans transitions out to subscribers.
// The zero value is ready to use.
type Store struct {
	// writeMu serializes Update calls end to end, including notification, so
	// subscribers observe transitions in the order they were applied.
	writeMu sync.Mutex

	mu    sync.RWMutex
	state State

	subMu  sync.Mutex
	subs   []subscriber
	nextID uint64
}

type subscriber struct {
	id uint64
	fn func(State)
}

// Update applies fn to the current state. When fn returns false the state is
// left alone and nobody is notified. Subscribers run on the caller's goroutine
// after the new state is visible to Snapshot; they must not call Update.
func (s *Store) Update(fn func(State) (State, bool)) (State, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.Snapshot()
	next, ok := fn(cur)
	if !ok {
		return cur, false
	}
	next.UpdatedAt = time.Now()

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	for _, sub := range s.subscribers() {
		sub.fn(clone(next))
	}
	return clone(next), true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.state)
}

// Subscribe registers fn for every applied transition. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) subscribers() []subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	dup := make([]subscriber, len(s.subs))
	copy(dup, s.subs)
	return dup
}

func clone(st State) State {
	if st.Result != nil {
		res := *st.Result
		if len(res.Top3) > 0 {
			res.Top3 = append([]backend.GenreScore(nil), res.Top3...)
		}
		if len(res.Raw) > 0 {
			res.Raw = append([]byte(nil), res.Raw...)
		}
		st.Result = &res
	}
	return st
}
