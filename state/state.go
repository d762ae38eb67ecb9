package state

import (
	"sync"

	"earthprint/analysis"
)

type Kind int

const (
	Idle Kind = iota
	Loading
	Error
	Result
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Error:
		return "error"
	case Result:
		return "result"
	default:
		return "unknown"
	}
}

// State is what the UI shows. Exactly one Kind is current; Message is only
// meaningful for Error and Result only for Result.
type State struct {
	Kind    Kind
	Message string
	Result  *analysis.Result
}

func NewIdle() State { return State{Kind: Idle} }

func NewLoading() State { return State{Kind: Loading} }

func NewError(msg string) State { return State{Kind: Error, Message: msg} }

func NewResult(r *analysis.Result) State { return State{Kind: Result, Result: r} }

// Store holds the current State. Every change replaces the whole value.
type Store struct {
	mu      sync.Mutex
	cur     State
	subs    map[int]chan State
	nextSub int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]chan State)}
}

func (s *Store) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *Store) Set(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(st)
}

// BeginLoading switches to Loading unless a request is already loading.
func (s *Store) BeginLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Kind == Loading {
		return false
	}
	s.set(NewLoading())
	return true
}

func (s *Store) set(st State) {
	switch st.Kind {
	case Error:
		st.Result = nil
	case Idle, Loading:
		st.Message, st.Result = "", nil
	case Result:
		st.Message = ""
	}
	s.cur = st
	for _, ch := range s.subs {
		// Subscribers only need the latest state; drop a stale one.
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

// Subscribe returns a channel that receives each new state. A slow reader
// sees the most recent state rather than every intermediate one.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
