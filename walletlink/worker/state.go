package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// subscription is a running background task owned by a session
type subscription struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// State is the session scoped mutable state of a worker.
type State struct {
	mu            sync.Mutex
	subscriptions map[string]*subscription
	testnet       *bool
}

func newState() *State {
	return &State{subscriptions: make(map[string]*subscription)}
}

// addSubscription registers a subscription under name unless one exists.
func (s *State) addSubscription(name string, start func(ctx context.Context, done chan struct{})) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subscriptions[name]; ok {
		return sub.id, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.subscriptions[name] = sub
	start(ctx, sub.done)
	return sub.id, true
}

// removeSubscription stops and forgets the named subscription.
func (s *State) removeSubscription(name string) bool {
	s.mu.Lock()
	sub, ok := s.subscriptions[name]
	delete(s.subscriptions, name)
	s.mu.Unlock()

	if !ok {
		return false
	}
	sub.cancel()
	<-sub.done
	return true
}

// HasSubscription reports whether name is active
func (s *State) HasSubscription(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[name]
	return ok
}

func (s *State) removeAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.subscriptions))
	for name := range s.subscriptions {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.removeSubscription(name)
	}
}

func (s *State) cachedTestnet() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.testnet == nil {
		return false, false
	}
	return *s.testnet, true
}

func (s *State) setTestnet(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testnet = &v
}
