// Package bus holds the named paths this process exposes on the energy bus.
// Paths are declared once at startup; values can be set at any later time
// and every change is forwarded to the registered listeners.
package bus

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
)

var (
	ErrUnknownPath   = errors.New("unknown path")
	ErrAlreadyExists = errors.New("path already declared")
)

// Listener receives every value set on the service.
type Listener interface {
	OnChange(service, path string, value any)
}

type Service struct {
	name string

	mu        sync.RWMutex
	values    map[string]any
	order     []string
	listeners []Listener
}

// ServiceName derives the bus service name from a connection identifier,
// e.g. /dev/ttyUSB0 → com.victronenergy.solarcharger.ttyUSB0.
func ServiceName(connection string) string {
	return "com.victronenergy.solarcharger." + path.Base(connection)
}

func NewService(name string) *Service {
	return &Service{
		name:   name,
		values: make(map[string]any),
	}
}

func (s *Service) Name() string {
	return s.name
}

func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Declare creates a path with its initial value.
func (s *Service) Declare(p string, initial any) error {
	s.mu.Lock()
	if _, ok := s.values[p]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExists, p)
	}
	s.values[p] = initial
	s.order = append(s.order, p)
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnChange(s.name, p, initial)
	}
	return nil
}

// Set changes the value of a declared path.
func (s *Service) Set(p string, value any) error {
	s.mu.Lock()
	if _, ok := s.values[p]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPath, p)
	}
	s.values[p] = value
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnChange(s.name, p, value)
	}
	return nil
}

func (s *Service) Get(p string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[p]
	return v, ok
}

// Snapshot copies all current values.
func (s *Service) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Paths lists the declared paths in declaration order.
func (s *Service) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// SortedPaths lists the declared paths alphabetically.
func (s *Service) SortedPaths() []string {
	out := s.Paths()
	sort.Strings(out)
	return out
}
