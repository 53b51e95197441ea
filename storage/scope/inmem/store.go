package inmemscope

import (
	"context"
	"sync"

	"github.com/darasahq/darasa/core/session"
)

// Store keeps tenant selections in process memory. Used by tests and by
// single-node deployments where scope loss on restart is acceptable.
type Store struct {
	sync.RWMutex
	table map[string]string
}

var _ session.ScopeStore = (*Store)(nil) // interface compliance check

func New() *Store {
	return &Store{table: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, userKey string) (string, bool, error) {
	s.RLock()
	defer s.RUnlock()
	id, ok := s.table[userKey]
	return id, ok, nil
}

func (s *Store) Set(_ context.Context, userKey, companyID string) error {
	s.Lock()
	defer s.Unlock()
	s.table[userKey] = companyID
	return nil
}

func (s *Store) Clear(_ context.Context, userKey string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.table, userKey)
	return nil
}
