// Package memory provides an in-process store.Repository.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/concierge/store"
)

// Store keeps all records in maps guarded by a mutex.
type Store struct {
	mu        sync.RWMutex
	residents map[string]store.Resident
	vacancies map[string]struct{}
	tickets   []store.Ticket
	visits    []store.Visit
}

// New returns an empty Store.
func New() *Store {
	return &Store{residents: map[string]store.Resident{}, vacancies: map[string]struct{}{}}
}

// NewSeeded returns a Store loaded with the demo building data.
func NewSeeded() *Store {
	s := New()
	_ = s.Seed(context.Background(), store.DefaultResidents(), store.DefaultVacancies())
	return s
}

func (s *Store) LookupResident(_ context.Context, name, unit string) (*store.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.residents[store.ResidentKey(name, unit)]
	if !ok || !r.Active {
		return nil, store.ErrResidentNotFound(name, unit)
	}
	return &r, nil
}

func (s *Store) ListVacancies(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.vacancies))
	for u := range s.vacancies {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AppendTicket(_ context.Context, t store.Ticket) (store.Ticket, error) {
	t = t.Prepare()
	s.mu.Lock()
	s.tickets = append(s.tickets, t)
	s.mu.Unlock()
	return t, nil
}

func (s *Store) ListTickets(_ context.Context) ([]store.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Ticket(nil), s.tickets...), nil
}

func (s *Store) RecordVisit(_ context.Context, v store.Visit) (store.Visit, error) {
	v = v.Prepare()
	s.mu.Lock()
	s.visits = append(s.visits, v)
	s.mu.Unlock()
	return v, nil
}

func (s *Store) ListVisits(_ context.Context) ([]store.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Visit(nil), s.visits...), nil
}

func (s *Store) Seed(_ context.Context, residents []store.Resident, vacancies []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range residents {
		s.residents[store.ResidentKey(r.Name, r.Unit)] = r
	}
	for _, u := range vacancies {
		s.vacancies[u] = struct{}{}
	}
	return nil
}

func (s *Store) Close() error { return nil }

var _ store.Repository = (*Store)(nil)
