package service

import (
	"sync"
	"time"

	"github.com/noah-isme/care-roster-api/internal/roster"
)

type rosterProposal struct {
	ID          string
	PatientID   string
	Month       roster.Month
	Assignments []roster.Assignment
	Meta        map[string]any
	CreatedBy   string
	CreatedAt   time.Time
}

// proposalStore keeps generated rosters in memory until they are saved or
// expire.
type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]rosterProposal
	now   func() time.Time
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]rosterProposal),
		now:   time.Now,
	}
}

func (s *proposalStore) Save(proposal rosterProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.items[proposal.ID] = proposal
}

func (s *proposalStore) Get(id string) (rosterProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return rosterProposal{}, false
	}
	if s.expired(proposal) {
		s.Delete(id)
		return rosterProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Len counts live proposals, dropping expired ones first.
func (s *proposalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	return len(s.items)
}

func (s *proposalStore) ExpiresAt(proposal rosterProposal) time.Time {
	return proposal.CreatedAt.Add(s.ttl)
}

func (s *proposalStore) expired(proposal rosterProposal) bool {
	return s.now().Sub(proposal.CreatedAt) > s.ttl
}

func (s *proposalStore) purgeLocked() {
	for id, proposal := range s.items {
		if s.expired(proposal) {
			delete(s.items, id)
		}
	}
}
