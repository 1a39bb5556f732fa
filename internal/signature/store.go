package signature

import (
	"errors"
	"fmt"
	"sync"
)

// PartyCount is the number of stakeholders taking part in the custody scheme.
const PartyCount = 4

var (
	ErrNotFound     = errors.New("signature not found")
	ErrInvalidParty = errors.New("invalid party index")
)

// Set holds one optional signature per party. Slot i belongs to party i+1.
type Set [PartyCount]*string

type Store struct {
	mu   sync.RWMutex
	sets map[string]*Set
}

func NewStore() *Store {
	return &Store{
		sets: make(map[string]*Set),
	}
}

// ValidateParty reports whether party is a 1-based stakeholder index.
func ValidateParty(party int) error {
	if party < 1 || party > PartyCount {
		return fmt.Errorf("%w: %d (expected 1..%d)", ErrInvalidParty, party, PartyCount)
	}
	return nil
}

// Put overwrites the slot of party for txid, creating the set on first use.
func (s *Store) Put(txid string, party int, sig string) (string, error) {
	if err := ValidateParty(party); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[txid]
	if !ok {
		set = &Set{}
		s.sets[txid] = set
	}
	value := sig
	set[party-1] = &value
	return value, nil
}

func (s *Store) Get(txid string, party int) (string, error) {
	if err := ValidateParty(party); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[txid]
	if !ok {
		return "", fmt.Errorf("%w: unknown txid %s", ErrNotFound, txid)
	}
	sig := set[party-1]
	if sig == nil {
		return "", fmt.Errorf("%w: no signature from party %d for %s", ErrNotFound, party, txid)
	}
	return *sig, nil
}

// Slots returns a copy of the signature set for txid.
func (s *Store) Slots(txid string) (Set, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[txid]
	if !ok {
		return Set{}, false
	}
	var out Set
	for i, sig := range set {
		if sig == nil {
			continue
		}
		value := *sig
		out[i] = &value
	}
	return out, true
}

// Complete reports whether every party has submitted a signature for txid.
func (s *Store) Complete(txid string) bool {
	set, ok := s.Slots(txid)
	if !ok {
		return false
	}
	return set.Count() == PartyCount
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// Count returns the number of present slots.
func (set Set) Count() int {
	count := 0
	for _, sig := range set {
		if sig != nil {
			count++
		}
	}
	return count
}
