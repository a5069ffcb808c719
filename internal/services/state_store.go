package services

import (
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/postx/internal/models"
)

const (
	// DefaultStateTTL bounds how long an unconsumed state and verifier stay valid.
	DefaultStateTTL = 10 * time.Minute

	maxProcessedCodes = 64
)

// OAuthState is the pending authorization for one platform.
type OAuthState struct {
	State        string
	CodeVerifier string
	CreatedAt    time.Time
}

type stateEntry struct {
	pending   *OAuthState
	processed map[string]time.Time
}

// StateStore holds pending OAuth state and the set of processed authorization codes, keyed by platform.
//
// Entries older than the TTL are treated as absent. The processed-code set is evicted by the same TTL
// and capped at 64 codes per platform.
type StateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[models.PlatformType]*stateEntry
}

// NewStateStore creates a StateStore. A non-positive ttl uses [DefaultStateTTL].
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[models.PlatformType]*stateEntry),
	}
}

func (s *StateStore) entry(platform models.PlatformType) *stateEntry {
	e, ok := s.entries[platform]
	if !ok {
		e = &stateEntry{processed: make(map[string]time.Time)}
		s.entries[platform] = e
	}
	return e
}

// Save replaces the pending state for platform.
func (s *StateStore) Save(platform models.PlatformType, state, codeVerifier string) OAuthState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := OAuthState{State: state, CodeVerifier: codeVerifier, CreatedAt: s.now()}
	s.entry(platform).pending = &st
	return st
}

// Load returns the pending state for platform if it exists and has not expired.
func (s *StateStore) Load(platform models.PlatformType) (OAuthState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[platform]
	if !ok || e.pending == nil {
		return OAuthState{}, false
	}

	if s.now().Sub(e.pending.CreatedAt) > s.ttl {
		e.pending = nil
		return OAuthState{}, false
	}
	return *e.pending, true
}

// Clear erases the pending state for platform. Processed codes are kept.
func (s *StateStore) Clear(platform models.PlatformType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[platform]; ok {
		e.pending = nil
	}
}

// MarkProcessed records code as processed for platform.
//
// It returns false when the code was already processed, making the check and the write a single step.
func (s *StateStore) MarkProcessed(platform models.PlatformType, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.entry(platform)
	s.evict(e, now)

	if _, seen := e.processed[code]; seen {
		return false
	}
	e.processed[code] = now
	return true
}

// IsProcessed reports whether code was already processed for platform.
func (s *StateStore) IsProcessed(platform models.PlatformType, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[platform]
	if !ok {
		return false
	}
	s.evict(e, s.now())
	_, seen := e.processed[code]
	return seen
}

// evict drops expired codes, then the oldest codes beyond the cap.
func (s *StateStore) evict(e *stateEntry, now time.Time) {
	for code, at := range e.processed {
		if now.Sub(at) > s.ttl {
			delete(e.processed, code)
		}
	}

	if len(e.processed) < maxProcessedCodes {
		return
	}

	codes := make([]string, 0, len(e.processed))
	for code := range e.processed {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		return e.processed[codes[i]].Before(e.processed[codes[j]])
	})
	for _, code := range codes[:len(codes)-maxProcessedCodes+1] {
		delete(e.processed, code)
	}
}
