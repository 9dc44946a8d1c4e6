// Package memory provides in-memory implementations of the collaborator
// store interfaces. Safe for concurrent use; intended for tests and local
// development, mirroring how the production adapters behave.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CryptoStream-Network/stream_layer/internal/stores"
)

// Store implements every collaborator interface on process memory.
type Store struct {
	mu            sync.RWMutex
	initialized   bool
	meta          stores.MetaAnalysis
	darkMode      bool
	walletUp      bool
	balance       float64
	refreshes     int
	profileLoaded bool
	featured      []string
	pinned        map[string]bool
	streamsUp     bool
	activeStreams int
}

var _ stores.SystemStore = (*Store)(nil)
var _ stores.UIStore = (*Store)(nil)
var _ stores.WalletStore = (*Store)(nil)
var _ stores.UserStore = (*Store)(nil)
var _ stores.ContentStore = (*Store)(nil)
var _ stores.StreamingStore = (*Store)(nil)

// New creates an empty store with a small seeded catalog.
func New() *Store {
	return &Store{
		meta: stores.MetaAnalysis{
			Version:     "1.0.0",
			Capability:  "full",
			GeneratedAt: time.Now().UTC(),
		},
		featured: []string{"genesis-drop", "launch-stream"},
		pinned:   make(map[string]bool),
	}
}

func (s *Store) MarkInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

func (s *Store) LoadMetaAnalysis(ctx context.Context) (stores.MetaAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, nil
}

// Initialized reports whether MarkInitialized ran. Test helper.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Store) DarkMode(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.darkMode, nil
}

func (s *Store) SetDarkMode(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.darkMode = enabled
	return nil
}

func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walletUp = true
	s.balance = 100
	return nil
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletUp
}

func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walletUp = false
	s.balance = 0
	return nil
}

func (s *Store) RefreshBalance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.walletUp {
		return stores.ErrNotConnected
	}
	s.refreshes++
	return nil
}

// Refreshes reports how many balance refreshes ran. Test helper.
func (s *Store) Refreshes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshes
}

func (s *Store) LoadProfile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileLoaded = true
	return nil
}

func (s *Store) LoadFeaturedContent(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.featured == nil {
		return fmt.Errorf("no featured content seeded")
	}
	return nil
}

func (s *Store) UnpinnedContent(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range s.featured {
		if !s.pinned[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Store) Pin(ctx context.Context, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if contentID == "" {
		return fmt.Errorf("content id is required")
	}
	s.pinned[contentID] = true
	return nil
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamsUp = true
	s.activeStreams = 0
	return nil
}

func (s *Store) CleanupStreams(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamsUp = false
	s.activeStreams = 0
	return nil
}

func (s *Store) ActiveStreams(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.streamsUp {
		return 0, fmt.Errorf("streaming transport not initialized")
	}
	return s.activeStreams, nil
}

// SetActiveStreams sets the reported stream count. Test helper.
func (s *Store) SetActiveStreams(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeStreams = n
}
