// Package stores declares the collaborator interfaces the lifecycle
// orchestrator drives during boot and shutdown. Production adapters live in
// subpackages; the in-memory implementation backs tests and local runs.
package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by wallet operations that require an active
// connection.
var ErrNotConnected = errors.New("stores: wallet not connected")

// MetaAnalysis is the platform self-description loaded during system init.
type MetaAnalysis struct {
	Version     string
	Capability  string
	GeneratedAt time.Time
}

// SystemStore owns platform-level flags and metadata.
type SystemStore interface {
	MarkInitialized(ctx context.Context) error
	LoadMetaAnalysis(ctx context.Context) (MetaAnalysis, error)
}

// UIStore persists presentation preferences, currently the dark-mode flag.
type UIStore interface {
	DarkMode(ctx context.Context) (bool, error)
	SetDarkMode(ctx context.Context, enabled bool) error
}

// WalletStore fronts the blockchain wallet. Connect is only attempted when
// the run is started with auto-connect; RefreshBalance is driven by the
// orchestrator's background ticker while connected.
type WalletStore interface {
	Connect(ctx context.Context) error
	Connected() bool
	Disconnect(ctx context.Context) error
	RefreshBalance(ctx context.Context) error
}

// UserStore loads the viewer profile.
type UserStore interface {
	LoadProfile(ctx context.Context) error
}

// ContentStore owns the content catalog. The pinning surface is consumed by
// the content-pinning automation task.
type ContentStore interface {
	LoadFeaturedContent(ctx context.Context) error
	UnpinnedContent(ctx context.Context) ([]string, error)
	Pin(ctx context.Context, contentID string) error
}

// StreamingStore owns the streaming transport. ActiveStreams is consumed by
// the stream-activity automation task.
type StreamingStore interface {
	Initialize(ctx context.Context) error
	CleanupStreams(ctx context.Context) error
	ActiveStreams(ctx context.Context) (int, error)
}
