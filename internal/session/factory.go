package session

import (
	"fmt"
	"log/slog"
)

// New builds the session chunk store named by provider ("memory" or
// "sqlite"/"persistent"). Per spec.md §4.10, failure to initialize the
// persistent backend must never fail the whole service: New downgrades
// to an in-memory store and logs a warning instead of returning an
// error in that case.
func New(provider, path string, embedder Embedder, dimensions int) Store {
	switch provider {
	case "", "memory":
		return NewMemoryStore(embedder)
	case "sqlite", "persistent":
		if path == "" {
			path = "sessions.db"
		}
		store, err := NewSQLiteStore(path, embedder, dimensions)
		if err != nil {
			slog.Warn("session_store_downgraded",
				slog.String("path", path),
				slog.String("error", err.Error()),
				slog.String("reason", "persistent session store failed to initialize, falling back to in-memory"),
			)
			return NewMemoryStore(embedder)
		}
		return store
	default:
		slog.Warn("session_store_unknown_provider",
			slog.String("provider", provider),
			slog.String("reason", "falling back to in-memory"),
		)
		return NewMemoryStore(embedder)
	}
}

// NewOrError is like New but surfaces persistent-store initialization
// failures instead of silently downgrading, for callers (such as
// config validation at startup) that want to fail fast.
func NewOrError(provider, path string, embedder Embedder, dimensions int) (Store, error) {
	switch provider {
	case "", "memory":
		return NewMemoryStore(embedder), nil
	case "sqlite", "persistent":
		if path == "" {
			path = "sessions.db"
		}
		return NewSQLiteStore(path, embedder, dimensions)
	default:
		return nil, fmt.Errorf("session: unknown provider %q", provider)
	}
}
