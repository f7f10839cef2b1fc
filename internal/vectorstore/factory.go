package vectorstore

import "fmt"

// New builds the VectorStore implementation named by provider
// ("memory" or "sqlite"), per spec.md §4.2's two required backends.
// An empty path with provider "sqlite" yields an on-disk default name
// relative to the caller's working directory.
func New(provider, path string, cfg Config) (VectorStore, error) {
	switch provider {
	case "", "memory":
		return NewInMemoryStore(cfg.Dimensions), nil
	case "sqlite", "persistent":
		if path == "" {
			path = "vectors.db"
		}
		return NewPersistentStore(path, cfg)
	default:
		return nil, fmt.Errorf("vectorstore: unknown provider %q", provider)
	}
}
