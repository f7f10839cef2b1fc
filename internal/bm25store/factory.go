package bm25store

import "fmt"

// New builds the Index implementation named by provider ("sqlite" is
// currently the only backend; an empty path yields an in-memory index).
func New(provider, path string) (Index, error) {
	switch provider {
	case "", "sqlite":
		return NewSQLiteIndex(path)
	default:
		return nil, fmt.Errorf("bm25store: unknown provider %q", provider)
	}
}
