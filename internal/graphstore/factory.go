package graphstore

import "fmt"

// New opens a graph store of the requested backend. Only sqlite is
// supported today; the argument exists for symmetry with
// vectorstore.New and bm25store.New.
func New(provider, path string) (Store, error) {
	switch provider {
	case "", "sqlite":
		if path == "" {
			path = "graph.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown graph store provider %q", provider)
	}
}
