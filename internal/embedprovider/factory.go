package embedprovider

import "fmt"

// Config selects and configures a concrete Embedder.
type Config struct {
	Provider   string // "http", "local", "mock"
	Model      string
	APIKey     string
	APIBase    string
	Dimensions int
}

// New builds the Embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", "mock":
		return NewMockEmbedder(), nil
	case "local":
		return NewLocalProvider(cfg.Dimensions, cfg.Model), nil
	case "http":
		if cfg.APIBase == "" {
			return nil, fmt.Errorf("embedprovider: http provider requires api_base")
		}
		return NewHTTPProvider(HTTPProviderConfig{
			BaseURL:    cfg.APIBase,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("embedprovider: unknown provider %q", cfg.Provider)
	}
}
