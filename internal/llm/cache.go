package llm

import "sync"

// ProviderCache memoizes a provider instance keyed by the API key value.
// It exists purely as an optimization for the platform tier, whose key is
// shared across requests; correctness never depends on a cache hit. The
// write is idempotent by value, so concurrent misses racing to store the
// same key are harmless.
type ProviderCache struct {
	// New overrides provider construction; nil means NewProviderWithKey.
	New func(providerName, apiKey string) (Provider, error)

	mu       sync.RWMutex
	apiKey   string
	provider Provider
}

// Get returns a cached provider for the given name and key, constructing
// and storing a fresh one when the key differs from the cached entry.
func (c *ProviderCache) Get(providerName, apiKey string) (Provider, error) {
	c.mu.RLock()
	if c.provider != nil && c.apiKey == apiKey {
		p := c.provider
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	newProvider := c.New
	if newProvider == nil {
		newProvider = NewProviderWithKey
	}
	p, err := newProvider(providerName, apiKey)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.apiKey = apiKey
	c.provider = p
	c.mu.Unlock()
	return p, nil
}
