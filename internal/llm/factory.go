package llm

import (
	"fmt"
	"sync"
)

// ClientFactory builds a Client from its configuration
type ClientFactory func(config *ClientConfig) (Client, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]ClientFactory)
)

// Register makes a provider available under the given name. Provider
// subpackages call this from init(), so importing a provider package
// is enough to enable it.
func Register(name string, factory ClientFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// Create instantiates the named provider. A nil config gets defaults;
// an unnamed config inherits the provider name.
func Create(name string, config *ClientConfig) (Client, error) {
	providersMu.RLock()
	factory, ok := providers[name]
	providersMu.RUnlock()

	if !ok {
		return nil, NewClientError(name, "create", fmt.Sprintf("client '%s' not registered", name), nil)
	}

	if config == nil {
		config = NewClientConfig(name)
	} else if config.Name == "" {
		config.Name = name
	}

	return factory(config)
}

// List returns the names of all registered providers
func List() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}

// IsRegistered reports whether a provider name is known
func IsRegistered(name string) bool {
	providersMu.RLock()
	defer providersMu.RUnlock()
	_, ok := providers[name]
	return ok
}

// Unregister removes a provider, used by tests to isolate the registry
func Unregister(name string) {
	providersMu.Lock()
	defer providersMu.Unlock()
	delete(providers, name)
}
