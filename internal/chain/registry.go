package chain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
)

// Registry maps chain ids to lazily-instantiated, cached adapters. Adapters hold
// live connections, so the registry guarantees at most one live instance per
// chain id per process.
type Registry struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	factories map[common.ChainID]Factory
	adapters  map[common.ChainID]Adapter
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:    logger.With().Str("component", "registry").Logger(),
		factories: make(map[common.ChainID]Factory),
		adapters:  make(map[common.ChainID]Adapter),
	}
}

// RegisterAdapter installs or replaces the factory for a chain id. Any cached
// instance for that id is disconnected and dropped so the next CreateAdapter
// call constructs a fresh one.
func (r *Registry) RegisterAdapter(chainID common.ChainID, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.adapters[chainID]; ok {
		if err := cached.Disconnect(); err != nil {
			r.logger.Warn().Err(err).Str("chain", string(chainID)).Msg("failed to disconnect replaced adapter")
		}
		delete(r.adapters, chainID)
	}
	r.factories[chainID] = factory
}

// CreateAdapter returns the cached adapter for the chain id, constructing and
// caching one via the registered factory on first use.
func (r *Registry) CreateAdapter(chainID common.ChainID) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.adapters[chainID]; ok {
		return cached, nil
	}

	factory, ok := r.factories[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedChain, chainID)
	}

	adapter, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to construct adapter for %s: %w", chainID, err)
	}

	r.adapters[chainID] = adapter
	return adapter, nil
}

// SupportedChains returns the sorted set of chain ids with a registered factory.
func (r *Registry) SupportedChains() []common.ChainID {
	r.mu.Lock()
	defer r.mu.Unlock()

	chains := make([]common.ChainID, 0, len(r.factories))
	for id := range r.factories {
		chains = append(chains, id)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// DisconnectAll tears down every cached adapter and empties the cache. Factories
// stay registered.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, adapter := range r.adapters {
		if err := adapter.Disconnect(); err != nil {
			r.logger.Warn().Err(err).Str("chain", string(id)).Msg("adapter disconnect failed")
		}
		delete(r.adapters, id)
	}
}
