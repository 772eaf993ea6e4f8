package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/justapithecus/pydust/types"
)

// Cache memoizes loaded configs by absolute path. Failed loads are not
// cached.
type Cache struct {
	mu      sync.Mutex
	configs map[string]*types.ToolConfig
	load    func(path string) (*types.ToolConfig, error)
}

// NewCache creates an empty cache backed by Load.
func NewCache() *Cache {
	return &Cache{
		configs: make(map[string]*types.ToolConfig),
		load:    Load,
	}
}

// Load returns the config at path, loading it on first use. Callers must
// not mutate the returned config.
func (c *Cache) Load(path string) (*types.ToolConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg, ok := c.configs[abs]; ok {
		return cfg, nil
	}
	cfg, err := c.load(abs)
	if err != nil {
		return nil, err
	}
	c.configs[abs] = cfg
	return cfg, nil
}
