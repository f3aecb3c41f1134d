// Package properties serves namespaced key/value settings loaded from YAML.
package properties

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/utafrali/catalog-indexer/configs"
)

// Properties is a read-mostly set of namespace -> key -> value settings.
type Properties struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// New creates properties from an in-memory map. The map is copied.
func New(values map[string]map[string]string) *Properties {
	p := &Properties{values: make(map[string]map[string]string, len(values))}
	p.merge(values)
	return p
}

// Parse decodes a YAML document of the form namespace: {key: value}.
func Parse(data []byte) (map[string]map[string]string, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse properties: %w", err)
	}
	return raw, nil
}

// Load returns the embedded defaults overlaid with the file at path, if any.
func Load(path string) (*Properties, error) {
	defaults, err := Parse(configs.ProdSearchDefaults)
	if err != nil {
		return nil, fmt.Errorf("embedded defaults: %w", err)
	}
	p := New(defaults)

	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read properties file: %w", err)
	}
	overrides, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.merge(overrides)
	return p, nil
}

func (p *Properties) merge(values map[string]map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ns, kv := range values {
		dst, ok := p.values[ns]
		if !ok {
			dst = make(map[string]string, len(kv))
			p.values[ns] = dst
		}
		for k, v := range kv {
			dst[k] = v
		}
	}
}

// Value returns the setting under namespace and key, or def when absent.
func (p *Properties) Value(namespace, key, def string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[namespace][key]; ok {
		return v
	}
	return def
}
