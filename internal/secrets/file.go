package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileProvider reads secrets from a flat JSON object.
// WARNING: This is for development only. Use env vars in production.
type FileProvider struct {
	path string
	mu   sync.RWMutex
	data map[string]string
}

// NewFileProvider loads path. A missing file is an empty provider.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("file path required")
	}
	p := &FileProvider{path: path, data: make(map[string]string)}
	if err := p.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load secrets file: %w", err)
	}
	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(_ context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return val, nil
}

func (p *FileProvider) load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	parsed := make(map[string]string)
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	p.data = parsed
	return nil
}

// Reload reloads secrets from the file.
func (p *FileProvider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}
