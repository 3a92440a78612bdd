package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tecnokaijin/storefront/internal/models"
)

// MemoryStore keeps the cart in process memory only
type MemoryStore struct {
	items []models.CartItem
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() ([]models.CartItem, error) {
	out := make([]models.CartItem, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *MemoryStore) Save(items []models.CartItem) error {
	s.items = make([]models.CartItem, len(items))
	copy(s.items, items)
	return nil
}

// FileStore mirrors the cart to a JSON file
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the cart file. A missing file is an empty cart.
func (s *FileStore) Load() ([]models.CartItem, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []models.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("corrupt cart file %s: %w", s.path, err)
	}
	return items, nil
}

// Save replaces the cart file atomically
func (s *FileStore) Save(items []models.CartItem) error {
	if items == nil {
		items = []models.CartItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cart-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
