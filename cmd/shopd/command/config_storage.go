package command

import (
	"fmt"

	"github.com/pixelmine/shopd/internal/shop"
	"github.com/pixelmine/shopd/internal/storage"
	"github.com/pixil98/go-errors"
)

type StorageBackend int

const (
	StorageBackendFile StorageBackend = iota
	StorageBackendSqlite
)

func (b *StorageBackend) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "file":
		*b = StorageBackendFile
	case "sqlite":
		*b = StorageBackendSqlite
	default:
		return fmt.Errorf("unknown storage backend: %s", text)
	}
	return nil
}

type StorageConfig struct {
	Backend StorageBackend `json:"backend"`
	Path    string         `json:"path"`
}

func (c *StorageConfig) Validate() error {
	el := errors.NewErrorList()

	if c.Path == "" {
		el.Add(fmt.Errorf("storage: path is required"))
	}

	return el.Err()
}

func (c *StorageConfig) BuildShopStore() (storage.Storer[*shop.Shop], error) {
	switch c.Backend {
	case StorageBackendFile:
		return storage.NewFileStore[*shop.Shop](c.Path)
	case StorageBackendSqlite:
		return storage.NewSqliteStore[*shop.Shop](c.Path, "shops")
	default:
		return nil, fmt.Errorf("unknown storage backend: %v", c.Backend)
	}
}
