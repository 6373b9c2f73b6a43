package trendstore

import (
	"RahimBot/internal/config"
	"RahimBot/internal/service/trends"
	"fmt"
	"io"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open выбирает хранилище трендов по конфигурации. Closer закрывает базу для бэкенда sqlite.
func Open(cfg config.TrendsConfig) (trends.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.TrendsBackendFile, "":
		return NewFileStore(cfg.CatalogPath, cfg.CursorPath), nopCloser{}, nil
	case config.TrendsBackendSQLite:
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown trends backend %q", cfg.Backend)
	}
}
