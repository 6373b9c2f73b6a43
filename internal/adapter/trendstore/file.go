package trendstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"RahimBot/internal/service/trends"

	"gopkg.in/yaml.v3"
)

// Ensure interface compliance
var _ trends.Store = (*FileStore)(nil)

// FileStore хранит каталог и курсоры в двух файлах рядом с ботом.
// Каталог читается как JSON или YAML (по расширению), курсоры всегда пишутся в JSON.
type FileStore struct {
	catalogPath string
	cursorPath  string
}

func NewFileStore(catalogPath, cursorPath string) *FileStore {
	return &FileStore{catalogPath: catalogPath, cursorPath: cursorPath}
}

func (s *FileStore) Load(_ context.Context) (trends.Catalog, trends.Cursor, error) {
	catalog := trends.Catalog{}
	if err := readDocument(s.catalogPath, &catalog); err != nil {
		return nil, nil, fmt.Errorf("read catalog %s: %w", s.catalogPath, err)
	}
	cursor := trends.Cursor{}
	if err := readDocument(s.cursorPath, &cursor); err != nil {
		return nil, nil, fmt.Errorf("read cursor %s: %w", s.cursorPath, err)
	}
	return catalog, cursor, nil
}

// SaveCursor перезаписывает файл курсоров атомарно (временный файл + rename).
func (s *FileStore) SaveCursor(_ context.Context, cursor trends.Cursor) error {
	if cursor == nil {
		cursor = trends.Cursor{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cursor); err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	if dir := filepath.Dir(s.cursorPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create cursor dir: %w", err)
		}
	}
	tmp := s.cursorPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := os.Rename(tmp, s.cursorPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace cursor: %w", err)
	}
	return nil
}

// ReadCatalog читает каталог из JSON или YAML файла. Отсутствующий файл — пустой каталог.
func ReadCatalog(path string) (trends.Catalog, error) {
	catalog := trends.Catalog{}
	if err := readDocument(path, &catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

func readDocument(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}
