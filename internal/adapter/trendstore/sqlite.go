package trendstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	"RahimBot/internal/service/trends"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure interface compliance
var _ trends.Store = (*SQLiteStore)(nil)

// SQLiteStore хранит каталог и курсоры во встроенной базе SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite открывает базу и применяет миграции.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Одно соединение: запись курсора и так сериализуется ротатором.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (trends.Catalog, trends.Cursor, error) {
	catalog := trends.Catalog{}
	rows, err := s.db.QueryContext(ctx, "SELECT category, entry FROM trend_entries ORDER BY category, position")
	if err != nil {
		return nil, nil, fmt.Errorf("query entries: %w", err)
	}
	for rows.Next() {
		var category, entry string
		if err := rows.Scan(&category, &entry); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan entry: %w", err)
		}
		catalog[category] = append(catalog[category], entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, fmt.Errorf("iterate entries: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, nil, fmt.Errorf("close entries: %w", err)
	}

	cursor := trends.Cursor{}
	rows, err = s.db.QueryContext(ctx, "SELECT category, idx FROM trend_cursor")
	if err != nil {
		return nil, nil, fmt.Errorf("query cursor: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var idx int
		if err := rows.Scan(&category, &idx); err != nil {
			return nil, nil, fmt.Errorf("scan cursor: %w", err)
		}
		cursor[category] = idx
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate cursor: %w", err)
	}
	return catalog, cursor, nil
}

// SaveCursor заменяет таблицу курсоров целиком в одной транзакции.
func (s *SQLiteStore) SaveCursor(ctx context.Context, cursor trends.Cursor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM trend_cursor"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear cursor: %w", err)
	}
	for category, idx := range cursor {
		if _, err := tx.ExecContext(ctx, "INSERT INTO trend_cursor (category, idx) VALUES (?, ?)", category, idx); err != nil {
			tx.Rollback()
			return fmt.Errorf("save cursor %s: %w", category, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cursor: %w", err)
	}
	return nil
}

// ImportCatalog заменяет каталог. Курсоры не трогает: выход за границы обрабатывает ротатор.
func (s *SQLiteStore) ImportCatalog(ctx context.Context, catalog trends.Catalog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM trend_entries"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear catalog: %w", err)
	}
	for category, entries := range catalog {
		for pos, entry := range entries {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO trend_entries (category, position, entry) VALUES (?, ?, ?)",
				category, pos, entry,
			); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert %s[%d]: %w", category, pos, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog: %w", err)
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}
