package main

import (
	"RahimBot/internal/adapter/trendstore"
	"RahimBot/internal/config"
	"RahimBot/internal/service/trends"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Утилита обслуживания трендов. Хранилище берётся из той же конфигурации, что и у бота (.env/ENV).
func main() {
	var (
		next       string
		reset      bool
		list       bool
		importPath string
	)
	fs := flag.NewFlagSet("trends", flag.ExitOnError)
	fs.StringVar(&next, "next", "", "выдать очередной тренд категории")
	fs.BoolVar(&reset, "reset", false, "сбросить все курсоры")
	fs.BoolVar(&list, "list", false, "показать категории")
	fs.StringVar(&importPath, "import", "", "загрузить каталог (JSON/YAML) в базу SQLite")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), cfg, logger.Sugar(), os.Stdout, next, reset, list, importPath); err != nil {
		logger.Sugar().Errorw("trends command failed", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger, out io.Writer, next string, reset, list bool, importPath string) error {
	if importPath != "" {
		return importCatalog(ctx, cfg, out, importPath)
	}

	store, closer, err := trendstore.Open(cfg.Trends)
	if err != nil {
		return err
	}
	defer closer.Close()

	r, err := trends.New(ctx, store, sugar)
	if err != nil {
		return err
	}

	switch {
	case reset:
		if err := r.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "cursors reset")
	case next != "":
		entry, ok, err := r.Next(ctx, next)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("category %q has no entries", next)
		}
		fmt.Fprintln(out, entry)
	case list:
		for _, c := range r.Categories() {
			fmt.Fprintln(out, c)
		}
	default:
		return errors.New("nothing to do: use -next, -reset, -list or -import")
	}
	return nil
}

func importCatalog(ctx context.Context, cfg *config.Config, out io.Writer, path string) error {
	if cfg.Trends.Backend != config.TrendsBackendSQLite {
		return fmt.Errorf("import needs the sqlite backend, got %q", cfg.Trends.Backend)
	}
	catalog, err := trendstore.ReadCatalog(path)
	if err != nil {
		return err
	}
	s, err := trendstore.OpenSQLite(cfg.Trends.SQLitePath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ImportCatalog(ctx, catalog); err != nil {
		return err
	}
	total := 0
	for _, entries := range catalog {
		total += len(entries)
	}
	fmt.Fprintf(out, "imported %d categories, %d entries into %s\n", len(catalog), total, cfg.Trends.SQLitePath)
	return nil
}
