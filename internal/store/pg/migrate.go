package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Migrate applies every *_up.sql in the embedded FS in lexical order.
// Statements are idempotent (IF NOT EXISTS), so re-running is safe.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS) error {
	files, err := fs.Glob(fsys, "*_up.sql")
	if err != nil {
		return fmt.Errorf("pg: list migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		sql, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("pg: read %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: apply %s: %w", name, err)
		}
		s.log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

// Rollback applies the *_down.sql files newest-first.
func (s *Store) Rollback(ctx context.Context, fsys fs.FS) error {
	files, err := fs.Glob(fsys, "*_down.sql")
	if err != nil {
		return fmt.Errorf("pg: list migrations: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, name := range files {
		sql, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("pg: read %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: apply %s: %w", name, err)
		}
		s.log.Info("migration rolled back", zap.String("file", strings.TrimSuffix(name, "_down.sql")))
	}
	return nil
}
