package pg

import (
	"context"
)

// FeatureEnabled answers the gate lookup. An unknown slug is reported
// as ErrNotFound so the pipeline can fail closed.
func (s *Store) FeatureEnabled(ctx context.Context, slug string) (bool, error) {
	const q = `SELECT enabled FROM feature_flag WHERE slug = $1`

	var enabled bool
	if err := s.pool.QueryRow(ctx, q, slug).Scan(&enabled); err != nil {
		return false, notFound(err)
	}
	return enabled, nil
}

// SetFeature upserts a flag.
func (s *Store) SetFeature(ctx context.Context, slug string, enabled bool) error {
	const q = `
		INSERT INTO feature_flag (slug, enabled, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (slug) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()`

	_, err := s.pool.Exec(ctx, q, slug, enabled)
	return err
}
