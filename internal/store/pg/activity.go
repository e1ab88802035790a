package pg

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/healthguard/surveillance/internal/store/core"
)

// appendActivity writes the audit row for a mutation inside its
// transaction, so a rollback takes the activity with it. resourceType
// and resourceID name the mutated row; empty strings store as NULL.
func appendActivity(ctx context.Context, tx pgx.Tx, accountID, action, detail, resourceType, resourceID string, meta core.ActivityMeta) error {
	const q = `
		INSERT INTO account_activity
			(account_id, action, actor_id, resource_type, resource_id, detail, ip_address, user_agent)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`

	_, err := tx.Exec(ctx, q, accountID, action, meta.ActorID,
		resourceType, resourceID, detail, meta.IPAddress, meta.UserAgent)
	return err
}

// ListActivity returns the most recent audit rows for an account,
// newest first.
func (s *Store) ListActivity(ctx context.Context, accountID string, limit int) ([]core.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `
		SELECT id, account_id, action, actor_id, resource_type, resource_id,
		       detail, ip_address, user_agent, created_at
		FROM account_activity
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Activity
	for rows.Next() {
		var a core.Activity
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Action, &a.ActorID,
			&a.ResourceType, &a.ResourceID,
			&a.Detail, &a.IPAddress, &a.UserAgent, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
