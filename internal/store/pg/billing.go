package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/healthguard/surveillance/internal/store/core"
)

// insertBilling seeds the initial pending record. At most one pending
// record per account; the partial unique index backs that up.
func insertBilling(ctx context.Context, tx pgx.Tx, accountID string, amount float64, cycle core.BillingCycle, dueAt time.Time) error {
	const q = `
		INSERT INTO billing_record (account_id, amount, currency, billing_cycle, status, due_at)
		VALUES ($1, $2, 'USD', $3, 'pending', $4)`

	_, err := tx.Exec(ctx, q, accountID, amount, cycle, dueAt)
	return err
}

// ListBilling returns every billing record for an account, newest first.
// Records transition status but are never deleted.
func (s *Store) ListBilling(ctx context.Context, id string) ([]core.BillingRecord, error) {
	const q = `
		SELECT id, account_id, amount, currency, billing_cycle, status,
		       due_at, paid_at, invoice_ref, created_at
		FROM billing_record
		WHERE account_id = $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.BillingRecord{}
	for rows.Next() {
		var r core.BillingRecord
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Amount, &r.Currency,
			&r.Cycle, &r.Status, &r.DueAt, &r.PaidAt, &r.InvoiceRef,
			&r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
