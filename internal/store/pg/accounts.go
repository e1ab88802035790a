package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthguard/surveillance/internal/store/core"
)

const accountColumns = `
	id, company_name, email, phone, contact_person, address,
	subscription_tier, billing_cycle, max_users, status, custom_domain,
	notes, monthly_revenue, next_billing_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, acc *core.ClientAccount) error {
	return row.Scan(
		&acc.ID, &acc.CompanyName, &acc.Email, &acc.Phone, &acc.ContactPerson,
		&acc.Address, &acc.Tier, &acc.BillingCycle, &acc.MaxUsers, &acc.Status,
		&acc.CustomDomain, &acc.Notes, &acc.MonthlyRevenue, &acc.NextBillingDate,
		&acc.CreatedAt, &acc.UpdatedAt)
}

// cycleMonths converts a billing cycle into invoiced months.
var cycleMonths = map[core.BillingCycle]int{
	core.CycleMonthly:   1,
	core.CycleQuarterly: 3,
	core.CycleYearly:    12,
}

// CreateAccount inserts the account with its derived fields, the default
// settings row, and the initial pending billing record, atomically.
// A non-cancelled account with the same email yields ErrDuplicateEmail.
func (s *Store) CreateAccount(ctx context.Context, acc *core.ClientAccount, meta core.ActivityMeta) error {
	now := time.Now().UTC()
	acc.ID = uuid.NewString()
	acc.Status = core.StatusPending
	acc.MonthlyRevenue = core.PricingFor(acc.Tier)
	acc.NextBillingDate = core.NextBillingDate(acc.BillingCycle, now)
	acc.CreatedAt = now
	acc.UpdatedAt = now

	return s.inTx(ctx, func(tx pgx.Tx) error {
		const qDup = `
			SELECT EXISTS (
				SELECT 1 FROM client_account
				WHERE lower(email) = lower($1) AND status <> 'cancelled')`

		var taken bool
		if err := tx.QueryRow(ctx, qDup, acc.Email).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return core.ErrDuplicateEmail
		}

		const qIns = `
			INSERT INTO client_account
				(id, company_name, email, phone, contact_person, address,
				 subscription_tier, billing_cycle, max_users, status, custom_domain,
				 notes, monthly_revenue, next_billing_date, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

		_, err := tx.Exec(ctx, qIns,
			acc.ID, acc.CompanyName, acc.Email, acc.Phone, acc.ContactPerson,
			acc.Address, acc.Tier, acc.BillingCycle, acc.MaxUsers, acc.Status,
			acc.CustomDomain, acc.Notes, acc.MonthlyRevenue, acc.NextBillingDate,
			acc.CreatedAt, acc.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return core.ErrDuplicateEmail
			}
			return err
		}

		if err := insertSettings(ctx, tx, core.DefaultSettings(acc.ID, acc.Tier)); err != nil {
			return err
		}

		amount := acc.MonthlyRevenue * float64(cycleMonths[acc.BillingCycle])
		if err := insertBilling(ctx, tx, acc.ID, amount, acc.BillingCycle, acc.NextBillingDate); err != nil {
			return err
		}

		return appendActivity(ctx, tx, acc.ID, "account.created",
			fmt.Sprintf("account %s created on tier %s", acc.CompanyName, acc.Tier),
			"account", acc.ID, meta)
	})
}

const usageJoin = `
	LEFT JOIN (
		SELECT account_id,
		       SUM(calls) AS calls, SUM(emails) AS emails, SUM(sms) AS sms,
		       SUM(whatsapp) AS whatsapp, SUM(telegram) AS telegram,
		       SUM(messenger) AS messenger, SUM(webchat) AS webchat,
		       SUM(fax) AS fax, SUM(total_cost) AS total_cost
		FROM usage_daily GROUP BY account_id
	) u ON u.account_id = a.id`

// ListAccounts filters, pages and returns accounts with their lifetime
// usage summary plus the unpaged total. Cancelled accounts are hidden
// unless the filter asks for them.
func (s *Store) ListAccounts(ctx context.Context, f core.AccountFilter) ([]core.AccountWithUsage, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	} else {
		where = append(where, "a.status <> 'cancelled'")
	}
	if f.Tier != "" {
		args = append(args, f.Tier)
		where = append(where, fmt.Sprintf("a.subscription_tier = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(a.company_name ILIKE $%d OR a.email ILIKE $%d OR a.contact_person ILIKE $%d)", n, n, n))
	}
	cond := strings.Join(where, " AND ")

	var total int
	qCount := "SELECT COUNT(*) FROM client_account a WHERE " + cond
	if err := s.pool.QueryRow(ctx, qCount, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, f.Offset)

	q := `
		SELECT ` + prefixColumns("a", accountColumns) + `,
		       COALESCE(u.calls,0), COALESCE(u.emails,0), COALESCE(u.sms,0),
		       COALESCE(u.whatsapp,0), COALESCE(u.telegram,0), COALESCE(u.messenger,0),
		       COALESCE(u.webchat,0), COALESCE(u.fax,0), COALESCE(u.total_cost,0)
		FROM client_account a` + usageJoin + `
		WHERE ` + cond + `
		ORDER BY a.created_at DESC
		LIMIT $` + fmt.Sprint(len(args)-1) + ` OFFSET $` + fmt.Sprint(len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []core.AccountWithUsage{}
	for rows.Next() {
		var aw core.AccountWithUsage
		if err := rows.Scan(
			&aw.ID, &aw.CompanyName, &aw.Email, &aw.Phone, &aw.ContactPerson,
			&aw.Address, &aw.Tier, &aw.BillingCycle, &aw.MaxUsers, &aw.Status,
			&aw.CustomDomain, &aw.Notes, &aw.MonthlyRevenue, &aw.NextBillingDate,
			&aw.CreatedAt, &aw.UpdatedAt,
			&aw.Usage.Calls, &aw.Usage.Emails, &aw.Usage.SMS, &aw.Usage.WhatsApp,
			&aw.Usage.Telegram, &aw.Usage.Messenger, &aw.Usage.WebChat,
			&aw.Usage.Fax, &aw.Usage.TotalCost); err != nil {
			return nil, 0, err
		}
		out = append(out, aw)
	}
	return out, total, rows.Err()
}

// prefixColumns rewrites a bare column list as table-qualified refs.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// GetAccount returns the account plus its lifetime usage summary.
func (s *Store) GetAccount(ctx context.Context, id string) (*core.ClientAccount, *core.UsageSummary, error) {
	q := "SELECT " + accountColumns + " FROM client_account WHERE id = $1"

	var acc core.ClientAccount
	if err := scanAccount(s.pool.QueryRow(ctx, q, id), &acc); err != nil {
		return nil, nil, notFound(err)
	}

	const qUsage = `
		SELECT COALESCE(SUM(calls),0), COALESCE(SUM(emails),0), COALESCE(SUM(sms),0),
		       COALESCE(SUM(whatsapp),0), COALESCE(SUM(telegram),0),
		       COALESCE(SUM(messenger),0), COALESCE(SUM(webchat),0),
		       COALESCE(SUM(fax),0), COALESCE(SUM(total_cost),0)
		FROM usage_daily WHERE account_id = $1`

	var u core.UsageSummary
	if err := s.pool.QueryRow(ctx, qUsage, id).Scan(
		&u.Calls, &u.Emails, &u.SMS, &u.WhatsApp, &u.Telegram,
		&u.Messenger, &u.WebChat, &u.Fax, &u.TotalCost); err != nil {
		return nil, nil, err
	}
	return &acc, &u, nil
}

// UpdateAccount applies a partial patch under a row lock. Derived fields
// are recomputed when the tier or the billing cycle change; the billing
// anchor for a cycle change is the update time.
func (s *Store) UpdateAccount(ctx context.Context, id string, patch core.AccountPatch, meta core.ActivityMeta) (*core.ClientAccount, error) {
	var acc core.ClientAccount

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		q := "SELECT " + accountColumns + " FROM client_account WHERE id = $1 FOR UPDATE"
		if err := scanAccount(tx.QueryRow(ctx, q, id), &acc); err != nil {
			return notFound(err)
		}
		if patch.Empty() {
			// An empty patch still bumps updated_at and leaves a trace.
			acc.UpdatedAt = time.Now().UTC()
			const qTouch = "UPDATE client_account SET updated_at = $2 WHERE id = $1"
			if _, err := tx.Exec(ctx, qTouch, id, acc.UpdatedAt); err != nil {
				return err
			}
			return appendActivity(ctx, tx, id, "account.updated", "account details updated", "account", id, meta)
		}

		if patch.Email != nil && !strings.EqualFold(*patch.Email, acc.Email) {
			const qDup = `
				SELECT EXISTS (
					SELECT 1 FROM client_account
					WHERE lower(email) = lower($1) AND status <> 'cancelled' AND id <> $2)`
			var taken bool
			if err := tx.QueryRow(ctx, qDup, *patch.Email, id).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return core.ErrDuplicateEmail
			}
		}

		applyPatch(&acc, patch)
		now := time.Now().UTC()
		if patch.Tier != nil {
			acc.MonthlyRevenue = core.PricingFor(acc.Tier)
		}
		if patch.BillingCycle != nil {
			acc.NextBillingDate = core.NextBillingDate(acc.BillingCycle, now)
		}
		acc.UpdatedAt = now

		const qUpd = `
			UPDATE client_account SET
				company_name = $2, email = $3, phone = $4, contact_person = $5,
				address = $6, subscription_tier = $7, billing_cycle = $8,
				max_users = $9, custom_domain = $10, notes = $11,
				monthly_revenue = $12, next_billing_date = $13, updated_at = $14
			WHERE id = $1`

		_, err := tx.Exec(ctx, qUpd, id,
			acc.CompanyName, acc.Email, acc.Phone, acc.ContactPerson, acc.Address,
			acc.Tier, acc.BillingCycle, acc.MaxUsers, acc.CustomDomain, acc.Notes,
			acc.MonthlyRevenue, acc.NextBillingDate, acc.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return core.ErrDuplicateEmail
			}
			return err
		}
		return appendActivity(ctx, tx, id, "account.updated", "account details updated", "account", id, meta)
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func applyPatch(acc *core.ClientAccount, p core.AccountPatch) {
	if p.CompanyName != nil {
		acc.CompanyName = *p.CompanyName
	}
	if p.Email != nil {
		acc.Email = *p.Email
	}
	if p.Phone != nil {
		acc.Phone = *p.Phone
	}
	if p.ContactPerson != nil {
		acc.ContactPerson = *p.ContactPerson
	}
	if p.Address != nil {
		acc.Address = p.Address
	}
	if p.Tier != nil {
		acc.Tier = *p.Tier
	}
	if p.BillingCycle != nil {
		acc.BillingCycle = *p.BillingCycle
	}
	if p.MaxUsers != nil {
		acc.MaxUsers = *p.MaxUsers
	}
	if p.CustomDomain != nil {
		acc.CustomDomain = p.CustomDomain
	}
	if p.Notes != nil {
		acc.Notes = *p.Notes
	}
}

// SetAccountStatus transitions the lifecycle under a row lock. Illegal
// transitions return ErrConflict; cancelled stays terminal.
func (s *Store) SetAccountStatus(ctx context.Context, id string, status core.AccountStatus, reason string, meta core.ActivityMeta) (*core.ClientAccount, error) {
	var acc core.ClientAccount

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		q := "SELECT " + accountColumns + " FROM client_account WHERE id = $1 FOR UPDATE"
		if err := scanAccount(tx.QueryRow(ctx, q, id), &acc); err != nil {
			return notFound(err)
		}
		if !core.CanTransition(acc.Status, status) {
			return fmt.Errorf("%w: cannot move %s account to %s", core.ErrConflict, acc.Status, status)
		}

		acc.Status = status
		acc.UpdatedAt = time.Now().UTC()

		const qUpd = `UPDATE client_account SET status = $2, updated_at = $3 WHERE id = $1`
		if _, err := tx.Exec(ctx, qUpd, id, acc.Status, acc.UpdatedAt); err != nil {
			return err
		}

		detail := "status changed to " + string(status)
		if reason != "" {
			detail += ": " + reason
		}
		return appendActivity(ctx, tx, id, "account."+string(status), detail, "account", id, meta)
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Analytics aggregates the cross-account view: counts by status and
// tier, the active monthly recurring revenue, and the five most recent
// accounts.
func (s *Store) Analytics(ctx context.Context) (*core.Analytics, error) {
	a := &core.Analytics{
		ByStatus: map[core.AccountStatus]int{},
		ByTier:   map[core.SubscriptionTier]int{},
	}

	const qStatus = `SELECT status, COUNT(*) FROM client_account GROUP BY status`
	rows, err := s.pool.Query(ctx, qStatus)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var st core.AccountStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, err
		}
		a.ByStatus[st] = n
		a.TotalAccounts += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qTier = `
		SELECT subscription_tier, COUNT(*)
		FROM client_account WHERE status <> 'cancelled'
		GROUP BY subscription_tier`
	rows, err = s.pool.Query(ctx, qTier)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var tier core.SubscriptionTier
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			rows.Close()
			return nil, err
		}
		a.ByTier[tier] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qMRR = `
		SELECT COALESCE(SUM(monthly_revenue),0)
		FROM client_account WHERE status = 'active'`
	if err := s.pool.QueryRow(ctx, qMRR).Scan(&a.MonthlyRevenue); err != nil {
		return nil, err
	}

	qRecent := "SELECT " + accountColumns + ` FROM client_account
		ORDER BY created_at DESC LIMIT 5`
	rows, err = s.pool.Query(ctx, qRecent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var acc core.ClientAccount
		if err := scanAccount(rows, &acc); err != nil {
			return nil, err
		}
		a.Recent = append(a.Recent, acc)
	}
	return a, rows.Err()
}
