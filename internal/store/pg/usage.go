package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/healthguard/surveillance/internal/store/core"
)

// channelColumn maps a validated channel to its counter column. The
// channel must pass Valid() before reaching this table; values here are
// the only identifiers ever spliced into the upsert.
var channelColumn = map[core.Channel]string{
	core.ChannelCalls:     "calls",
	core.ChannelEmails:    "emails",
	core.ChannelSMS:       "sms",
	core.ChannelWhatsApp:  "whatsapp",
	core.ChannelTelegram:  "telegram",
	core.ChannelMessenger: "messenger",
	core.ChannelWebChat:   "webchat",
	core.ChannelFax:       "fax",
}

const usageColumns = `
	account_id, usage_date, calls, emails, sms, whatsapp, telegram,
	messenger, webchat, fax, total_cost`

func scanUsageDay(row rowScanner, d *core.UsageDay) error {
	return row.Scan(&d.AccountID, &d.Date, &d.Calls, &d.Emails, &d.SMS,
		&d.WhatsApp, &d.Telegram, &d.Messenger, &d.WebChat, &d.Fax, &d.TotalCost)
}

// RecordUsage increments today's counter for one channel, creating the
// day row on first touch. Counters never decrease within a day.
func (s *Store) RecordUsage(ctx context.Context, id string, ch core.Channel, count int64, cost float64, meta core.ActivityMeta) (*core.UsageDay, error) {
	col, ok := channelColumn[ch]
	if !ok {
		return nil, fmt.Errorf("%w: unknown channel %q", core.ErrInvalid, ch)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", core.ErrInvalid)
	}

	var day core.UsageDay
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		const qExists = `SELECT EXISTS (SELECT 1 FROM client_account WHERE id = $1)`
		var found bool
		if err := tx.QueryRow(ctx, qExists, id).Scan(&found); err != nil {
			return err
		}
		if !found {
			return core.ErrNotFound
		}

		q := fmt.Sprintf(`
			INSERT INTO usage_daily (account_id, usage_date, %[1]s, total_cost)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (account_id, usage_date) DO UPDATE SET
				%[1]s = usage_daily.%[1]s + EXCLUDED.%[1]s,
				total_cost = usage_daily.total_cost + EXCLUDED.total_cost
			RETURNING `+usageColumns, col)

		today := time.Now().UTC().Truncate(24 * time.Hour)
		if err := scanUsageDay(tx.QueryRow(ctx, q, id, today, count, cost), &day); err != nil {
			return err
		}

		detail := fmt.Sprintf("recorded %d %s", count, ch)
		return appendActivity(ctx, tx, id, "usage.recorded", detail,
			"usage_daily", day.Date.Format("2006-01-02"), meta)
	})
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// ListUsage returns the day rows in [from, to], newest first. Zero
// bounds default to the trailing 30 days.
func (s *Store) ListUsage(ctx context.Context, id string, from, to time.Time) ([]core.UsageDay, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}

	const q = `
		SELECT ` + usageColumns + `
		FROM usage_daily
		WHERE account_id = $1 AND usage_date BETWEEN $2 AND $3
		ORDER BY usage_date DESC`

	rows, err := s.pool.Query(ctx, q, id, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.UsageDay{}
	for rows.Next() {
		var d core.UsageDay
		if err := scanUsageDay(rows, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
