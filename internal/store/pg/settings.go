package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/healthguard/surveillance/internal/store/core"
)

const settingsColumns = `
	account_id, calls_enabled, emails_enabled, sms_enabled, whatsapp_enabled,
	telegram_enabled, messenger_enabled, webchat_enabled, fax_enabled,
	api_access_enabled, webhooks_enabled, storage_limit_mb,
	daily_request_limit, contact_limit, brand_color, display_name, logo_url,
	updated_at`

func insertSettings(ctx context.Context, tx pgx.Tx, s core.ClientSettings) error {
	const q = `
		INSERT INTO client_settings (` + settingsColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW())`

	_, err := tx.Exec(ctx, q,
		s.AccountID, s.CallsEnabled, s.EmailsEnabled, s.SMSEnabled,
		s.WhatsAppEnabled, s.TelegramEnabled, s.MessengerEnabled,
		s.WebChatEnabled, s.FaxEnabled, s.APIAccessEnabled, s.WebhooksEnabled,
		s.StorageLimitMB, s.DailyRequestLimit, s.ContactLimit,
		s.BrandColor, s.DisplayName, s.LogoURL)
	return err
}

// GetSettings returns the one settings row of the account.
func (s *Store) GetSettings(ctx context.Context, id string) (*core.ClientSettings, error) {
	const q = `SELECT ` + settingsColumns + ` FROM client_settings WHERE account_id = $1`

	var cs core.ClientSettings
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&cs.AccountID, &cs.CallsEnabled, &cs.EmailsEnabled, &cs.SMSEnabled,
		&cs.WhatsAppEnabled, &cs.TelegramEnabled, &cs.MessengerEnabled,
		&cs.WebChatEnabled, &cs.FaxEnabled, &cs.APIAccessEnabled,
		&cs.WebhooksEnabled, &cs.StorageLimitMB, &cs.DailyRequestLimit,
		&cs.ContactLimit, &cs.BrandColor, &cs.DisplayName, &cs.LogoURL,
		&cs.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &cs, nil
}

// UpdateSettings replaces the whole settings row and records the change.
func (s *Store) UpdateSettings(ctx context.Context, cs *core.ClientSettings, meta core.ActivityMeta) error {
	cs.UpdatedAt = time.Now().UTC()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		const q = `
			UPDATE client_settings SET
				calls_enabled = $2, emails_enabled = $3, sms_enabled = $4,
				whatsapp_enabled = $5, telegram_enabled = $6, messenger_enabled = $7,
				webchat_enabled = $8, fax_enabled = $9, api_access_enabled = $10,
				webhooks_enabled = $11, storage_limit_mb = $12,
				daily_request_limit = $13, contact_limit = $14, brand_color = $15,
				display_name = $16, logo_url = $17, updated_at = $18
			WHERE account_id = $1`

		tag, err := tx.Exec(ctx, q,
			cs.AccountID, cs.CallsEnabled, cs.EmailsEnabled, cs.SMSEnabled,
			cs.WhatsAppEnabled, cs.TelegramEnabled, cs.MessengerEnabled,
			cs.WebChatEnabled, cs.FaxEnabled, cs.APIAccessEnabled,
			cs.WebhooksEnabled, cs.StorageLimitMB, cs.DailyRequestLimit,
			cs.ContactLimit, cs.BrandColor, cs.DisplayName, cs.LogoURL,
			cs.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return core.ErrNotFound
		}
		return appendActivity(ctx, tx, cs.AccountID, "settings.updated",
			"client settings updated", "client_settings", cs.AccountID, meta)
	})
}
