// Package core holds the domain vocabulary shared by the pg store, the
// HTTP layer, and test fakes. It is dependency-free on purpose.
package core

import "time"

type SubscriptionTier string

const (
	TierBasic        SubscriptionTier = "basic"
	TierProfessional SubscriptionTier = "professional"
	TierEnterprise   SubscriptionTier = "enterprise"
)

func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierBasic, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	switch c {
	case CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

type AccountStatus string

const (
	StatusPending   AccountStatus = "pending"
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusCancelled AccountStatus = "cancelled"
)

type BillingStatus string

const (
	BillingPending  BillingStatus = "pending"
	BillingPaid     BillingStatus = "paid"
	BillingFailed   BillingStatus = "failed"
	BillingRefunded BillingStatus = "refunded"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	RoleUser   Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleUser:
		return true
	}
	return false
}

// Channel is a communication channel tracked by the usage counters.
type Channel string

const (
	ChannelCalls     Channel = "calls"
	ChannelEmails    Channel = "emails"
	ChannelSMS       Channel = "sms"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelTelegram  Channel = "telegram"
	ChannelMessenger Channel = "messenger"
	ChannelWebChat   Channel = "webchat"
	ChannelFax       Channel = "fax"
)

// Channels lists every usage channel in column order.
var Channels = []Channel{
	ChannelCalls, ChannelEmails, ChannelSMS, ChannelWhatsApp,
	ChannelTelegram, ChannelMessenger, ChannelWebChat, ChannelFax,
}

func (ch Channel) Valid() bool {
	for _, c := range Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// ClientAccount is the durable tenant entity. MonthlyRevenue and
// NextBillingDate are derived; callers never write them directly.
type ClientAccount struct {
	ID            string           `json:"id"`
	CompanyName   string           `json:"company_name"`
	Email         string           `json:"email"`
	Phone         string           `json:"phone"`
	ContactPerson string           `json:"contact_person"`
	Address       *string          `json:"address,omitempty"`
	Tier          SubscriptionTier `json:"subscription_tier"`
	BillingCycle  BillingCycle     `json:"billing_cycle"`
	MaxUsers      int              `json:"max_users"`
	Status        AccountStatus    `json:"status"`
	CustomDomain  *string          `json:"custom_domain,omitempty"`
	Notes         string           `json:"notes"`

	MonthlyRevenue  float64   `json:"monthly_revenue"`
	NextBillingDate time.Time `json:"next_billing_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageDay is one row of per-channel counters for (account, day).
// Counters only ever grow within a day.
type UsageDay struct {
	AccountID string    `json:"account_id"`
	Date      time.Time `json:"date"`
	Calls     int64     `json:"calls"`
	Emails    int64     `json:"emails"`
	SMS       int64     `json:"sms"`
	WhatsApp  int64     `json:"whatsapp"`
	Telegram  int64     `json:"telegram"`
	Messenger int64     `json:"messenger"`
	WebChat   int64     `json:"webchat"`
	Fax       int64     `json:"fax"`
	TotalCost float64   `json:"total_cost"`
}

// UsageSummary aggregates usage rows across days.
type UsageSummary struct {
	Calls     int64   `json:"calls"`
	Emails    int64   `json:"emails"`
	SMS       int64   `json:"sms"`
	WhatsApp  int64   `json:"whatsapp"`
	Telegram  int64   `json:"telegram"`
	Messenger int64   `json:"messenger"`
	WebChat   int64   `json:"webchat"`
	Fax       int64   `json:"fax"`
	TotalCost float64 `json:"total_cost"`
}

// BillingRecord transitions status but is never deleted. At most one
// pending record exists per account.
type BillingRecord struct {
	ID         string        `json:"id"`
	AccountID  string        `json:"account_id"`
	Amount     float64       `json:"amount"`
	Currency   string        `json:"currency"`
	Cycle      BillingCycle  `json:"billing_cycle"`
	Status     BillingStatus `json:"status"`
	DueAt      time.Time     `json:"due_at"`
	PaidAt     *time.Time    `json:"paid_at,omitempty"`
	InvoiceRef *string       `json:"invoice_ref,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ClientSettings is one row per account: channel toggles, limits and
// branding. Created with defaults when the account is onboarded.
type ClientSettings struct {
	AccountID string `json:"account_id"`

	CallsEnabled     bool `json:"calls_enabled"`
	EmailsEnabled    bool `json:"emails_enabled"`
	SMSEnabled       bool `json:"sms_enabled"`
	WhatsAppEnabled  bool `json:"whatsapp_enabled"`
	TelegramEnabled  bool `json:"telegram_enabled"`
	MessengerEnabled bool `json:"messenger_enabled"`
	WebChatEnabled   bool `json:"webchat_enabled"`
	FaxEnabled       bool `json:"fax_enabled"`

	APIAccessEnabled bool `json:"api_access_enabled"`
	WebhooksEnabled  bool `json:"webhooks_enabled"`

	StorageLimitMB    int `json:"storage_limit_mb"`
	DailyRequestLimit int `json:"daily_request_limit"`
	ContactLimit      int `json:"contact_limit"`

	BrandColor  string `json:"brand_color"`
	DisplayName string `json:"display_name"`
	LogoURL     string `json:"logo_url"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings seeds an account's settings row at creation time.
func DefaultSettings(accountID string, tier SubscriptionTier) ClientSettings {
	s := ClientSettings{
		AccountID:         accountID,
		CallsEnabled:      true,
		EmailsEnabled:     true,
		SMSEnabled:        true,
		WebChatEnabled:    true,
		StorageLimitMB:    1024,
		DailyRequestLimit: 10000,
		ContactLimit:      1000,
		BrandColor:        "#2563eb",
	}
	if tier == TierProfessional || tier == TierEnterprise {
		s.WhatsAppEnabled = true
		s.APIAccessEnabled = true
		s.StorageLimitMB = 10240
		s.DailyRequestLimit = 100000
		s.ContactLimit = 25000
	}
	if tier == TierEnterprise {
		s.TelegramEnabled = true
		s.MessengerEnabled = true
		s.FaxEnabled = true
		s.WebhooksEnabled = true
		s.StorageLimitMB = 102400
		s.DailyRequestLimit = 1000000
		s.ContactLimit = 0 // unlimited
	}
	return s
}

// Activity is an append-only audit row describing one mutation.
type Activity struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Action       string    `json:"action"`
	ActorID      *string   `json:"actor_id,omitempty"`
	ResourceType *string   `json:"resource_type,omitempty"`
	ResourceID   *string   `json:"resource_id,omitempty"`
	Detail       string    `json:"detail"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityMeta carries the request context every mutating store
// operation needs for its audit row.
type ActivityMeta struct {
	ActorID   *string
	IPAddress string
	UserAgent string
}

// User is an authentication principal. Role admin satisfies
// administrative guards; client/admin satisfy account-scoped guards
// when AccountID matches.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	AccountID    *string   `json:"account_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Analytics is the cross-account aggregate view.
type Analytics struct {
	TotalAccounts  int                      `json:"total_accounts"`
	ByStatus       map[AccountStatus]int    `json:"by_status"`
	ByTier         map[SubscriptionTier]int `json:"by_tier"`
	MonthlyRevenue float64                  `json:"monthly_revenue"`
	Recent         []ClientAccount          `json:"recent"`
}
