package core

import (
	"context"
	"time"
)

// AccountFilter narrows ListAccounts. Search is a case-insensitive
// substring match over company name, contact email and contact person.
// Cancelled accounts are hidden unless Status asks for them.
type AccountFilter struct {
	Search string
	Status AccountStatus
	Tier   SubscriptionTier
	Limit  int
	Offset int
}

// AccountPatch is a partial update; nil fields are left untouched.
// Derived fields are recomputed when Tier or BillingCycle change.
type AccountPatch struct {
	CompanyName   *string
	Email         *string
	Phone         *string
	ContactPerson *string
	Address       *string
	Tier          *SubscriptionTier
	BillingCycle  *BillingCycle
	MaxUsers      *int
	CustomDomain  *string
	Notes         *string
}

// Empty reports whether the patch changes nothing.
func (p AccountPatch) Empty() bool {
	return p.CompanyName == nil && p.Email == nil && p.Phone == nil &&
		p.ContactPerson == nil && p.Address == nil && p.Tier == nil &&
		p.BillingCycle == nil && p.MaxUsers == nil &&
		p.CustomDomain == nil && p.Notes == nil
}

// AccountWithUsage pairs an account with its aggregated usage summary
// for list responses.
type AccountWithUsage struct {
	ClientAccount
	Usage UsageSummary `json:"usage"`
}

// AccountStore is the durable client-account algebra. Every mutation is
// atomic at the store level and appends an Activity row inside the same
// transaction; a failed mutation rolls the activity back too.
type AccountStore interface {
	CreateAccount(ctx context.Context, acc *ClientAccount, meta ActivityMeta) error
	ListAccounts(ctx context.Context, f AccountFilter) ([]AccountWithUsage, int, error)
	GetAccount(ctx context.Context, id string) (*ClientAccount, *UsageSummary, error)
	UpdateAccount(ctx context.Context, id string, patch AccountPatch, meta ActivityMeta) (*ClientAccount, error)
	// SetAccountStatus enforces CanTransition; illegal transitions return
	// ErrConflict.
	SetAccountStatus(ctx context.Context, id string, status AccountStatus, reason string, meta ActivityMeta) (*ClientAccount, error)
	RecordUsage(ctx context.Context, id string, ch Channel, count int64, cost float64, meta ActivityMeta) (*UsageDay, error)
	ListUsage(ctx context.Context, id string, from, to time.Time) ([]UsageDay, error)
	ListBilling(ctx context.Context, id string) ([]BillingRecord, error)
	GetSettings(ctx context.Context, id string) (*ClientSettings, error)
	UpdateSettings(ctx context.Context, s *ClientSettings, meta ActivityMeta) error
	Analytics(ctx context.Context) (*Analytics, error)
}

// UserStore persists authentication principals.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	// UpdateUserPassword persists the new hash. Existing sessions stay
	// valid; logout is advisory.
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
}

// FlagStore answers feature-gate lookups. Implementations must treat
// lookup failures as disabled (the pipeline fails closed either way).
type FlagStore interface {
	FeatureEnabled(ctx context.Context, slug string) (bool, error)
	SetFeature(ctx context.Context, slug string, enabled bool) error
}
