package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPricingPerTier(t *testing.T) {
	assert.Equal(t, float64(29), PricingFor(TierBasic))
	assert.Equal(t, float64(99), PricingFor(TierProfessional))
	assert.Equal(t, float64(299), PricingFor(TierEnterprise))
	assert.Zero(t, PricingFor(SubscriptionTier("platinum")))
}

func TestNextBillingDate(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, anchor.Add(30*24*time.Hour), NextBillingDate(CycleMonthly, anchor))
	assert.Equal(t, anchor.Add(90*24*time.Hour), NextBillingDate(CycleQuarterly, anchor))
	assert.Equal(t, anchor.Add(365*24*time.Hour), NextBillingDate(CycleYearly, anchor))

	// Unknown cycles fall back to monthly.
	assert.Equal(t, anchor.Add(30*24*time.Hour), NextBillingDate(BillingCycle("weekly"), anchor))
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AccountStatus
		ok       bool
	}{
		{StatusPending, StatusActive, true},
		{StatusActive, StatusSuspended, true},
		{StatusSuspended, StatusActive, true},
		{StatusPending, StatusCancelled, true},
		{StatusActive, StatusCancelled, true},
		{StatusSuspended, StatusCancelled, true},
		{StatusPending, StatusSuspended, false},
		{StatusCancelled, StatusActive, false},
		{StatusCancelled, StatusSuspended, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestDefaultSettingsGraduateByTier(t *testing.T) {
	basic := DefaultSettings("a", TierBasic)
	assert.True(t, basic.CallsEnabled)
	assert.False(t, basic.WhatsAppEnabled)
	assert.Equal(t, 1024, basic.StorageLimitMB)

	pro := DefaultSettings("a", TierProfessional)
	assert.True(t, pro.WhatsAppEnabled)
	assert.True(t, pro.APIAccessEnabled)
	assert.False(t, pro.FaxEnabled)

	ent := DefaultSettings("a", TierEnterprise)
	assert.True(t, ent.FaxEnabled)
	assert.True(t, ent.WebhooksEnabled)
	assert.Zero(t, ent.ContactLimit)
}

func TestAccountPatchEmpty(t *testing.T) {
	assert.True(t, AccountPatch{}.Empty())

	name := "Acme"
	assert.False(t, AccountPatch{CompanyName: &name}.Empty())
}
