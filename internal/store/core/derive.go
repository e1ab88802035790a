package core

import "time"

// Pricing is the monthly price per tier, in account currency units.
var Pricing = map[SubscriptionTier]float64{
	TierBasic:        29,
	TierProfessional: 99,
	TierEnterprise:   299,
}

// PricingFor returns the monthly revenue derived from a tier.
// Unknown tiers price at zero.
func PricingFor(tier SubscriptionTier) float64 {
	return Pricing[tier]
}

// CyclePeriod maps a billing cycle to its length in days.
var CyclePeriod = map[BillingCycle]int{
	CycleMonthly:   30,
	CycleQuarterly: 90,
	CycleYearly:    365,
}

// NextBillingDate derives the next due timestamp from the cycle and the
// anchor (account creation, or last modification when the cycle changed).
func NextBillingDate(cycle BillingCycle, anchor time.Time) time.Time {
	days := CyclePeriod[cycle]
	if days == 0 {
		days = CyclePeriod[CycleMonthly]
	}
	return anchor.Add(time.Duration(days) * 24 * time.Hour)
}

// CanTransition reports whether an account status change is legal:
// pending → active, active ↔ suspended, anything non-cancelled →
// cancelled. Cancelled is terminal.
func CanTransition(from, to AccountStatus) bool {
	if from == StatusCancelled {
		return false
	}
	switch to {
	case StatusActive:
		return from == StatusPending || from == StatusSuspended
	case StatusSuspended:
		return from == StatusActive
	case StatusCancelled:
		return true
	}
	return false
}
