// Package app wires the process singletons into one container handed to
// every handler constructor.
package app

import (
	"context"

	"github.com/healthguard/surveillance/internal/cache"
	"github.com/healthguard/surveillance/internal/config"
	"github.com/healthguard/surveillance/internal/email"
	"github.com/healthguard/surveillance/internal/monitor"
	"github.com/healthguard/surveillance/internal/push"
	"github.com/healthguard/surveillance/internal/rate"
	"github.com/healthguard/surveillance/internal/store/core"
	"github.com/healthguard/surveillance/internal/token"
)

// ActivityLister is the optional audit-trail read side; the pg store
// implements it.
type ActivityLister interface {
	ListActivity(ctx context.Context, accountID string, limit int) ([]core.Activity, error)
}

type Container struct {
	Cfg *config.Config

	Accounts core.AccountStore
	Users    core.UserStore
	Flags    core.FlagStore
	Activity ActivityLister

	Tokens    *token.Service
	Cache     *cache.Facade
	Collector *monitor.Collector
	Health    *monitor.HealthChecker
	Push      *push.Registry
	Notifier  *email.Notifier
	Limiter   rate.Limiter
}
