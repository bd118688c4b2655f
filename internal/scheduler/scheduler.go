// Package scheduler tracks per-account rate-limit/cooldown/health state for
// every provider with multiple accounts, selects the best account for a
// role, and falls back across accounts (then providers) on 429 or
// provider-side failure.
//
// Grounded on internal/provider/registry.go's capability-table idea
// (capability.go) and internal/session/loop.go's cenkalti/backoff/v4
// exponential-backoff-with-jitter retry construction, retargeted from
// "retry one API call" to "retry across a pool of accounts."
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/pkg/types"
)

// Role is which side of a review pair an account is being selected for.
type Role string

const (
	RoleImplementer Role = "implementer"
	RoleReviewer    Role = "reviewer"
)

// account is one provider credential's live scheduling state.
type account struct {
	provider types.Provider
	name     string

	mu             sync.Mutex
	cooldownUntil  int64 // unix millis; 0 means not cooling
	consecutiveErr int
	healthy        bool
}

func (a *account) available(now int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cooldownUntil == 0 || a.cooldownUntil <= now
}

// Pool tracks every configured account across every provider.
type Pool struct {
	mu       sync.Mutex
	accounts map[types.Provider][]*account
}

// New builds a Pool from the daemon config's per-provider account lists. A
// provider with no accounts configured gets one implicit "default" account,
// so single-credential setups still flow through the same selection and
// cooldown machinery.
func New(cfg *types.Config) *Pool {
	p := &Pool{accounts: make(map[types.Provider][]*account)}
	for name, pc := range cfg.Providers {
		if pc.Disabled {
			continue
		}
		provider := types.Provider(name)
		names := pc.Accounts
		if len(names) == 0 {
			names = []string{"default"}
		}
		for _, acctName := range names {
			p.accounts[provider] = append(p.accounts[provider], &account{
				provider: provider, name: acctName, healthy: true,
			})
		}
	}
	return p
}

// providers returns every provider with at least one account, ordered for
// deterministic selection (alphabetical, since map iteration order isn't).
func (p *Pool) providers() []types.Provider {
	out := make([]types.Provider, 0, len(p.accounts))
	for prov := range p.accounts {
		out = append(out, prov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SelectForRole picks the best (provider, account) pair for role. The
// reviewer role prefers a provider other than implementerProvider (the
// cross-model verification rule); if no other provider has an available
// account it falls back to implementerProvider rather than blocking review
// entirely.
func (p *Pool) SelectForRole(role Role, implementerProvider types.Provider) (types.Provider, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UnixMilli()

	if role == RoleReviewer {
		for _, prov := range p.providers() {
			if prov == implementerProvider {
				continue
			}
			if acct := bestAccount(p.accounts[prov], now); acct != nil {
				return prov, acct.name, nil
			}
		}
	}

	if acct := bestAccount(p.accounts[implementerProvider], now); acct != nil {
		return implementerProvider, acct.name, nil
	}

	// Implementer's own provider is exhausted too; any available account
	// anywhere beats refusing to run at all.
	for _, prov := range p.providers() {
		if acct := bestAccount(p.accounts[prov], now); acct != nil {
			return prov, acct.name, nil
		}
	}

	return "", "", clawerr.ResourceExhaustedf("NO_ACCOUNT_AVAILABLE", "no account available for role %s (implementer=%s)", role, implementerProvider)
}

// bestAccount returns the healthiest available account, preferring fewer
// consecutive errors, or nil if every account is cooling down.
func bestAccount(accts []*account, now int64) *account {
	var best *account
	for _, a := range accts {
		if !a.available(now) {
			continue
		}
		a.mu.Lock()
		errs := a.consecutiveErr
		a.mu.Unlock()
		if best == nil {
			best = a
			continue
		}
		best.mu.Lock()
		bestErrs := best.consecutiveErr
		best.mu.Unlock()
		if errs < bestErrs {
			best = a
		}
	}
	return best
}

// MarkFailure cools provider/account down for retryAfter (or an exponential
// backoff derived from its consecutive-failure count if retryAfter is 0,
// i.e. the provider didn't send a Retry-After hint).
func (p *Pool) MarkFailure(provider types.Provider, acctName string, retryAfter time.Duration) {
	a := p.find(provider, acctName)
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consecutiveErr++
	a.healthy = a.consecutiveErr < 3
	wait := retryAfter
	if wait <= 0 {
		wait = backoffFor(a.consecutiveErr)
	}
	a.cooldownUntil = time.Now().Add(wait).UnixMilli()
}

// MarkSuccess clears an account's cooldown and failure count.
func (p *Pool) MarkSuccess(provider types.Provider, acctName string) {
	a := p.find(provider, acctName)
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consecutiveErr = 0
	a.cooldownUntil = 0
	a.healthy = true
}

func (p *Pool) find(provider types.Provider, acctName string) *account {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts[provider] {
		if a.name == acctName {
			return a
		}
	}
	return nil
}

func backoffFor(consecutiveErr int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 2 * time.Minute
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	var d time.Duration
	for i := 0; i < consecutiveErr; i++ {
		d = b.NextBackOff()
	}
	if d <= 0 {
		d = b.MaxInterval
	}
	return d
}

// Call is what RunWithFallback invokes for a selected (provider, account)
// pair. A *RateLimited error cools the account for its RetryAfter; any other
// non-nil error cools it by backoff; either way RunWithFallback moves on to
// the next account.
type Call func(ctx context.Context, provider types.Provider, account string) error

// RateLimited signals a 429-equivalent response; RetryAfter may be zero, in
// which case RunWithFallback backs off by the account's own failure count.
type RateLimited struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimited) Error() string { return fmt.Sprintf("rate limited: %v", e.Cause) }
func (e *RateLimited) Unwrap() error { return e.Cause }

// RunWithFallback selects an account for role, invokes call, and on a
// RateLimited or other error marks that account cooling and retries on the
// next-best account (cross-provider for a reviewer call) until one
// succeeds or every account has been tried, at which point the last error
// bubbles to the caller wrapped as clawerr.ExternalFailure.
func (p *Pool) RunWithFallback(ctx context.Context, role Role, implementerProvider types.Provider, call Call) error {
	tried := make(map[string]bool)
	var lastErr error

	for {
		prov, acctName, err := p.SelectForRole(role, implementerProvider)
		if err != nil {
			if lastErr != nil {
				return clawerr.ExternalFailuref("all accounts exhausted after %v: %v", lastErr, err)
			}
			return err
		}
		key := string(prov) + "/" + acctName
		if tried[key] {
			// SelectForRole has nothing new to offer; stop instead of looping.
			return clawerr.ExternalFailuref("all accounts exhausted, last error: %v", lastErr)
		}
		tried[key] = true

		callErr := call(ctx, prov, acctName)
		if callErr == nil {
			p.MarkSuccess(prov, acctName)
			return nil
		}

		lastErr = callErr
		var rl *RateLimited
		if asRateLimited(callErr, &rl) {
			p.MarkFailure(prov, acctName, rl.RetryAfter)
			continue
		}
		p.MarkFailure(prov, acctName, 0)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func asRateLimited(err error, target **RateLimited) bool {
	rl, ok := err.(*RateLimited)
	if ok {
		*target = rl
	}
	return ok
}
