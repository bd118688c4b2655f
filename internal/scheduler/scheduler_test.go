package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clawd-io/clawd/pkg/types"
)

func testPool(t *testing.T, providers map[string][]string) *Pool {
	t.Helper()
	cfg := &types.Config{Providers: map[string]types.ProviderConfig{}}
	for name, accounts := range providers {
		cfg.Providers[name] = types.ProviderConfig{Accounts: accounts}
	}
	return New(cfg)
}

func TestSelectForRoleReviewerPrefersDifferentProvider(t *testing.T) {
	p := testPool(t, map[string][]string{
		"claude": {"a1"},
		"codex":  {"a1"},
	})

	prov, _, err := p.SelectForRole(RoleReviewer, types.ProviderClaude)
	if err != nil {
		t.Fatalf("SelectForRole: %v", err)
	}
	if prov != types.ProviderCodex {
		t.Fatalf("expected reviewer to get codex, got %s", prov)
	}

	implProv, _, err := p.SelectForRole(RoleImplementer, types.ProviderClaude)
	if err != nil {
		t.Fatalf("SelectForRole implementer: %v", err)
	}
	if implProv != types.ProviderClaude {
		t.Fatalf("expected implementer to get claude, got %s", implProv)
	}
}

func TestSelectForRoleReviewerFallsBackWhenNoOtherProvider(t *testing.T) {
	p := testPool(t, map[string][]string{"claude": {"a1"}})

	prov, _, err := p.SelectForRole(RoleReviewer, types.ProviderClaude)
	if err != nil {
		t.Fatalf("SelectForRole: %v", err)
	}
	if prov != types.ProviderClaude {
		t.Fatalf("expected fallback to claude, got %s", prov)
	}
}

func TestSelectForRoleSkipsCoolingAccounts(t *testing.T) {
	p := testPool(t, map[string][]string{"claude": {"a1", "a2"}})

	p.MarkFailure(types.ProviderClaude, "a1", time.Hour)

	_, acct, err := p.SelectForRole(RoleImplementer, types.ProviderClaude)
	if err != nil {
		t.Fatalf("SelectForRole: %v", err)
	}
	if acct != "a2" {
		t.Fatalf("expected a2 (a1 cooling), got %s", acct)
	}
}

func TestRunWithFallbackRetriesOnAnotherAccount(t *testing.T) {
	p := testPool(t, map[string][]string{"claude": {"a1", "a2"}})

	var tried []string
	err := p.RunWithFallback(context.Background(), RoleImplementer, types.ProviderClaude,
		func(ctx context.Context, provider types.Provider, account string) error {
			tried = append(tried, account)
			if account == "a1" {
				return &RateLimited{Cause: errors.New("429")}
			}
			return nil
		})
	if err != nil {
		t.Fatalf("RunWithFallback: %v", err)
	}
	if len(tried) != 2 || tried[0] != "a1" || tried[1] != "a2" {
		t.Fatalf("expected fallback from a1 to a2, got %v", tried)
	}
}

func TestRunWithFallbackBubblesPersistentFailure(t *testing.T) {
	p := testPool(t, map[string][]string{"claude": {"a1", "a2"}})

	calls := 0
	err := p.RunWithFallback(context.Background(), RoleImplementer, types.ProviderClaude,
		func(ctx context.Context, provider types.Provider, account string) error {
			calls++
			return &RateLimited{Cause: errors.New("429")}
		})
	if err == nil {
		t.Fatal("expected persistent failure to bubble up")
	}
	if calls != 2 {
		t.Fatalf("expected both accounts tried once, got %d calls", calls)
	}
}

func TestMarkSuccessClearsCooldown(t *testing.T) {
	p := testPool(t, map[string][]string{"claude": {"a1"}})

	p.MarkFailure(types.ProviderClaude, "a1", time.Hour)
	if _, _, err := p.SelectForRole(RoleImplementer, types.ProviderClaude); err == nil {
		t.Fatal("expected no account available while cooling")
	}

	p.MarkSuccess(types.ProviderClaude, "a1")
	_, acct, err := p.SelectForRole(RoleImplementer, types.ProviderClaude)
	if err != nil {
		t.Fatalf("SelectForRole after recovery: %v", err)
	}
	if acct != "a1" {
		t.Fatalf("expected a1 available after MarkSuccess, got %s", acct)
	}
}

func TestCapabilityOfUnknownProviderReturnsZeroValue(t *testing.T) {
	c := CapabilityOf(types.Provider("unknown"))
	if c.SupportsFork || c.MaxContextTokens != 0 {
		t.Fatalf("expected zero-value capability for unknown provider, got %+v", c)
	}
}
