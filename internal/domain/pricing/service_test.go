package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/haggle/haggle-api/internal/domain/pricing"
)

func testTiers() map[pricing.TierID]pricing.Tier {
	return map[pricing.TierID]pricing.Tier{
		pricing.TierCommercial: {
			ID:                 pricing.TierCommercial,
			StartingPriceCents: 10,
			FloorPriceCents:    5,
			Schedule:           []int64{10, 7, 5},
		},
		pricing.TierEduOrg: {
			ID:                 pricing.TierEduOrg,
			StartingPriceCents: 8,
			FloorPriceCents:    4,
			Schedule:           []int64{8, 6, 4},
		},
	}
}

func newTestService() *pricing.Service {
	return pricing.NewService(pricing.NewMemoryStore(), testTiers())
}

// complain runs one complaint turn the way the negotiate endpoint does when
// no oracle is available: pick the fallback action, then advance.
func complain(t *testing.T, svc *pricing.Service, identity string) (*pricing.State, pricing.Action) {
	t.Helper()
	st, err := svc.GetOrInit(context.Background(), identity, "acme.com")
	if err != nil {
		t.Fatalf("get state failed: %v", err)
	}
	action := svc.NextAction(st)
	st, err = svc.Advance(context.Background(), identity, action)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	return st, action
}

func TestNegotiationComplaintSequence(t *testing.T) {
	svc := newTestService()

	// First complaint holds the price, later ones walk the schedule down,
	// and the floor is terminal.
	steps := []struct {
		action pricing.Action
		price  int64
	}{
		{pricing.ActionPushback, 10},
		{pricing.ActionDiscount, 7},
		{pricing.ActionDiscount, 5},
		{pricing.ActionFloor, 5},
		{pricing.ActionFloor, 5},
	}

	for i, want := range steps {
		st, action := complain(t, svc, "0xabc")
		if action != want.action {
			t.Fatalf("complaint %d: expected action %s, got %s", i+1, want.action, action)
		}
		if st.PriceCents != want.price {
			t.Fatalf("complaint %d: expected price %d, got %d", i+1, want.price, st.PriceCents)
		}
	}
}

func TestPriceNeverIncreases(t *testing.T) {
	svc := newTestService()

	prev := int64(1 << 30)
	for i := 0; i < 10; i++ {
		st, _ := complain(t, svc, "0xabc")
		if st.PriceCents > prev {
			t.Fatalf("price increased from %d to %d on turn %d", prev, st.PriceCents, i+1)
		}
		prev = st.PriceCents
	}
	if prev != 5 {
		t.Fatalf("expected terminal price at the floor (5), got %d", prev)
	}
}

func TestClampDiscountWithoutPriorAttempt(t *testing.T) {
	svc := newTestService()

	st, err := svc.GetOrInit(context.Background(), "0xabc", "acme.com")
	if err != nil {
		t.Fatalf("get state failed: %v", err)
	}

	action := svc.Clamp(pricing.Suggestion{Action: pricing.ActionDiscount, PriceCents: 1}, st)
	if action != pricing.ActionPushback {
		t.Fatalf("expected discount on first complaint to clamp to pushback, got %s", action)
	}
}

func TestClampUnknownAction(t *testing.T) {
	svc := newTestService()

	st, err := svc.GetOrInit(context.Background(), "0xabc", "acme.com")
	if err != nil {
		t.Fatalf("get state failed: %v", err)
	}

	action := svc.Clamp(pricing.Suggestion{Action: "give_it_away"}, st)
	if action != pricing.ActionChat {
		t.Fatalf("expected unknown action to clamp to chat, got %s", action)
	}
}

func TestSuggestedPriceIgnored(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GetOrInit(context.Background(), "0xabc", "acme.com"); err != nil {
		t.Fatalf("get state failed: %v", err)
	}
	// One complaint so a discount is allowed.
	if _, err := svc.Advance(context.Background(), "0xabc", pricing.ActionPushback); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	st, err := svc.Advance(context.Background(), "0xabc", pricing.ActionDiscount)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if st.PriceCents != 7 {
		t.Fatalf("expected schedule price 7, got %d", st.PriceCents)
	}
}

func TestQuoteLeavesStateUntouched(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GetOrInit(context.Background(), "0xabc", "acme.com"); err != nil {
		t.Fatalf("get state failed: %v", err)
	}

	st, err := svc.Advance(context.Background(), "0xabc", pricing.ActionQuote)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if st.Attempts != 0 || st.PriceCents != 10 || st.Round != 0 {
		t.Fatalf("expected quote to leave state untouched, got %+v", st)
	}
}

func TestDomainClassification(t *testing.T) {
	cases := []struct {
		domain string
		tier   pricing.TierID
	}{
		{"stanford.edu", pricing.TierEduOrg},
		{"mozilla.org", pricing.TierEduOrg},
		{"ACME.EDU", pricing.TierEduOrg},
		{"acme.com", pricing.TierCommercial},
		{"", pricing.TierCommercial},
	}

	for _, c := range cases {
		if got := pricing.ClassifyDomain(c.domain); got != c.tier {
			t.Errorf("domain %q: expected tier %s, got %s", c.domain, c.tier, got)
		}
	}
}

func TestGetOrInitSeedsByDomain(t *testing.T) {
	svc := newTestService()

	st, err := svc.GetOrInit(context.Background(), "0xedu", "stanford.edu")
	if err != nil {
		t.Fatalf("get state failed: %v", err)
	}
	if st.Tier != pricing.TierEduOrg || st.PriceCents != 8 {
		t.Fatalf("expected edu_org state at 8, got tier=%s price=%d", st.Tier, st.PriceCents)
	}

	// Second call does not reseed; the domain argument is only used once.
	again, err := svc.GetOrInit(context.Background(), "0xedu", "acme.com")
	if err != nil {
		t.Fatalf("get state failed: %v", err)
	}
	if again.Tier != pricing.TierEduOrg {
		t.Fatalf("expected tier immutable after init, got %s", again.Tier)
	}
}

func TestAdvanceWithoutState(t *testing.T) {
	svc := newTestService()

	_, err := svc.Advance(context.Background(), "0xnone", pricing.ActionPushback)
	if !errors.Is(err, pricing.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestTopic(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GetOrInit(context.Background(), "0xabc", "acme.com"); err != nil {
		t.Fatalf("get state failed: %v", err)
	}

	if _, err := svc.SetTopic(context.Background(), "0xabc", "deep dish pizza"); err != nil {
		t.Fatalf("set topic failed: %v", err)
	}
	topic, err := svc.GetTopic(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("get topic failed: %v", err)
	}
	if topic != "deep dish pizza" {
		t.Fatalf("expected stored topic, got %q", topic)
	}
}
