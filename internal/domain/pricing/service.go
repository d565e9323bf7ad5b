package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Service owns the per-identity negotiation price state machine. The backend
// is the sole pricing authority: advisory suggestions are clamped by Clamp
// and the next price always comes from the tier's discount schedule.
type Service struct {
	store Store
	tiers map[TierID]Tier
}

func NewService(store Store, tiers map[TierID]Tier) *Service {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	return &Service{store: store, tiers: tiers}
}

// Tier returns the configuration for a tier id.
func (s *Service) Tier(id TierID) (Tier, error) {
	t, ok := s.tiers[id]
	if !ok {
		return Tier{}, ErrUnknownTier
	}
	return t, nil
}

// GetOrInit returns the identity's negotiation state, creating it seeded at
// the domain tier's starting price on first call. Idempotent thereafter; the
// tier is derived once and immutable for the life of the state.
func (s *Service) GetOrInit(ctx context.Context, identity, domain string) (*State, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrIdentityRequired
	}

	st, err := s.store.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if st != nil {
		return st, nil
	}

	tierID := ClassifyDomain(domain)
	tier, err := s.Tier(tierID)
	if err != nil {
		return nil, err
	}

	st = &State{
		Identity:   identity,
		Tier:       tierID,
		PriceCents: tier.StartingPriceCents,
		AtFloor:    tier.StartingPriceCents <= tier.FloorPriceCents,
		UpdatedAt:  time.Now(),
	}
	if err := s.store.Put(ctx, identity, st); err != nil {
		return nil, err
	}

	log.Info().Str("identity", identity).Str("tier", string(tierID)).
		Int64("price_cents", st.PriceCents).Msg("negotiation state created")
	return st, nil
}

// Clamp validates an advisory suggestion against the current state and
// returns the action the backend will actually take. A discount suggestion
// is downgraded to pushback unless at least one prior complaint turn exists,
// and the suggested price is never consulted: the oracle is a natural
// language generator with no numeric fidelity.
func (s *Service) Clamp(sugg Suggestion, st *State) Action {
	action, ok := ParseAction(string(sugg.Action))
	if !ok {
		return ActionChat
	}
	if action == ActionDiscount && st.Attempts < 1 {
		return ActionPushback
	}
	return action
}

// NextAction is the deterministic negotiation policy used when no advisory
// suggestion is available for a complaint turn.
func (s *Service) NextAction(st *State) Action {
	if st.AtFloor {
		return ActionFloor
	}
	if st.Attempts < 1 {
		return ActionPushback
	}
	return ActionDiscount
}

// Advance applies an accepted action to the identity's state. Pushback,
// floor and chat increment attempts only; discount moves the price to the
// next strictly lower entry in the tier's schedule, clamping to the floor
// when the schedule is exhausted. Quote on a brand-new topic leaves attempts
// untouched. The price never increases and never crosses the floor.
func (s *Service) Advance(ctx context.Context, identity string, action Action) (*State, error) {
	st, err := s.store.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrStateNotFound
	}

	tier, err := s.Tier(st.Tier)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionQuote:
		// New-topic quote: price and attempts unchanged.
	case ActionPushback, ActionChat:
		st.Attempts++
	case ActionFloor:
		st.Attempts++
		if st.PriceCents > tier.FloorPriceCents {
			st.Round++
		}
		st.PriceCents = tier.FloorPriceCents
		st.AtFloor = true
	case ActionDiscount:
		st.Attempts++
		if st.Attempts-1 < 1 {
			// Defense in depth: discount without a prior complaint behaves
			// as pushback even if a caller skipped Clamp.
			break
		}
		next, ok := nextLower(tier.Schedule, st.PriceCents)
		if !ok || next < tier.FloorPriceCents {
			if st.PriceCents > tier.FloorPriceCents {
				st.Round++
			}
			st.PriceCents = tier.FloorPriceCents
			st.AtFloor = true
			break
		}
		st.PriceCents = next
		st.Round++
		st.AtFloor = st.PriceCents <= tier.FloorPriceCents
	default:
		st.Attempts++
	}

	// Invariant: never below the floor, regardless of how we got here.
	if st.PriceCents < tier.FloorPriceCents {
		st.PriceCents = tier.FloorPriceCents
		st.AtFloor = true
	}
	st.UpdatedAt = time.Now()

	if err := s.store.Put(ctx, identity, st); err != nil {
		return nil, err
	}
	return st, nil
}

// SetTopic stores the most recently requested subject verbatim.
func (s *Service) SetTopic(ctx context.Context, identity, topic string) (*State, error) {
	st, err := s.store.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrStateNotFound
	}

	st.Topic = topic
	st.UpdatedAt = time.Now()
	if err := s.store.Put(ctx, identity, st); err != nil {
		return nil, err
	}
	return st, nil
}

// GetTopic returns the last requested subject, empty when none was set.
func (s *Service) GetTopic(ctx context.Context, identity string) (string, error) {
	st, err := s.store.Get(ctx, identity)
	if err != nil {
		return "", err
	}
	if st == nil {
		return "", nil
	}
	return st.Topic, nil
}

// nextLower finds the first schedule entry strictly below current.
func nextLower(schedule []int64, current int64) (int64, bool) {
	for _, p := range schedule {
		if p < current {
			return p, true
		}
	}
	return 0, false
}
