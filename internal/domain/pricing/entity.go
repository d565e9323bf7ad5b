package pricing

import (
	"strings"
	"time"
)

// Action is the fixed set of negotiation moves. Free-text classification
// happens upstream; this package only ever sees one of these labels.
type Action string

const (
	ActionQuote    Action = "quote"
	ActionPushback Action = "pushback"
	ActionDiscount Action = "discount"
	ActionFloor    Action = "floor"
	ActionChat     Action = "chat"
)

// ParseAction maps a string to an Action. Unknown input reports ok=false.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionQuote:
		return ActionQuote, true
	case ActionPushback:
		return ActionPushback, true
	case ActionDiscount:
		return ActionDiscount, true
	case ActionFloor:
		return ActionFloor, true
	case ActionChat:
		return ActionChat, true
	}
	return "", false
}

// TierID classifies an identity's verified domain.
type TierID string

const (
	TierCommercial TierID = "commercial"
	TierEduOrg     TierID = "edu_org"
)

// Tier is static pricing configuration for one domain classification.
// Schedule is strictly decreasing from the starting price to the floor.
type Tier struct {
	ID                 TierID  `json:"id"`
	StartingPriceCents int64   `json:"starting_price_cents"`
	FloorPriceCents    int64   `json:"floor_price_cents"`
	Schedule           []int64 `json:"schedule"`
}

// DefaultTiers returns the built-in tier table.
func DefaultTiers() map[TierID]Tier {
	return map[TierID]Tier{
		TierCommercial: {
			ID:                 TierCommercial,
			StartingPriceCents: 500,
			FloorPriceCents:    200,
			Schedule:           []int64{500, 350, 250, 200},
		},
		TierEduOrg: {
			ID:                 TierEduOrg,
			StartingPriceCents: 300,
			FloorPriceCents:    100,
			Schedule:           []int64{300, 200, 150, 100},
		},
	}
}

// ClassifyDomain maps a verified domain string to a tier. The domain is an
// opaque value produced by the upstream membership proof; only its suffix is
// inspected here.
func ClassifyDomain(domain string) TierID {
	d := strings.ToLower(strings.TrimSpace(domain))
	if strings.HasSuffix(d, ".edu") || strings.HasSuffix(d, ".org") {
		return TierEduOrg
	}
	return TierCommercial
}

// State is the per-identity negotiation state. PriceCents is non-increasing
// over the state's lifetime and never below the tier's floor.
type State struct {
	Identity   string    `json:"identity"`
	Tier       TierID    `json:"tier"`
	PriceCents int64     `json:"price_cents"`
	Round      int       `json:"round"`
	Attempts   int       `json:"attempts"`
	Topic      string    `json:"topic"`
	AtFloor    bool      `json:"at_floor"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Quote is the pricing view returned to callers.
type Quote struct {
	PriceCents int64 `json:"price_cents"`
	Round      int   `json:"round"`
	Attempts   int   `json:"attempts"`
}

// Suggestion is the advisory oracle's parsed output. It influences but never
// authoritatively sets the price: the action is clamped by backend policy and
// the suggested price is ignored entirely.
type Suggestion struct {
	Action     Action `json:"action"`
	Message    string `json:"message"`
	PriceCents int64  `json:"price_cents"`
}
