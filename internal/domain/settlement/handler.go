package settlement

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/haggle/haggle-api/internal/domain/pricing"
	"github.com/haggle/haggle-api/internal/middleware"
	"github.com/haggle/haggle-api/internal/pkg/response"
	"github.com/haggle/haggle-api/internal/pkg/validator"
	"github.com/haggle/haggle-api/internal/pkg/x402"
)

type Handler struct {
	svc     *Service
	pricing *pricing.Service
}

func NewHandler(svc *Service, pricingSvc *pricing.Service) *Handler {
	return &Handler{svc: svc, pricing: pricingSvc}
}

type unlockRequest struct {
	Topic string `json:"topic,omitempty" validate:"max=300"`
	Rail  string `json:"rail,omitempty" validate:"rail"`
}

// Unlock settles payment for content access. The price always comes from the
// caller's negotiation state, never from the request body. Responds 200 when
// the settlement reconciles, or 402 with a payment challenge when a residual
// remains to be paid externally.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req unlockRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid JSON body")
			return
		}
		if details := validator.Validate(req); details != nil {
			response.ValidationError(w, details)
			return
		}
	}

	st, err := h.pricing.GetOrInit(r.Context(), identity, middleware.GetDomain(r.Context()))
	if err != nil {
		response.InternalError(w)
		return
	}
	if topic := strings.TrimSpace(req.Topic); topic != "" && topic != st.Topic {
		if st, err = h.pricing.SetTopic(r.Context(), identity, topic); err != nil {
			response.InternalError(w)
			return
		}
	}

	outcome, err := h.svc.Settle(r.Context(), Request{
		Identity:      identity,
		CostCents:     st.PriceCents,
		Rail:          ParseRail(req.Rail),
		Resource:      r.URL.Path,
		PaymentHeader: r.Header.Get(x402.PaymentHeader),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	if outcome.Status == StatusResidualPending {
		writeChallenge(w, outcome)
		return
	}
	response.OK(w, outcome)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCost):
		response.BadRequest(w, "nothing to settle")
	case errors.Is(err, ErrVerificationFailed):
		// Credits for this attempt were already restored; the caller may
		// retry with a corrected payment.
		response.PaymentRequired(w, "PAYMENT_VERIFICATION_FAILED",
			"payment could not be verified")
	case errors.Is(err, ErrRailUnavailable):
		response.Error(w, http.StatusBadGateway, "PAYMENT_RAIL_UNAVAILABLE",
			"payment network is temporarily unavailable")
	default:
		response.InternalError(w)
	}
}

// writeChallenge emits the 402 response: the challenge document as the body
// plus summary headers so thin clients can react without parsing it.
func writeChallenge(w http.ResponseWriter, outcome *Outcome) {
	req := outcome.Challenge.Accepts[0]
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Payment-Amount", req.MaxAmountRequired)
	w.Header().Set("X-Payment-Network", req.Network)
	w.Header().Set("X-Payment-Address", req.PayTo)
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(outcome)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/unlock", h.Unlock)
	return r
}
