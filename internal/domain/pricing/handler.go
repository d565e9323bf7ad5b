package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/haggle/haggle-api/internal/domain/oracle"
	"github.com/haggle/haggle-api/internal/middleware"
	"github.com/haggle/haggle-api/internal/pkg/metrics"
	"github.com/haggle/haggle-api/internal/pkg/response"
	"github.com/haggle/haggle-api/internal/pkg/validator"
)

// Advisor is the advisory oracle boundary. A nil advisor (or any advisor
// error) falls back to the deterministic negotiation policy.
type Advisor interface {
	Suggest(ctx context.Context, nctx oracle.Context) (*oracle.Suggestion, error)
}

type Handler struct {
	svc     *Service
	advisor Advisor
}

func NewHandler(svc *Service, advisor Advisor) *Handler {
	return &Handler{svc: svc, advisor: advisor}
}

// Quote returns the authoritative price for the caller, creating negotiation
// state on first call. An optional topic query parameter records the subject.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	st, err := h.svc.GetOrInit(r.Context(), identity, middleware.GetDomain(r.Context()))
	if err != nil {
		response.InternalError(w)
		return
	}

	if topic := strings.TrimSpace(r.URL.Query().Get("topic")); topic != "" && topic != st.Topic {
		if st, err = h.svc.SetTopic(r.Context(), identity, topic); err != nil {
			response.InternalError(w)
			return
		}
	}

	response.OK(w, map[string]interface{}{
		"price_cents": st.PriceCents,
		"round":       st.Round,
		"attempts":    st.Attempts,
		"topic":       st.Topic,
	})
}

type negotiateRequest struct {
	Message  string `json:"message" validate:"required,max=2000"`
	NewTopic string `json:"new_topic,omitempty" validate:"max=300"`
}

// Negotiate handles one conversational turn. A request carrying a new topic
// is a fresh quote regardless of complaint language inside it; otherwise the
// advisory oracle proposes a move which backend policy clamps before the
// state machine advances.
func (h *Handler) Negotiate(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req negotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	st, err := h.svc.GetOrInit(r.Context(), identity, middleware.GetDomain(r.Context()))
	if err != nil {
		response.InternalError(w)
		return
	}

	if topic := strings.TrimSpace(req.NewTopic); topic != "" {
		if st, err = h.svc.SetTopic(r.Context(), identity, topic); err != nil {
			response.InternalError(w)
			return
		}
		if st, err = h.svc.Advance(r.Context(), identity, ActionQuote); err != nil {
			response.InternalError(w)
			return
		}
		h.respond(w, st, ActionQuote, "")
		return
	}

	action, message := h.adviseAction(r.Context(), st, req.Message)
	st, err = h.svc.Advance(r.Context(), identity, action)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			response.NotFound(w, "no negotiation in progress")
			return
		}
		response.InternalError(w)
		return
	}

	metrics.OracleSuggestions.WithLabelValues(string(action)).Inc()
	h.respond(w, st, action, message)
}

// adviseAction consults the oracle when available and clamps its suggestion;
// oracle failure is never a request failure.
func (h *Handler) adviseAction(ctx context.Context, st *State, message string) (Action, string) {
	if h.advisor == nil {
		return h.svc.NextAction(st), ""
	}

	sugg, err := h.advisor.Suggest(ctx, oracle.Context{
		Topic:      st.Topic,
		Message:    message,
		PriceCents: st.PriceCents,
		Attempts:   st.Attempts,
	})
	if err != nil {
		log.Warn().Err(err).Str("identity", st.Identity).Msg("oracle unavailable, using fallback policy")
		return h.svc.NextAction(st), ""
	}

	action := h.svc.Clamp(Suggestion{Action: Action(sugg.Action), PriceCents: sugg.PriceCents}, st)
	return action, sugg.Message
}

func (h *Handler) respond(w http.ResponseWriter, st *State, action Action, message string) {
	if message == "" {
		message = defaultMessage(action, st)
	}
	response.OK(w, map[string]interface{}{
		"action":      string(action),
		"message":     message,
		"price_cents": st.PriceCents,
		"round":       st.Round,
		"attempts":    st.Attempts,
		"topic":       st.Topic,
	})
}

func defaultMessage(action Action, st *State) string {
	switch action {
	case ActionQuote:
		return "Happy to put that together for you. The price is as quoted."
	case ActionPushback:
		return "The current price reflects the work involved, but let's talk."
	case ActionDiscount:
		return "Understood. I can come down a bit on this one."
	case ActionFloor:
		return "This is as low as the price goes."
	default:
		return "Let me know when you would like to proceed."
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/quote", h.Quote)
	r.Post("/negotiate", h.Negotiate)
	return r
}
