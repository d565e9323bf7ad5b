package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/haggle/haggle-api/internal/middleware"
	"github.com/haggle/haggle-api/internal/pkg/response"
	"github.com/haggle/haggle-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type mintRequest struct {
	AmountCents   int64  `json:"amount_cents" validate:"required,gt=0"`
	ExternalTxRef string `json:"external_tx_ref" validate:"required"`
}

// Mint funds the caller's account after an external transfer was observed.
// Retried callbacks with the same external_tx_ref are accepted and ignored.
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.svc.Mint(r.Context(), identity, req.AmountCents, req.ExternalTxRef); err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrExternalRefRequired):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w)
		}
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), identity)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"balance": balance})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), identity)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"balance": balance})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.svc.History(r.Context(), identity, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, txns)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/mint", h.Mint)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	return r
}
