package recovery

import (
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paystream-io/paystream/internal/platform/httpx"
	"github.com/paystream-io/paystream/internal/treasury"
)

// Handler exposes the escape hatch to administrators.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler returns a recovery HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		service:  service,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes registers the recovery surface on an admin-guarded router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/recover", h.Recover)
	r.Post("/discovered", h.RecordDiscovered)
}

type recoverRequest struct {
	Asset string `json:"asset" validate:"required"`
}

type discoveredRequest struct {
	Asset  string `json:"asset" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}

func (h *Handler) Recover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := h.service.Recover(r.Context(), req.Asset)
	if err != nil {
		h.logger.Error("recover", slog.String("asset", req.Asset), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"asset": req.Asset, "recovered": amount.String()})
}

func (h *Handler) RecordDiscovered(w http.ResponseWriter, r *http.Request) {
	var req discoveredRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	// The engine never voluntarily accepts native-currency deposits; only a
	// reconciliation import may book a native balance that arrived through a
	// non-rejectable channel.
	if req.Asset == treasury.NativeAsset && r.Header.Get("X-Reconciliation") == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "engine does not accept native-currency deposits")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a positive integer string")
		return
	}
	if err := h.service.RecordDiscovered(r.Context(), req.Asset, amount); err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("record discovered", slog.String("asset", req.Asset), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"asset": req.Asset, "amount": amount.String()})
}
