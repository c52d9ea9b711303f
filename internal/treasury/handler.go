package treasury

import (
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paystream-io/paystream/internal/platform/httpx"
)

// Handler exposes treasury funding and reporting to administrators.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler returns a treasury HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		service:  service,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes registers the treasury surface on an admin-guarded router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/deposits", h.Deposit)
	r.Get("/balances/{asset}", h.Balance)
	r.Get("/movements/{asset}", h.Movements)
}

type depositRequest struct {
	Asset        string `json:"asset" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	Counterparty string `json:"counterparty" validate:"required"`
	Memo         string `json:"memo"`
}

type movementResponse struct {
	ID           int64  `json:"id"`
	Ref          string `json:"ref"`
	Asset        string `json:"asset"`
	Direction    string `json:"direction"`
	Amount       string `json:"amount"`
	Counterparty string `json:"counterparty"`
	Memo         string `json:"memo"`
	OccurredAt   string `json:"occurred_at"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.Asset == NativeAsset {
		// Native currency reaches the treasury through reconciliation and
		// recovery, never through the deposit API.
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "native-currency deposits are not accepted here")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be an integer string")
		return
	}
	m, err := h.service.Deposit(r.Context(), req.Asset, amount, req.Counterparty, req.Memo)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("treasury deposit", slog.String("asset", req.Asset), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(m))
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	balance, err := h.service.Balance(r.Context(), asset)
	if err != nil {
		h.logger.Error("treasury balance", slog.String("asset", asset), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"asset": asset, "balance": balance.String()})
}

func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), asset, limit)
	if err != nil {
		h.logger.Error("treasury movements", slog.String("asset", asset), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"asset": asset, "movements": out})
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:           m.ID,
		Ref:          m.Ref.String(),
		Asset:        m.Asset,
		Direction:    string(m.Direction),
		Amount:       m.Amount.String(),
		Counterparty: m.Counterparty,
		Memo:         m.Memo,
		OccurredAt:   m.OccurredAt.UTC().Format(time.RFC3339),
	}
}
