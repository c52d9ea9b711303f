package payroll

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paystream-io/paystream/internal/platform/httpx"
	"github.com/paystream-io/paystream/internal/rates"
	"github.com/paystream-io/paystream/internal/shared"
	"github.com/paystream-io/paystream/internal/treasury"
)

// Handler exposes the payroll engine over HTTP.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler returns a payroll HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		service:  service,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// AdminRoutes registers the administrator surface.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/initialize", h.Initialize)
	r.Post("/employees", h.AddEmployee)
	r.Get("/employees/{id}", h.GetEmployee)
	r.Put("/employees/{id}/salary", h.SetSalary)
	r.Delete("/employees/{id}", h.RemoveEmployee)
	r.Post("/assets", h.AddAllowedAsset)
	r.Get("/assets", h.ListAllowedAssets)
	r.Put("/rate-feed", h.SetRateFeed)
	r.Put("/staleness-bound", h.SetStalenessBound)
}

// EmployeeRoutes registers the employee self-service surface. Caller
// identity comes from the authenticated request context.
func (h *Handler) EmployeeRoutes(r chi.Router) {
	r.Post("/allocation", h.SetAllocation)
	r.Get("/allocation", h.GetAllocation)
	r.Post("/account", h.ChangeAccount)
	r.Post("/payday", h.Payday)
}

func (h *Handler) decodeValid(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validate.Struct(target)
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.Initialize(r.Context(), req.Treasury, req.DenominationAsset, req.RateFeedURL,
		time.Duration(req.StalenessBoundSeconds)*time.Second)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

func (h *Handler) AddEmployee(w http.ResponseWriter, r *http.Request) {
	var req addEmployeeRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	salary, ok := parseAmount(req.AnnualSalary)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "annual_salary must be a non-negative integer string")
		return
	}
	var start *time.Time
	if req.StartTime != nil {
		t := time.Unix(*req.StartTime, 0).UTC()
		start = &t
	}
	id, err := h.service.AddEmployee(r.Context(), req.Account, salary, req.Name, start)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return
	}
	emp, err := h.service.GetEmployee(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEmployeeResponse(emp))
}

func (h *Handler) SetSalary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return
	}
	var req setSalaryRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	salary, ok := parseAmount(req.AnnualSalary)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "annual_salary must be a non-negative integer string")
		return
	}
	if err := h.service.SetSalary(r.Context(), id, salary); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) RemoveEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return
	}
	settlement, err := h.service.RemoveEmployee(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSettlementResponse(settlement))
}

func (h *Handler) AddAllowedAsset(w http.ResponseWriter, r *http.Request) {
	var req addAssetRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddAllowedAsset(r.Context(), req.Asset); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"asset": req.Asset})
}

func (h *Handler) ListAllowedAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.service.AllowedAssets(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if assets == nil {
		assets = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"assets": assets})
}

func (h *Handler) SetRateFeed(w http.ResponseWriter, r *http.Request) {
	var req setRateFeedRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetRateFeed(r.Context(), req.URL); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) SetStalenessBound(w http.ResponseWriter, r *http.Request) {
	var req setStalenessRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetStalenessBound(r.Context(), time.Duration(req.BoundSeconds)*time.Second); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) SetAllocation(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if caller == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	var req setAllocationRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	emp, err := h.service.GetEmployeeByAccount(r.Context(), caller)
	if err != nil {
		if errors.Is(err, ErrUnknownEmployee) {
			h.respondError(w, ErrUnauthorized)
			return
		}
		h.respondError(w, err)
		return
	}
	if err := h.service.SetAllocation(r.Context(), emp.ID, caller, req.Assets, req.Percentages); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if caller == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset query parameter required")
		return
	}
	emp, err := h.service.GetEmployeeByAccount(r.Context(), caller)
	if err != nil {
		if errors.Is(err, ErrUnknownEmployee) {
			h.respondError(w, ErrUnauthorized)
			return
		}
		h.respondError(w, err)
		return
	}
	pct, err := h.service.GetAllocation(r.Context(), emp.ID, asset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"asset": asset, "percent": pct})
}

func (h *Handler) ChangeAccount(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if caller == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	var req changeAccountRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ChangeAccount(r.Context(), caller, req.NewAccount); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) Payday(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if caller == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	settlement, err := h.service.SettleByAccount(r.Context(), caller)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSettlementResponse(settlement))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrInvalidSalary),
		errors.Is(err, ErrInvalidTreasury),
		errors.Is(err, ErrInvalidRateFeed),
		errors.Is(err, ErrZeroStaleness),
		errors.Is(err, ErrLengthMismatch),
		errors.Is(err, ErrAssetNotAllowed),
		errors.Is(err, ErrInvalidTotal),
		errors.Is(err, ErrNoAllocation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateAccount),
		errors.Is(err, ErrDuplicateAsset),
		errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrAllocationCooldown),
		errors.Is(err, ErrNothingOwed),
		errors.Is(err, ErrSettlementInProgress):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnknownEmployee):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotInitialized):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, treasury.ErrInsufficientFunds):
		httpx.Problem(w, http.StatusConflict, "Insufficient Funds", err.Error())
	case errors.Is(err, rates.ErrRateUnavailable),
		errors.Is(err, ErrStaleRate),
		errors.Is(err, ErrZeroRate):
		httpx.Problem(w, http.StatusServiceUnavailable, "Rate Unavailable", err.Error())
	default:
		h.logger.Error("payroll handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
