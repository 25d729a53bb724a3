package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Handler wires HTTP endpoints for stock queries and adjustments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/{id}/value", h.getValue)
	r.Get("/items/{id}/stock-card", h.getStockCard)
	r.Post("/adjustments", h.postAdjustment)
}

func (h *Handler) getValue(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: invalid item id", shared.ErrValidation))
		return
	}
	value, err := h.service.GetValue(r.Context(), itemID)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, value)
}

func (h *Handler) getStockCard(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: invalid item id", shared.ErrValidation))
		return
	}
	filter := StockCardFilter{ItemID: itemID}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.RespondError(h.logger, w, fmt.Errorf("%w: from must be RFC3339", shared.ErrValidation))
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.RespondError(h.logger, w, fmt.Errorf("%w: to must be RFC3339", shared.ErrValidation))
			return
		}
		filter.To = to
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			shared.RespondError(h.logger, w, fmt.Errorf("%w: invalid limit", shared.ErrValidation))
			return
		}
		filter.Limit = limit
	}
	card, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, card)
}

type adjustmentRequest struct {
	ItemID int64           `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty"`
	Reason string          `json:"reason" validate:"required"`
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	result, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ItemID:     req.ItemID,
		Qty:        req.Qty,
		Reason:     req.Reason,
		ActorID:    shared.ActorFromContext(r.Context()),
		Credential: r.Header.Get(shared.StepUpHeader),
	})
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, result)
}
