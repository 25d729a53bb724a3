package procurement

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

// Handler wires HTTP endpoints for purchase orders and goods receipts.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchase-orders", h.createPO)
	r.Get("/purchase-orders/{id}", h.getPO)
	r.Put("/purchase-orders/{id}", h.updatePO)
	r.Post("/purchase-orders/{id}/submit", h.submitPO)
	r.Post("/purchase-orders/{id}/cancel", h.cancelPO)
	r.Post("/goods-receipts", h.postGRN)
}

type poLineRequest struct {
	ItemID     int64           `json:"item_id" validate:"required"`
	OrderedQty decimal.Decimal `json:"ordered_qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type poRequest struct {
	SupplierID int64           `json:"supplier_id" validate:"required"`
	ExpectedAt time.Time       `json:"expected_at"`
	Note       string          `json:"note"`
	Lines      []poLineRequest `json:"lines" validate:"required,dive"`
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req poRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), CreatePOInput{
		SupplierID: req.SupplierID,
		ExpectedAt: req.ExpectedAt,
		Note:       req.Note,
		ActorID:    shared.ActorFromContext(r.Context()),
		Lines:      poLines(req.Lines),
	})
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, po)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	poID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	po, items, err := h.service.GetPurchaseOrder(r.Context(), poID)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"purchase_order": po, "items": items})
}

func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	poID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	var req poRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	err = h.service.UpdatePurchaseOrder(r.Context(), UpdatePOInput{
		POID:       poID,
		SupplierID: req.SupplierID,
		ExpectedAt: req.ExpectedAt,
		Note:       req.Note,
		Lines:      poLines(req.Lines),
		ActorID:    shared.ActorFromContext(r.Context()),
		Credential: r.Header.Get(shared.StepUpHeader),
	})
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) submitPO(w http.ResponseWriter, r *http.Request) {
	poID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.service.SubmitPurchaseOrder(r.Context(), poID, shared.ActorFromContext(r.Context())); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"status": POStatusSubmitted})
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	poID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	err = h.service.CancelPurchaseOrder(r.Context(), poID, shared.ActorFromContext(r.Context()), r.Header.Get(shared.StepUpHeader))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"status": POStatusCancelled})
}

type grnLineRequest struct {
	ItemID   int64           `json:"item_id" validate:"required"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type grnRequest struct {
	POID       int64            `json:"po_id"`
	SupplierID int64            `json:"supplier_id" validate:"required"`
	Note       string           `json:"note"`
	Lines      []grnLineRequest `json:"lines" validate:"required,dive"`
}

func (h *Handler) postGRN(w http.ResponseWriter, r *http.Request) {
	var req grnRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	lines := make([]GRNLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, GRNLineInput{ItemID: line.ItemID, Qty: line.Qty, UnitCost: line.UnitCost})
	}
	result, err := h.service.PostGoodsReceipt(r.Context(), GoodsReceiptInput{
		POID:       req.POID,
		SupplierID: req.SupplierID,
		Note:       req.Note,
		ActorID:    shared.ActorFromContext(r.Context()),
		Lines:      lines,
	})
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, result)
}

func poLines(reqs []poLineRequest) []POLineInput {
	lines := make([]POLineInput, 0, len(reqs))
	for _, line := range reqs {
		lines = append(lines, POLineInput{ItemID: line.ItemID, OrderedQty: line.OrderedQty, UnitPrice: line.UnitPrice})
	}
	return lines
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}
