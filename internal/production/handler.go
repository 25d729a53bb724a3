package production

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Handler wires HTTP endpoints for work orders, material issues, finished
// goods receipts and vendor returns.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers production routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/mrp/plan", h.previewPlan)
	r.Post("/work-orders", h.createWO)
	r.Get("/work-orders/{id}", h.getWO)
	r.Post("/work-orders/{id}/issue", h.issueWO)
	r.Post("/work-orders/{id}/cancel", h.cancelWO)
	r.Post("/material-issues", h.postIssue)
	r.Post("/fg-receipts", h.postFGReceipt)
	r.Post("/vendor-returns", h.createReturn)
	r.Get("/vendor-returns/{id}", h.getReturn)
	r.Post("/vendor-returns/{id}/process", h.processReturn)
	r.Post("/vendor-returns/{id}/complete", h.completeReturn)
}

func (h *Handler) previewPlan(w http.ResponseWriter, r *http.Request) {
	fgID, err := strconv.ParseInt(r.URL.Query().Get("finished_good_id"), 10, 64)
	if err != nil || fgID <= 0 {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: finished_good_id required", shared.ErrValidation))
		return
	}
	qty, err := decimal.NewFromString(r.URL.Query().Get("qty"))
	if err != nil || !qty.IsPositive() {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: qty must be a positive decimal", shared.ErrValidation))
		return
	}
	plan, err := h.service.PlanMaterials(r.Context(), fgID, qty)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, plan)
}

type woRequest struct {
	VendorID       int64           `json:"vendor_id" validate:"required"`
	FinishedGoodID int64           `json:"finished_good_id" validate:"required"`
	PlannedQty     decimal.Decimal `json:"planned_qty"`
	Note           string          `json:"note"`
}

func (h *Handler) createWO(w http.ResponseWriter, r *http.Request) {
	var req woRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	wo, err := h.service.CreateWorkOrder(r.Context(), CreateWOInput{
		VendorID:       req.VendorID,
		FinishedGoodID: req.FinishedGoodID,
		PlannedQty:     req.PlannedQty,
		Note:           req.Note,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, wo)
}

func (h *Handler) getWO(w http.ResponseWriter, r *http.Request) {
	woID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	wo, lines, err := h.service.GetWorkOrder(r.Context(), woID)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"work_order": wo, "consumption_plan": lines})
}

func (h *Handler) issueWO(w http.ResponseWriter, r *http.Request) {
	woID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.service.IssueWorkOrder(r.Context(), woID, shared.ActorFromContext(r.Context())); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"status": WOStatusIssued})
}

func (h *Handler) cancelWO(w http.ResponseWriter, r *http.Request) {
	woID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.service.CancelWorkOrder(r.Context(), woID, shared.ActorFromContext(r.Context())); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"status": WOStatusCancelled})
}

type issueLineRequest struct {
	MaterialID int64           `json:"material_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
}

type issueRequest struct {
	WorkOrderID int64              `json:"work_order_id" validate:"required"`
	Note        string             `json:"note"`
	Lines       []issueLineRequest `json:"lines" validate:"required,dive"`
}

func (h *Handler) postIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	lines := make([]IssueLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, IssueLineInput{MaterialID: line.MaterialID, Qty: line.Qty})
	}
	issue, err := h.service.PostMaterialIssue(r.Context(), MaterialIssueInput{
		WorkOrderID: req.WorkOrderID,
		Note:        req.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
		Lines:       lines,
	})
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, issue)
}

type fgReceiptRequest struct {
	WorkOrderID int64           `json:"work_order_id" validate:"required"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	RejectedQty decimal.Decimal `json:"rejected_qty"`
	Note        string          `json:"note"`
}

func (h *Handler) postFGReceipt(w http.ResponseWriter, r *http.Request) {
	var req fgReceiptRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	receipt, err := h.service.PostFGReceipt(r.Context(), FGReceiptInput{
		WorkOrderID: req.WorkOrderID,
		ReceivedQty: req.ReceivedQty,
		RejectedQty: req.RejectedQty,
		Note:        req.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, receipt)
}

type returnLineRequest struct {
	MaterialID int64           `json:"material_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
}

type returnRequest struct {
	WorkOrderID int64               `json:"work_order_id"`
	VendorID    int64               `json:"vendor_id" validate:"required"`
	Note        string              `json:"note"`
	Lines       []returnLineRequest `json:"lines" validate:"required,dive"`
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	lines := make([]ReturnLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, ReturnLineInput{MaterialID: line.MaterialID, Qty: line.Qty})
	}
	ret, err := h.service.CreateVendorReturn(r.Context(), VendorReturnInput{
		WorkOrderID: req.WorkOrderID,
		VendorID:    req.VendorID,
		Note:        req.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
		Lines:       lines,
	})
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, ret)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	returnID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	ret, lines, err := h.service.GetVendorReturn(r.Context(), returnID)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"vendor_return": ret, "lines": lines})
}

func (h *Handler) processReturn(w http.ResponseWriter, r *http.Request) {
	returnID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.service.ProcessVendorReturn(r.Context(), returnID, shared.ActorFromContext(r.Context())); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"status": ReturnStatusProcessed})
}

type completeReturnRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required"`
	ReceiptProof   string `json:"receipt_proof"`
}

func (h *Handler) completeReturn(w http.ResponseWriter, r *http.Request) {
	returnID, err := pathID(r)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	var req completeReturnRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	err = h.service.CompleteVendorReturn(r.Context(), returnID, req.TrackingNumber, req.ReceiptProof, shared.ActorFromContext(r.Context()))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"status": ReturnStatusCompleted})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}
