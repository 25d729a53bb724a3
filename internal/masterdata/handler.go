package masterdata

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Handler wires HTTP endpoints for items, suppliers and BOM management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers master data routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.listItems)
	r.Post("/items", h.createItem)
	r.Get("/items/{id}", h.getItem)
	r.Put("/items/{id}", h.updateItem)

	r.Get("/suppliers", h.listSuppliers)
	r.Post("/suppliers", h.createSupplier)
	r.Get("/suppliers/{id}", h.getSupplier)
	r.Put("/suppliers/{id}", h.updateSupplier)
	r.Delete("/suppliers/{id}", h.deleteSupplier)
	r.Get("/suppliers/{id}/bank", h.getSupplierBank)

	r.Get("/bom/{finishedGoodID}", h.listBOM)
	r.Put("/bom", h.upsertBOMLine)
	r.Delete("/bom/lines/{id}", h.deactivateBOMLine)
}

type itemRequest struct {
	SKU          string          `json:"sku" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Type         string          `json:"type" validate:"required,oneof=FABRIC ACCESSORY FINISHED_GOOD"`
	UOM          string          `json:"uom" validate:"required"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	item, err := h.service.CreateItem(r.Context(), inventory.Item{
		SKU:          req.SKU,
		Name:         req.Name,
		Type:         inventory.ItemType(req.Type),
		UOM:          req.UOM,
		ReorderPoint: req.ReorderPoint,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, item)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	var req itemRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	err = h.service.UpdateItem(r.Context(), inventory.Item{
		ID:           itemID,
		SKU:          req.SKU,
		Name:         req.Name,
		Type:         inventory.ItemType(req.Type),
		UOM:          req.UOM,
		ReorderPoint: req.ReorderPoint,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)
	items, total, err := h.service.ListItems(r.Context(), filters)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(filters.Page, filters.PageLimit(), total),
	})
}

type supplierRequest struct {
	Code            string `json:"code" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Address         string `json:"address"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone"`
	BankName        string `json:"bank_name"`
	BankAccountNo   string `json:"bank_account_no"`
	BankAccountName string `json:"bank_account_name"`
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), supplierFromRequest(0, req), shared.ActorFromContext(r.Context()))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, supplier)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	supplierID, err := pathID(r, "id")
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), supplierID)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, supplier)
}

func (h *Handler) getSupplierBank(w http.ResponseWriter, r *http.Request) {
	supplierID, err := pathID(r, "id")
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	supplier, err := h.service.GetSupplierBank(r.Context(), supplierID, shared.ActorFromContext(r.Context()), r.Header.Get(shared.StepUpHeader))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, supplier)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	supplierID, err := pathID(r, "id")
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	var req supplierRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	err = h.service.UpdateSupplier(r.Context(), supplierFromRequest(supplierID, req), shared.ActorFromContext(r.Context()))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)
	suppliers, total, err := h.service.ListSuppliers(r.Context(), filters)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{
		"suppliers":  suppliers,
		"pagination": shared.NewPagination(filters.Page, filters.PageLimit(), total),
	})
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	supplierID, err := pathID(r, "id")
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	err = h.service.DeleteSupplier(r.Context(), supplierID, shared.ActorFromContext(r.Context()), r.Header.Get(shared.StepUpHeader))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type bomLineRequest struct {
	FinishedGoodID int64           `json:"finished_good_id" validate:"required"`
	MaterialID     int64           `json:"material_id" validate:"required"`
	QtyPerUnit     decimal.Decimal `json:"qty_per_unit"`
	WastePct       decimal.Decimal `json:"waste_pct"`
	Active         bool            `json:"active"`
}

func (h *Handler) upsertBOMLine(w http.ResponseWriter, r *http.Request) {
	var req bomLineRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(h.logger, w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	line, err := h.service.UpsertBOMLine(r.Context(), BOMLine{
		FinishedGoodID: req.FinishedGoodID,
		MaterialID:     req.MaterialID,
		QtyPerUnit:     req.QtyPerUnit,
		WastePct:       req.WastePct,
		Active:         req.Active,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, line)
}

func (h *Handler) listBOM(w http.ResponseWriter, r *http.Request) {
	fgID, err := pathID(r, "finishedGoodID")
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	lines, err := h.service.ListBOM(r.Context(), fgID)
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (h *Handler) deactivateBOMLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := pathID(r, "id")
	if err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	if err := h.service.DeactivateBOMLine(r.Context(), lineID, shared.ActorFromContext(r.Context())); err != nil {
		shared.RespondError(h.logger, w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

func supplierFromRequest(id int64, req supplierRequest) Supplier {
	return Supplier{
		ID:              id,
		Code:            req.Code,
		Name:            req.Name,
		Address:         req.Address,
		Email:           req.Email,
		Phone:           req.Phone,
		BankName:        req.BankName,
		BankAccountNo:   req.BankAccountNo,
		BankAccountName: req.BankAccountName,
	}
}

func filtersFromQuery(r *http.Request) ListFilters {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return ListFilters{Page: page, Limit: limit, Search: r.URL.Query().Get("search")}
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, key)
	}
	return id, nil
}
