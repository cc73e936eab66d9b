package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// InventoryHandler handles receipts, adjustments, counts and transfers.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Receive handles POST /stock/receipts
func (h *InventoryHandler) Receive(c *gin.Context) {
	var req dto.ReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}
	receiptID, err := dto.ParseOptionalID("receiptId", req.ReceiptID)
	if err != nil {
		h.Error(c, err)
		return
	}

	mv, err := h.service.Receive(c.Request.Context(), inventory.ReceiveRequest{
		Triple:    t,
		Quantity:  types.Quantity(req.Quantity),
		UnitCost:  req.UnitCost,
		ReceiptID: receiptID,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(mv))
}

// Adjust handles POST /stock/adjustments
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}
	adjustmentID, err := dto.ParseOptionalID("adjustmentId", req.AdjustmentID)
	if err != nil {
		h.Error(c, err)
		return
	}

	mv, err := h.service.Adjust(c.Request.Context(), inventory.AdjustRequest{
		Triple:       t,
		Delta:        types.Quantity(req.Delta),
		Reason:       req.Reason,
		AdjustmentID: adjustmentID,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(mv))
}

// Count handles POST /stock/counts
func (h *InventoryHandler) Count(c *gin.Context) {
	var req dto.CountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}

	mv, err := h.service.Count(c.Request.Context(), inventory.CountRequest{
		Triple:  t,
		Counted: types.Quantity(req.Counted),
		Reason:  req.Reason,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.CountResponse{Changed: mv != nil}
	if mv != nil {
		m := dto.FromMovement(*mv)
		resp.Movement = &m
	}
	h.OK(c, resp)
}

// Transfer handles POST /stock/transfers
func (h *InventoryHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	from, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}
	toWarehouse, err := dto.ParseID("toWarehouseId", req.ToWarehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	transferID, err := dto.ParseOptionalID("transferId", req.TransferID)
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.service.Transfer(c.Request.Context(), inventory.TransferRequest{
		From:        from,
		ToWarehouse: toWarehouse,
		Quantity:    types.Quantity(req.Quantity),
		TransferID:  transferID,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.TransferResponse{
		Outbound: dto.FromMovement(res.Outbound),
		Inbound:  dto.FromMovement(res.Inbound),
	})
}

// RegisterRoutes registers inventory movement routes under the stock group.
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/receipts", h.Receive)
	rg.POST("/adjustments", h.Adjust)
	rg.POST("/counts", h.Count)
	rg.POST("/transfers", h.Transfer)
}
