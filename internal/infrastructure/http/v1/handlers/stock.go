package handlers

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/pkg/logger"
)

// StockHandler serves stock records and movement history.
type StockHandler struct {
	*BaseHandler
	store *stock.Store
	log   *stock.Log
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, store *stock.Store, log *stock.Log) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		store:       store,
		log:         log,
	}
}

// GetRecord handles GET /stock?productId&variantId&warehouseId
func (h *StockHandler) GetRecord(c *gin.Context) {
	var req dto.TripleRequest
	if !h.BindQuery(c, &req) {
		return
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.store.Get(c.Request.Context(), t)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromStockRecord(rec))
}

// GetWarehouse handles GET /stock/warehouses/:warehouseId
func (h *StockHandler) GetWarehouse(c *gin.Context) {
	warehouseID, err := dto.ParseID("warehouseId", c.Param("warehouseId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	records, err := h.store.WarehouseStock(c.Request.Context(), warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(dto.FromStockRecords(records)))
}

// GetProductAvailability handles GET /stock/products/:productId/availability
func (h *StockHandler) GetProductAvailability(c *gin.Context) {
	productID, err := dto.ParseID("productId", c.Param("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	available, err := h.store.ProductAvailability(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ProductAvailabilityResponse{
		ProductID: productID.String(),
		Available: available.Int64(),
	})
}

// GetMovements handles GET /stock/movements?productId&variantId&warehouseId&since
func (h *StockHandler) GetMovements(c *gin.Context) {
	movements, ok := h.history(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(dto.FromMovements(movements)))
}

// ExportMovements handles GET /stock/movements/export.
// The body is NDJSON, zstd-compressed when the client accepts it.
func (h *StockHandler) ExportMovements(c *gin.Context) {
	movements, ok := h.history(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Vary", "Accept-Encoding")

	w := bufio.NewWriter(c.Writer)
	var enc *zstd.Encoder
	if acceptsZstd(c.GetHeader("Accept-Encoding")) {
		c.Header("Content-Encoding", "zstd")
		var err error
		enc, err = zstd.NewWriter(w)
		if err != nil {
			h.Error(c, apperror.NewInternal(err))
			return
		}
	}
	c.Status(http.StatusOK)

	var out interface{ Write([]byte) (int, error) } = w
	if enc != nil {
		out = enc
	}
	jsonEnc := json.NewEncoder(out)
	for _, m := range movements {
		if err := jsonEnc.Encode(dto.FromMovement(m)); err != nil {
			// Headers are already sent; the client sees a truncated stream.
			logger.Warn(c.Request.Context(), "movement export aborted", "error", err)
			return
		}
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			logger.Warn(c.Request.Context(), "movement export aborted", "error", err)
			return
		}
	}
	if err := w.Flush(); err != nil {
		logger.Warn(c.Request.Context(), "movement export aborted", "error", err)
	}
}

func (h *StockHandler) history(c *gin.Context) ([]entity.Movement, bool) {
	var req dto.TripleRequest
	if !h.BindQuery(c, &req) {
		return nil, false
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return nil, false
	}

	var since *time.Time
	if s := c.Query("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid since format, expected RFC3339"))
			return nil, false
		}
		since = &parsed
	}

	movements, err := h.log.History(c.Request.Context(), t, since)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	return movements, true
}

func acceptsZstd(header string) bool {
	for _, part := range strings.Split(header, ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(enc, "zstd") {
			return true
		}
	}
	return false
}

// RegisterRoutes registers stock routes.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.GetRecord)
	rg.GET("/warehouses/:warehouseId", h.GetWarehouse)
	rg.GET("/products/:productId/availability", h.GetProductAvailability)
	rg.GET("/movements", h.GetMovements)
	rg.GET("/movements/export", h.ExportMovements)
}
