package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/alert"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// AlertHandler manages alert rules.
type AlertHandler struct {
	*BaseHandler
	evaluator *alert.Evaluator
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(base *BaseHandler, evaluator *alert.Evaluator) *AlertHandler {
	return &AlertHandler{
		BaseHandler: base,
		evaluator:   evaluator,
	}
}

// ListRules handles GET /alerts/rules?productId&variantId&warehouseId
func (h *AlertHandler) ListRules(c *gin.Context) {
	var req dto.TripleRequest
	if !h.BindQuery(c, &req) {
		return
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}

	rules, err := h.evaluator.Rules(c.Request.Context(), t)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromAlerts(rules)))
}

// ConfigureRule handles PUT /alerts/rules
func (h *AlertHandler) ConfigureRule(c *gin.Context) {
	var req dto.AlertRuleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}

	rule, err := h.evaluator.ConfigureRule(c.Request.Context(), t,
		entity.AlertType(req.AlertType), types.Quantity(req.Threshold))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAlert(rule))
}

// RemoveRule handles DELETE /alerts/rules/:id
func (h *AlertHandler) RemoveRule(c *gin.Context) {
	alertID, err := dto.ParseID("id", c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.evaluator.RemoveRule(c.Request.Context(), alertID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Active handles GET /alerts/active
func (h *AlertHandler) Active(c *gin.Context) {
	alerts, err := h.evaluator.ActiveAlerts(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromAlerts(alerts)))
}

// Reevaluate handles POST /alerts/reevaluate
func (h *AlertHandler) Reevaluate(c *gin.Context) {
	var req dto.TripleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}

	transitions, err := h.evaluator.Reevaluate(c.Request.Context(), t)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromTransitions(transitions)))
}

// RegisterRoutes registers alert routes.
func (h *AlertHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rules", h.ListRules)
	rg.PUT("/rules", h.ConfigureRule)
	rg.DELETE("/rules/:id", h.RemoveRule)
	rg.GET("/active", h.Active)
	rg.POST("/reevaluate", h.Reevaluate)
}
