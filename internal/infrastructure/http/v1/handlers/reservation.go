package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/reservation"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReservationHandler handles reservation lifecycle requests.
type ReservationHandler struct {
	*BaseHandler
	engine *reservation.Engine
	now    func() time.Time
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(base *BaseHandler, engine *reservation.Engine) *ReservationHandler {
	return &ReservationHandler{
		BaseHandler: base,
		engine:      engine,
		now:         time.Now,
	}
}

// Reserve handles POST /reservations
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := req.ToTriple()
	if err != nil {
		h.Error(c, err)
		return
	}
	ref, err := req.Reference.ToReference()
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.engine.Reserve(c.Request.Context(), reservation.ReserveRequest{
		Triple:    t,
		Quantity:  types.Quantity(req.Quantity),
		Reference: ref,
		TTL:       req.TTL(),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromReservation(res))
}

// Get handles GET /reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	reservationID, err := dto.ParseID("id", c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.engine.Get(c.Request.Context(), reservationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReservation(res))
}

// Commit handles POST /reservations/:id/commit
func (h *ReservationHandler) Commit(c *gin.Context) {
	reservationID, err := dto.ParseID("id", c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}

	mv, err := h.engine.Commit(c.Request.Context(), reservationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(mv))
}

// Release handles POST /reservations/:id/release
func (h *ReservationHandler) Release(c *gin.Context) {
	reservationID, err := dto.ParseID("id", c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.ReleaseRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := h.engine.Release(ctx, reservationID, req.Reason); err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.engine.Get(ctx, reservationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReservation(res))
}

// Expire handles POST /reservations/expire
func (h *ReservationHandler) Expire(c *gin.Context) {
	var req dto.ExpireRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	now := h.now()
	if req.Now != nil {
		now = *req.Now
	}

	n, err := h.engine.ExpireStale(c.Request.Context(), now)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ExpireResponse{Expired: n})
}

// RegisterRoutes registers reservation routes.
func (h *ReservationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Reserve)
	rg.POST("/expire", h.Expire)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/commit", h.Commit)
	rg.POST("/:id/release", h.Release)
}
