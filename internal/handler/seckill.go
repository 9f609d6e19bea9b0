package handler

import (
	"errors"
	"net/http"
	"strconv"

	"flashdeal-api/internal/middleware"
	"flashdeal-api/internal/service"
	"flashdeal-api/pkg/apierror"
	"flashdeal-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// SeckillHandler handles flash-sale admission requests.
type SeckillHandler struct {
	seckill *service.SeckillService
}

// NewSeckillHandler creates a new seckill handler.
func NewSeckillHandler(seckill *service.SeckillService) *SeckillHandler {
	return &SeckillHandler{seckill: seckill}
}

// Admit handles POST /api/v1/seckill/{promotion_id}
func (h *SeckillHandler) Admit(w http.ResponseWriter, r *http.Request) {
	promotionID, err := strconv.ParseInt(chi.URLParam(r, "promotion_id"), 10, 64)
	if err != nil {
		response.Error(w, apierror.BadRequest("promotion_id must be an integer"))
		return
	}

	session := middleware.GetSession(r.Context())
	if session == nil {
		response.Error(w, apierror.Unauthorized(""))
		return
	}

	orderID, err := h.seckill.Admit(r.Context(), promotionID, session.UserID)
	if err != nil {
		response.Error(w, admissionError(err))
		return
	}

	response.Created(w, map[string]interface{}{
		"order_id":     strconv.FormatInt(orderID, 10),
		"promotion_id": promotionID,
	})
}

// admissionError maps admission outcomes onto API errors.
func admissionError(err error) error {
	switch {
	case errors.Is(err, service.ErrPromotionNotFound):
		return apierror.NotFound("promotion not found")
	case errors.Is(err, service.ErrNotStarted):
		return apierror.OutsideWindow("promotion has not started yet")
	case errors.Is(err, service.ErrEnded):
		return apierror.OutsideWindow("promotion has ended")
	case errors.Is(err, service.ErrInsufficientStock):
		return apierror.SoldOut("")
	case errors.Is(err, service.ErrDuplicateOrder):
		return apierror.Conflict("you already ordered this promotion")
	default:
		return err
	}
}
