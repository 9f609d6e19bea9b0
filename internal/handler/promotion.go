package handler

import (
	"errors"
	"net/http"
	"strconv"

	"flashdeal-api/internal/cache"
	"flashdeal-api/internal/service"
	"flashdeal-api/pkg/apierror"
	"flashdeal-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// PromotionHandler handles promotion reads and warm-up.
type PromotionHandler struct {
	promotions *service.PromotionService
	seckill    *service.SeckillService
}

// NewPromotionHandler creates a new promotion handler.
func NewPromotionHandler(promotions *service.PromotionService, seckill *service.SeckillService) *PromotionHandler {
	return &PromotionHandler{
		promotions: promotions,
		seckill:    seckill,
	}
}

// Get handles GET /api/v1/promotions/{id}
func (h *PromotionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, apierror.BadRequest("id must be an integer"))
		return
	}

	p, err := h.promotions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			response.Error(w, apierror.NotFound("promotion not found"))
			return
		}
		response.Error(w, err)
		return
	}

	response.OK(w, p)
}

// Warmup handles POST /api/v1/admin/promotions/{id}/warmup
func (h *PromotionHandler) Warmup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, apierror.BadRequest("id must be an integer"))
		return
	}

	p, err := h.seckill.Warmup(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPromotionNotFound) {
			response.Error(w, apierror.NotFound("promotion not found"))
			return
		}
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"promotion_id": p.ID,
		"stock":        p.Stock,
		"status":       "warmed",
	})
}
