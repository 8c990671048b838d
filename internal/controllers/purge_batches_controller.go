package controllers

import (
	"net/http"
	"time"

	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

type purgeBatchesController struct{ svc services.BatchService }

func NewPurgeBatchesController(svc services.BatchService) *purgeBatchesController {
	return &purgeBatchesController{svc}
}

type purgeReq struct {
	Before string `json:"before,omitempty"` // RFC3339; defaults to now
	Limit  int    `json:"limit,omitempty"`
}

func (h *purgeBatchesController) Handle(c *gin.Context) {
	var req purgeReq
	_ = c.ShouldBindJSON(&req)

	var before time.Time
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' (use RFC3339)"})
			return
		}
		before = t
	}

	deleted, err := h.svc.Purge(c.Request.Context(), before, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
