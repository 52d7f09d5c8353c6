// Package api is the admin HTTP surface: manual job triggers, deal updates
// and device registration.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dealscout/metrics"
	"dealscout/models"
	"dealscout/services"
	"dealscout/storage"
	"dealscout/utils"
)

// JobRunner triggers a named scheduler job synchronously.
type JobRunner interface {
	Trigger(ctx context.Context, name string) error
	Jobs() []string
}

// DealService applies user updates to persisted deals.
type DealService interface {
	UpdateCondition(ctx context.Context, id int64, condition string) (*models.EnrichedDeal, error)
	SetMarketValue(ctx context.Context, id int64, value float64) (*models.EnrichedDeal, error)
	Dismiss(ctx context.Context, id int64) (*models.EnrichedDeal, error)
	MarkPurchased(ctx context.Context, id int64) (*models.EnrichedDeal, error)
}

// Handler serves the admin API.
type Handler struct {
	Jobs   JobRunner
	Deals  DealService
	Store  storage.DealStore
	Logger *utils.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	h.RegisterRoutes(r.Group("/"))
	return r
}

// RegisterRoutes registers job, deal and device routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs/enrich", h.runJob(services.JobEnrich))
	rg.POST("/jobs/needs-review", h.runJob(services.JobNeedsReview))

	rg.GET("/deals/:id", h.GetDeal)
	rg.POST("/deals/:id/condition", h.UpdateCondition)
	rg.POST("/deals/:id/market-value", h.SetMarketValue)
	rg.POST("/deals/:id/dismiss", h.Dismiss)
	rg.POST("/deals/:id/purchase", h.Purchase)

	rg.POST("/devices", h.RegisterDevice)
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "jobs": h.Jobs.Jobs()})
}

// POST /jobs/enrich, POST /jobs/needs-review
func (h *Handler) runJob(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		err := h.Jobs.Trigger(c.Request.Context(), name)
		switch {
		case errors.Is(err, services.ErrJobRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"job": name, "status": "completed", "took": time.Since(start).String()})
		}
	}
}

// GET /deals/:id
func (h *Handler) GetDeal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deal, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type conditionRequest struct {
	Condition string `json:"condition" binding:"required"`
}

// POST /deals/:id/condition
func (h *Handler) UpdateCondition(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req conditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deal, err := h.Deals.UpdateCondition(c.Request.Context(), id, req.Condition)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type marketValueRequest struct {
	MarketValue float64 `json:"market_value" binding:"required"`
}

// POST /deals/:id/market-value
func (h *Handler) SetMarketValue(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req marketValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deal, err := h.Deals.SetMarketValue(c.Request.Context(), id, req.MarketValue)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// POST /deals/:id/dismiss
func (h *Handler) Dismiss(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deal, err := h.Deals.Dismiss(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// POST /deals/:id/purchase
func (h *Handler) Purchase(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deal, err := h.Deals.MarkPurchased(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type deviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

// POST /devices
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if platform == "" {
		platform = "android"
	}
	if err := h.Store.RegisterDeviceToken(c.Request.Context(), strings.TrimSpace(req.Token), platform); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCondition), errors.Is(err, services.ErrInvalidMarketValue),
		errors.Is(err, services.ErrAlreadyPurchased):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.Logger.WithError(err).Error("[api] %s %s", c.Request.Method, c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Logger.WithFields(utils.Fields{
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("[api] %s %s", c.Request.Method, c.Request.URL.Path)
	}
}
