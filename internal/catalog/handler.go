package catalog

import (
	"net/http"
	"strconv"

	"github.com/CarRentLink/CarRentLink/internal/common/auth"
	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/common/server"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var validCategories = map[Category]bool{
	CategoryEconomy:  true,
	CategoryStandard: true,
	CategoryPremium:  true,
	CategoryLuxury:   true,
}

// Handler 车型目录的 HTTP 表面：浏览对所有登录用户开放，维护仅员工。
type Handler struct {
	repo    *Repo
	authCfg config.AuthConfig
	log     logger.Logger
}

func NewHandler(repo *Repo, authCfg config.AuthConfig, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{repo: repo, authCfg: authCfg, log: log}
}

func (h *Handler) Register(r *gin.Engine) {
	g := r.Group("/api/v1", server.JWTAuth(h.authCfg, h.log))
	g.GET("/models", h.list)
	g.POST("/models", server.RequireRole(h.authCfg, auth.RoleStaff), h.create)
}

func (h *Handler) list(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	models, total, err := h.repo.List(c.Request.Context(), Category(c.Query("category")), offset, limit)
	if err != nil {
		h.log.Errorf("list models failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models, "total": total})
}

type createModelRequest struct {
	Name           string `json:"name" binding:"required"`
	Brand          string `json:"brand"`
	Category       string `json:"category" binding:"required"`
	DailyRateCents int64  `json:"daily_rate_cents" binding:"required"`
	Seats          int    `json:"seats"`
}

func (h *Handler) create(c *gin.Context) {
	var body createModelRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !validCategories[Category(body.Category)] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	if body.DailyRateCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "daily_rate_cents must be positive"})
		return
	}
	if body.Seats <= 0 {
		body.Seats = 5
	}

	m := &CarModel{
		ID:             uuid.NewString(),
		Name:           body.Name,
		Brand:          body.Brand,
		Category:       Category(body.Category),
		DailyRateCents: body.DailyRateCents,
		Seats:          body.Seats,
	}
	if err := h.repo.Save(c.Request.Context(), m); err != nil {
		h.log.Errorf("create model failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"model": m})
}
