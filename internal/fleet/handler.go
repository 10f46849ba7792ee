package fleet

import (
	"errors"
	"net/http"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/common/auth"
	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/common/server"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handler 车队管理的 HTTP 表面，全部员工操作：
// 登记/下线车辆、登记与完成维修。车辆状态本身只由引擎的条件更新驱动。
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
	g := r.Group("/api/v1",
		server.JWTAuth(h.authCfg, h.log),
		server.RequireRole(h.authCfg, auth.RoleStaff))

	g.POST("/vehicles", h.createVehicle)
	g.GET("/vehicles", h.listVehicles)
	g.DELETE("/vehicles/:id", h.deleteVehicle)
	g.POST("/vehicles/:id/maintenance", h.createMaintenance)
	g.POST("/maintenance/:id/complete", h.completeMaintenance)
}

type createVehicleRequest struct {
	ModelID     string `json:"model_id" binding:"required"`
	PlateNumber string `json:"plate_number" binding:"required"`
	OdometerKM  int64  `json:"odometer_km"`
}

func (h *Handler) createVehicle(c *gin.Context) {
	var body createVehicleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if body.OdometerKM < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "odometer_km must be non-negative"})
		return
	}

	v := &Vehicle{
		ID:          uuid.NewString(),
		ModelID:     body.ModelID,
		PlateNumber: body.PlateNumber,
		Status:      StatusAvailable,
		OdometerKM:  body.OdometerKM,
	}
	if err := h.repo.Save(c.Request.Context(), v); err != nil {
		h.log.Errorf("create vehicle failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"vehicle": v})
}

func (h *Handler) listVehicles(c *gin.Context) {
	modelID := c.Query("model_id")
	if modelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model_id required"})
		return
	}
	vehicles, err := h.repo.ListByModel(c.Request.Context(), modelID)
	if err != nil {
		h.log.Errorf("list vehicles failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": vehicles})
}

// deleteVehicle 下线车辆：车辆与其预订/维修记录是组合关系，一并删除。
func (h *Handler) deleteVehicle(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.repo.FindByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return
		}
		h.log.Errorf("find vehicle failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.log.Errorf("delete vehicle failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}

type createMaintenanceRequest struct {
	StartDate      time.Time `json:"start_date" binding:"required"`
	PlannedEndDate time.Time `json:"planned_end_date" binding:"required"`
	Description    string    `json:"description"`
}

func (h *Handler) createMaintenance(c *gin.Context) {
	var body createMaintenanceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !body.PlannedEndDate.After(body.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "planned_end_date must be after start_date"})
		return
	}

	vehicleID := c.Param("id")
	if _, err := h.repo.FindByID(c.Request.Context(), vehicleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return
		}
		h.log.Errorf("find vehicle failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	m := &MaintenanceRecord{
		ID:             uuid.NewString(),
		VehicleID:      vehicleID,
		StartDate:      body.StartDate,
		PlannedEndDate: body.PlannedEndDate,
		Description:    body.Description,
	}
	if err := h.repo.CreateMaintenance(c.Request.Context(), m); err != nil {
		h.log.Errorf("create maintenance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// 维修窗口已开始则立刻把空闲车辆移入维修态；被租出的车等归还后再处理
	now := time.Now()
	if !body.StartDate.After(now) && body.PlannedEndDate.After(now) {
		if _, err := h.repo.UpdateStatusIf(c.Request.Context(), vehicleID, StatusAvailable, StatusInMaintenance, nil); err != nil {
			h.log.Warnf("move vehicle to maintenance failed: vehicle=%s err=%v", vehicleID, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"maintenance": m})
}

type completeMaintenanceRequest struct {
	ActualEndDate time.Time `json:"actual_end_date" binding:"required"`
}

func (h *Handler) completeMaintenance(c *gin.Context) {
	var body completeMaintenanceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id := c.Param("id")
	m, err := h.repo.FindMaintenanceByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "maintenance record not found"})
			return
		}
		h.log.Errorf("find maintenance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := h.repo.CompleteMaintenance(c.Request.Context(), id, body.ActualEndDate); err != nil {
		h.log.Errorf("complete maintenance failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// 之前被移入维修态的车辆放回可用池
	if _, err := h.repo.UpdateStatusIf(c.Request.Context(), m.VehicleID, StatusInMaintenance, StatusAvailable, nil); err != nil {
		h.log.Warnf("release vehicle from maintenance failed: vehicle=%s err=%v", m.VehicleID, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
