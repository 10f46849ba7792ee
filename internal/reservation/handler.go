package reservation

import (
	"errors"
	"net/http"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/common/auth"
	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/common/middleware"
	"github.com/CarRentLink/CarRentLink/internal/common/server"
	"github.com/gin-gonic/gin"
)

// Handler 预订引擎的 HTTP 表面。所有业务判断都在 Service，
// 这里只做参数解析、角色投影和错误到状态码的映射。
type Handler struct {
	svc     *Service
	authCfg config.AuthConfig
	limiter middleware.RateLimiter
	log     logger.Logger
}

func NewHandler(svc *Service, authCfg config.AuthConfig, limiter middleware.RateLimiter, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{svc: svc, authCfg: authCfg, limiter: limiter, log: log}
}

// Register 挂载路由。支付确认回调来自支付网关，需加入配置的公开路径。
func (h *Handler) Register(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	v1.Use(server.JWTAuth(h.authCfg, h.log))

	v1.GET("/models/available", h.searchModels)
	v1.POST("/payments/confirm", h.confirm)

	res := v1.Group("/reservations")
	{
		create := res.Group("")
		if h.limiter != nil {
			create.Use(middleware.RateLimit(h.limiter))
		}
		create.POST("", h.create)

		res.GET("", h.list)
		res.GET("/:id", h.get)
		res.POST("/:id/cancel", h.cancel)

		staff := res.Group("", server.RequireRole(h.authCfg, auth.RoleStaff))
		staff.POST("/:id/pickup", h.pickUp)
		staff.POST("/:id/dropoff", h.finalize)
		staff.POST("/:id/vehicle", h.reassign)
	}
}

// requester 请求者身份。鉴权关闭时按员工处理（本地/集成环境）。
type requester struct {
	id    string
	staff bool
}

func (h *Handler) requester(c *gin.Context) requester {
	claims, ok := server.AuthFromContext(c)
	if !ok {
		return requester{staff: true}
	}
	return requester{id: claims.Subject, staff: claims.HasRole(auth.RoleStaff)}
}

func (h *Handler) searchModels(c *gin.Context) {
	w, err := parseWindow(c.Query("pick_up"), c.Query("drop_off"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := h.requester(c)
	customerID := ""
	if !req.staff {
		customerID = req.id
	}

	models, err := h.svc.SearchModels(c.Request.Context(), w, customerID, 0, 100)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

type createRequest struct {
	ModelID            string    `json:"model_id" binding:"required"`
	PlannedPickUpDate  time.Time `json:"planned_pick_up_date" binding:"required"`
	PlannedDropOffDate time.Time `json:"planned_drop_off_date" binding:"required"`
	CustomerID         string    `json:"customer_id"` // 员工代客下单时必填
}

func (h *Handler) create(c *gin.Context) {
	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req := h.requester(c)
	in := CreateInput{
		ModelID:            body.ModelID,
		PlannedPickUpDate:  body.PlannedPickUpDate,
		PlannedDropOffDate: body.PlannedDropOffDate,
	}
	if req.staff {
		in.CustomerID = body.CustomerID
		in.ByStaff = true
	} else {
		in.CustomerID = req.id
	}

	out, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"reservation":  h.project(req, out.Reservation),
		"approval_url": out.ApprovalURL,
	})
}

type confirmRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) confirm(c *gin.Context) {
	var body confirmRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rsv, err := h.svc.Confirm(c.Request.Context(), body.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": ToCustomerView(rsv)})
}

func (h *Handler) get(c *gin.Context) {
	req := h.requester(c)
	rsv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !req.staff && rsv.CustomerID != req.id {
		// 不向他人暴露预订的存在
		c.JSON(http.StatusNotFound, gin.H{"error": "reservation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": h.project(req, rsv)})
}

func (h *Handler) list(c *gin.Context) {
	req := h.requester(c)
	f := ListFilter{
		CustomerID: c.Query("customer_id"),
		VehicleID:  c.Query("vehicle_id"),
		Status:     Status(c.Query("status")),
	}
	if !req.staff {
		f.CustomerID = req.id
		f.VehicleID = ""
	}

	items, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]interface{}, 0, len(items))
	for i := range items {
		out = append(out, h.project(req, &items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"reservations": out, "total": total})
}

func (h *Handler) cancel(c *gin.Context) {
	req := h.requester(c)
	id := c.Param("id")

	if !req.staff {
		rsv, err := h.svc.Get(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if rsv.CustomerID != req.id {
			c.JSON(http.StatusNotFound, gin.H{"error": "reservation not found"})
			return
		}
	}

	rsv, err := h.svc.Cancel(c.Request.Context(), CancelInput{
		ReservationID: id,
		HardDelete:    c.Query("hard_delete") == "true",
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": h.project(req, rsv)})
}

type pickUpRequest struct {
	ActualPickUpDate time.Time `json:"actual_pick_up_date" binding:"required"`
}

func (h *Handler) pickUp(c *gin.Context) {
	var body pickUpRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req := h.requester(c)
	rsv, err := h.svc.PickUp(c.Request.Context(), PickUpInput{
		ReservationID:    c.Param("id"),
		ActualPickUpDate: body.ActualPickUpDate,
		StaffID:          req.id,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": ToStaffView(rsv)})
}

type finalizeRequest struct {
	ActualDropOffDate     time.Time `json:"actual_drop_off_date" binding:"required"`
	WasDeliveryLate       bool      `json:"was_delivery_late"`
	WasChargedFee         bool      `json:"was_charged_fee"`
	WasInvolvedInAccident bool      `json:"was_involved_in_accident"`
	DamageLevel           int       `json:"damage_level"`
	DirtinessLevel        int       `json:"dirtiness_level"`
}

func (h *Handler) finalize(c *gin.Context) {
	var body finalizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if body.DamageLevel < 0 || body.DirtinessLevel < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "damage and dirtiness levels must be non-negative"})
		return
	}
	req := h.requester(c)
	rsv, err := h.svc.Finalize(c.Request.Context(), FinalizeInput{
		ReservationID:     c.Param("id"),
		ActualDropOffDate: body.ActualDropOffDate,
		Evaluation: Evaluation{
			WasDeliveryLate:       body.WasDeliveryLate,
			WasChargedFee:         body.WasChargedFee,
			WasInvolvedInAccident: body.WasInvolvedInAccident,
			DamageLevel:           body.DamageLevel,
			DirtinessLevel:        body.DirtinessLevel,
		},
		StaffID: req.id,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": ToStaffView(rsv)})
}

func (h *Handler) reassign(c *gin.Context) {
	req := h.requester(c)
	rsv, err := h.svc.Reassign(c.Request.Context(), ReassignInput{
		ReservationID: c.Param("id"),
		StaffID:       req.id,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": ToStaffView(rsv)})
}

func (h *Handler) project(req requester, rsv *Reservation) interface{} {
	if req.staff {
		return ToStaffView(rsv)
	}
	return ToCustomerView(rsv)
}

// writeError 错误分类到 HTTP 状态码的唯一映射点。
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case IsConflict(err):
		var ce *ConflictError
		errors.As(err, &ce)
		c.JSON(http.StatusConflict, gin.H{"error": ce.Detail, "code": ce.Code})
	case IsWrongState(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUpstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Errorf("unhandled error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseWindow(pickUp, dropOff string) (Window, error) {
	start, err := time.Parse(time.RFC3339, pickUp)
	if err != nil {
		return Window{}, errors.New("pick_up must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, dropOff)
	if err != nil {
		return Window{}, errors.New("drop_off must be RFC3339")
	}
	w := Window{Start: start, End: end}
	if !w.Valid() {
		return Window{}, errors.New("drop_off must be after pick_up")
	}
	return w, nil
}
