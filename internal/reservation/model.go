package reservation

import "time"

// Status 预订状态枚举（持久化为字符串）。
type Status string

const (
	StatusPending   Status = "PENDING"   // 已创建，待支付
	StatusConfirmed Status = "CONFIRMED" // 支付确认，待取车
	StatusPickedUp  Status = "PICKED_UP" // 已取车，租期进行中
	StatusDelivered Status = "DELIVERED" // 已还车（终态）
	StatusCancelled Status = "CANCELLED" // 已取消（终态）
	StatusExpired   Status = "EXPIRED"   // 超时未支付，由扫描任务置位（终态）
)

// Reservation 预订 GORM 模型。
// VehicleID 仅在分配前可为空，分配后不再为空；TotalAmountCents 创建时
// 计算后不可变；评价字段在还车结算前保持为空。
type Reservation struct {
	ID         string  `gorm:"primaryKey;size:36"`
	VehicleID  *string `gorm:"index;size:36"`
	CustomerID string  `gorm:"index;size:36;not null"`
	Status     Status  `gorm:"type:varchar(16);index;not null"`

	CreationDate        time.Time  `gorm:"not null"`
	PlannedPickUpDate   time.Time  `gorm:"not null"`
	PlannedDropOffDate  time.Time  `gorm:"not null"`
	ActualPickUpDate    *time.Time // 实际取车时间
	ActualDropOffDate   *time.Time // 实际还车时间
	BufferedDropOffDate *time.Time // 实际还车 + 整备缓冲，结算时写入

	TotalAmountCents int64  `gorm:"not null;default:0"`
	PaymentToken     string `gorm:"index;size:64"` // 支付请求 token，webhook 对账用

	// 还车评价（结算前为空）
	WasDeliveryLate       *bool
	WasChargedFee         *bool
	WasInvolvedInAccident *bool
	DamageLevel           *int
	DirtinessLevel        *int

	// 操作人（员工）
	PickUpStaffID        string `gorm:"size:36"`
	DropOffStaffID       string `gorm:"size:36"`
	VehicleChangeStaffID string `gorm:"size:36"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Blocks 该预订是否仍占用车辆时间窗（终态的取消/过期不占用）。
func (r *Reservation) Blocks() bool {
	return r.Status != StatusCancelled && r.Status != StatusExpired
}

// PlannedWindow 客户申报的租期窗口（半开区间）。
func (r *Reservation) PlannedWindow() Window {
	return Window{Start: r.PlannedPickUpDate, End: r.PlannedDropOffDate}
}
