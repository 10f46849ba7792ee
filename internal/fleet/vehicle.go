package fleet

import "time"

// Status 车辆运营状态。仅由引擎的条件更新流转，CRUD 层不得在
// 预订/维修活跃期间随意改写。
type Status string

const (
	StatusAvailable     Status = "AVAILABLE"
	StatusRented        Status = "RENTED"
	StatusInMaintenance Status = "IN_MAINTENANCE"
)

// Vehicle 是 vehicles 表的 GORM 模型。
// 车辆与其预订/维修记录是组合关系：删除车辆时由引擎级联清理（见 Repo.Delete）。
type Vehicle struct {
	ID              string    `gorm:"primaryKey;size:36"`
	ModelID         string    `gorm:"index;size:36;not null"` // 所属车型
	PlateNumber     string    `gorm:"uniqueIndex;size:32;not null"`
	Status          Status    `gorm:"type:varchar(16);index;not null"`
	OdometerKM      int64     `gorm:"not null;default:0"` // 累计里程，可用性匹配的决胜项
	PendingCleaning bool      `gorm:"not null;default:false"`
	PendingRepair   bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}
