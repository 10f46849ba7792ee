package catalog

import "time"

// Category 车型租赁类别，决定客户信誉分门槛。
type Category string

const (
	CategoryEconomy  Category = "ECONOMY"
	CategoryStandard Category = "STANDARD"
	CategoryPremium  Category = "PREMIUM"
	CategoryLuxury   Category = "LUXURY"
)

// CarModel 是 car_models 表的 GORM 模型。
// 引擎视角下只读（仅取价与类别），目录维护由 CRUD 层负责。
type CarModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Name           string    `gorm:"size:64;not null"`
	Brand          string    `gorm:"size:64"`
	Category       Category  `gorm:"type:varchar(16);index;not null"`
	DailyRateCents int64     `gorm:"not null;default:0"` // 日租金（分）
	Seats          int       `gorm:"not null;default:5"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}
