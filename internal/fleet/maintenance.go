package fleet

import "time"

// MaintenanceRecord 是 maintenance_records 表的 GORM 模型。
// 未完成且窗口重叠的维修记录会把车辆排除出可用性，无论预订状态如何。
type MaintenanceRecord struct {
	ID             string     `gorm:"primaryKey;size:36"`
	VehicleID      string     `gorm:"index;size:36;not null"`
	StartDate      time.Time  `gorm:"not null"`
	PlannedEndDate time.Time  `gorm:"not null"`
	ActualEndDate  *time.Time // 实际完工时间，完工前为空
	Completed      bool       `gorm:"not null;default:false"`
	Description    string     `gorm:"size:255"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

// EffectiveEnd 维修窗口的有效截止：实际完工时间优先，否则取计划截止。
func (m *MaintenanceRecord) EffectiveEnd() time.Time {
	if m.ActualEndDate != nil {
		return *m.ActualEndDate
	}
	return m.PlannedEndDate
}
