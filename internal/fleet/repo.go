package fleet

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Save(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(v).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByModel 列出某车型的全部车辆（可用性匹配的候选集）。
func (r *Repo) ListByModel(ctx context.Context, modelID string) ([]Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var vehicles []Vehicle
	if err := db.Where("model_id = ?", modelID).Order("odometer_km ASC, id ASC").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

// UpdateStatusIf 条件状态更新：仅当当前状态为 from 时才写入 to。
// 返回是否真的发生了更新；0 行即表示车辆已被其他操作移走，调用方按幂等 no-op 处理。
// pendingCleaning 非 nil 时一并写入。
func (r *Repo) UpdateStatusIf(ctx context.Context, id string, from, to Status, pendingCleaning *bool) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	updates := map[string]interface{}{"status": to}
	if pendingCleaning != nil {
		updates["pending_cleaning"] = *pendingCleaning
	}
	res := db.Model(&Vehicle{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListRentedPendingCleaning 进程重启后重建延迟释放定时器用：
// 找出仍处于 RENTED 且等待整备的车辆。
func (r *Repo) ListRentedPendingCleaning(ctx context.Context) ([]Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var vehicles []Vehicle
	if err := db.Where("status = ? AND pending_cleaning = ?", StatusRented, true).Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

// Delete 删除车辆并级联清理其预订与维修记录（组合关系）。
func (r *Repo) Delete(ctx context.Context, id string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM reservations WHERE vehicle_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Where("vehicle_id = ?", id).Delete(&MaintenanceRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Vehicle{}).Error
	})
}

// CreateMaintenance 登记维修记录。
func (r *Repo) CreateMaintenance(ctx context.Context, m *MaintenanceRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(m).Error
}

// FindMaintenanceByID 查询单条维修记录。
func (r *Repo) FindMaintenanceByID(ctx context.Context, id string) (*MaintenanceRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var m MaintenanceRecord
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CompleteMaintenance 维修完工：写入实际完工时间并标记完成。
func (r *Repo) CompleteMaintenance(ctx context.Context, id string, actualEnd time.Time) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Model(&MaintenanceRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"actual_end_date": actualEnd, "completed": true}).Error
}

// ListOpenMaintenance 某车辆所有未完成的维修记录（区间索引的输入）。
func (r *Repo) ListOpenMaintenance(ctx context.Context, vehicleID string) ([]MaintenanceRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var records []MaintenanceRecord
	if err := db.Where("vehicle_id = ? AND completed = ?", vehicleID, false).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
