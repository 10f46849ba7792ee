package reservation

import (
	"context"
	"errors"
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

func (r *Repo) Create(ctx context.Context, rsv *Reservation) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(rsv).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rsv Reservation
	if err := db.Where("id = ?", id).First(&rsv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &rsv, nil
}

func (r *Repo) FindByPaymentToken(ctx context.Context, token string) (*Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rsv Reservation
	if err := db.Where("payment_token = ?", token).First(&rsv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reservation for payment token", ErrNotFound)
		}
		return nil, err
	}
	return &rsv, nil
}

// UpdateWhereStatus 条件全量更新：仅当数据库中的状态仍为 from 时写入。
// 返回 false 表示状态已被并发操作改走（例如扫描任务抢先置为 EXPIRED）。
func (r *Repo) UpdateWhereStatus(ctx context.Context, rsv *Reservation, from Status) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	res := db.Model(&Reservation{}).
		Where("id = ? AND status = ?", rsv.ID, from).
		Select("*").
		Omit("created_at").
		Updates(rsv)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkExpired 过期扫描专用的条件流转：PENDING -> EXPIRED。
// 0 行即确认流转赢了竞争，跳过。
func (r *Repo) MarkExpired(ctx context.Context, id string) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	res := db.Model(&Reservation{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusExpired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListBlocking 某车辆所有仍占用时间窗的预订（排除终态的取消/过期）。
func (r *Repo) ListBlocking(ctx context.Context, vehicleID string) ([]Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []Reservation
	err := db.Where("vehicle_id = ? AND status NOT IN ?", vehicleID,
		[]Status{StatusCancelled, StatusExpired}).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasPending 客户是否已有未支付预订（每客户最多一个）。
func (r *Repo) HasPending(ctx context.Context, customerID string) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	var count int64
	err := db.Model(&Reservation{}).
		Where("customer_id = ? AND status = ?", customerID, StatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPendingCreatedBefore 过期扫描的选取谓词：只向调用时刻之前回看。
func (r *Repo) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []Reservation
	err := db.Where("status = ? AND creation_date < ?", StatusPending, cutoff).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LatestDeliveredBuffer 某车辆最近一次已还车预订的缓冲还车时间，
// 重启后重建延迟释放定时器用；没有则返回 nil。
func (r *Repo) LatestDeliveredBuffer(ctx context.Context, vehicleID string) (*time.Time, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rsv Reservation
	err := db.Where("vehicle_id = ? AND status = ? AND buffered_drop_off_date IS NOT NULL",
		vehicleID, StatusDelivered).
		Order("buffered_drop_off_date DESC").
		First(&rsv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rsv.BufferedDropOffDate, nil
}

// Delete 硬删除。仅允许删除尚未取车的预订，前置校验在 Service。
func (r *Repo) Delete(ctx context.Context, id string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("id = ?", id).Delete(&Reservation{}).Error
}

// ListFilter 查询条件。
type ListFilter struct {
	CustomerID string
	VehicleID  string
	Status     Status
	Offset     int
	Limit      int
}

// List 支持按客户/车辆/状态过滤 + 分页。
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Reservation, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := db.Model(&Reservation{})
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []Reservation
	if err := q.Order("creation_date DESC").Offset(f.Offset).Limit(f.Limit).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
