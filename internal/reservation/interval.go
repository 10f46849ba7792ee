package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/fleet"
)

// Window 半开时间区间 [Start, End)。
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps 半开区间重叠判定：a.start < b.end && b.start < a.end。
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Valid 窗口合法性：结束必须晚于开始。
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

type reservationIntervals interface {
	ListBlocking(ctx context.Context, vehicleID string) ([]Reservation, error)
}

type maintenanceIntervals interface {
	ListOpenMaintenance(ctx context.Context, vehicleID string) ([]fleet.MaintenanceRecord, error)
}

// Checker 区间索引：回答“车辆 V 在 [start, end) 内是否空闲”。
// 冲突来源有两类：
//   - 预订：计划窗口的结束侧加整备缓冲（不对称，只加在既有预订一侧）
//   - 维修：未完成记录的有效窗口，不加缓冲
func NewChecker(reservations reservationIntervals, maintenance maintenanceIntervals, bufferDays int) *Checker {
	if bufferDays < 0 {
		bufferDays = 0
	}
	return &Checker{
		reservations: reservations,
		maintenance:  maintenance,
		bufferDays:   bufferDays,
	}
}

type Checker struct {
	reservations reservationIntervals
	maintenance  maintenanceIntervals
	bufferDays   int
}

func (c *Checker) BufferDays() int {
	return c.bufferDays
}

// Buffered 在时间点上叠加整备缓冲。
func (c *Checker) Buffered(t time.Time) time.Time {
	return t.AddDate(0, 0, c.bufferDays)
}

// IsVehicleFree 车辆在查询窗口内是否空闲。
// excludeID 用于换车/结算复核时排除预订自身。
// 两个计划窗口恰好首尾相接、但缓冲把前一个推过后一个起点时同样算冲突，
// 这是有意为之的整备安全边际。
func (c *Checker) IsVehicleFree(ctx context.Context, vehicleID string, w Window, excludeID string) (bool, error) {
	return c.isFree(ctx, vehicleID, w, excludeID, true)
}

// IsVehicleFreeActual 结算/晚还复核用的更紧变体：
// 查询窗口由实际取车时间与候选缓冲还车时间构成，既有预订仍按计划窗口
// 参与比较，但不再叠加缓冲（缓冲已包含在调用方的候选还车时间里，避免双重缓冲）。
func (c *Checker) IsVehicleFreeActual(ctx context.Context, vehicleID string, w Window, excludeID string) (bool, error) {
	return c.isFree(ctx, vehicleID, w, excludeID, false)
}

func (c *Checker) isFree(ctx context.Context, vehicleID string, w Window, excludeID string, buffered bool) (bool, error) {
	if vehicleID == "" {
		return false, fmt.Errorf("vehicle id is empty")
	}
	if !w.Valid() {
		return false, invalidf("window end must be after start")
	}

	others, err := c.reservations.ListBlocking(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	for i := range others {
		r := &others[i]
		if r.ID == excludeID || !r.Blocks() {
			continue
		}
		rw := r.PlannedWindow()
		if buffered {
			rw.End = c.Buffered(rw.End)
		}
		if rw.Overlaps(w) {
			return false, nil
		}
	}

	records, err := c.maintenance.ListOpenMaintenance(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	for i := range records {
		m := &records[i]
		mw := Window{Start: m.StartDate, End: m.EffectiveEnd()}
		if mw.Overlaps(w) {
			return false, nil
		}
	}

	return true, nil
}
