package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/common/metrics"
	"github.com/CarRentLink/CarRentLink/internal/fleet"
)

// ReleaseScheduler 延迟释放：缓冲还车时间落在未来时，车辆先保持
// RENTED + 待整备，到点后由定时器把它翻回 AVAILABLE。
// 翻转用条件更新实现，定时器重复触发或与人工操作撞车都只生效一次。
// 定时器不落盘：重启后用 Rearm 从持久化的缓冲还车时间重建。
type ReleaseScheduler struct {
	vehicles VehicleStore
	repo     Store
	log      logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewReleaseScheduler(vehicles VehicleStore, repo Store, log logger.Logger) *ReleaseScheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ReleaseScheduler{
		vehicles: vehicles,
		repo:     repo,
		log:      log,
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
}

// Arm 为车辆挂一个到点释放的定时器。同车辆重复 Arm 以最新时间为准。
// at 已经过去时立即释放。
func (s *ReleaseScheduler) Arm(vehicleID string, at time.Time) {
	d := at.Sub(s.now())
	if d <= 0 {
		s.fire(vehicleID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[vehicleID]; ok {
		t.Stop()
	}
	s.timers[vehicleID] = time.AfterFunc(d, func() { s.fire(vehicleID) })
	s.log.Infof("deferred release armed: vehicle=%s at=%s", vehicleID, at.Format(time.RFC3339))
}

// fire 到点释放：RENTED -> AVAILABLE 并清掉待整备标记。
// 条件更新返回 0 行说明别处已处理（人工释放、进维修），跳过即可。
func (s *ReleaseScheduler) fire(vehicleID string) {
	s.mu.Lock()
	delete(s.timers, vehicleID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cleaning := false
	ok, err := s.vehicles.UpdateStatusIf(ctx, vehicleID, fleet.StatusRented, fleet.StatusAvailable, &cleaning)
	switch {
	case err != nil:
		metrics.DeferredReleases.WithLabelValues("error").Inc()
		s.log.Errorf("deferred release failed: vehicle=%s err=%v", vehicleID, err)
	case ok:
		metrics.DeferredReleases.WithLabelValues("released").Inc()
		s.log.Infof("deferred release done: vehicle=%s", vehicleID)
	default:
		metrics.DeferredReleases.WithLabelValues("noop").Inc()
	}
}

// Rearm 启动时恢复：扫描仍处于 RENTED + 待整备的车辆，
// 用其最近一次已还车预订的缓冲还车时间重新挂定时器。
// 查不到缓冲时间的直接释放，不让车辆卡死在待整备。
func (s *ReleaseScheduler) Rearm(ctx context.Context) error {
	vehicles, err := s.vehicles.ListRentedPendingCleaning(ctx)
	if err != nil {
		return err
	}
	for i := range vehicles {
		v := &vehicles[i]
		at, err := s.repo.LatestDeliveredBuffer(ctx, v.ID)
		if err != nil {
			s.log.Errorf("rearm lookup failed: vehicle=%s err=%v", v.ID, err)
			continue
		}
		if at == nil {
			s.log.Warnf("pending-cleaning vehicle has no buffered drop-off, releasing now: vehicle=%s", v.ID)
			s.fire(v.ID)
			continue
		}
		s.Arm(v.ID, *at)
	}
	return nil
}

// Stop 停掉所有未触发的定时器（进程退出用）。
func (s *ReleaseScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
