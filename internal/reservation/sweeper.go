package reservation

import (
	"context"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/common/metrics"
)

// Sweeper 过期扫描：周期性把超过宽限期仍未支付的 PENDING 预订置为 EXPIRED。
// 只向调用时刻之前回看；单条流转用条件更新，和支付确认的竞争由数据库裁决。
type Sweeper struct {
	repo   Store
	events Publisher
	log    logger.Logger
	grace  time.Duration
	every  time.Duration
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(repo Store, events Publisher, log logger.Logger, grace, every time.Duration) *Sweeper {
	if events == nil {
		events = NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		repo:   repo,
		events: events,
		log:    log,
		grace:  grace,
		every:  every,
		now:    time.Now,
	}
}

// Start 启动后台循环。启动即先扫一轮，随后按周期执行。
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.SweepOnce(ctx)
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// Stop 停止循环并等待收尾。
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// SweepOnce 执行一轮扫描，返回本轮实际过期的条数。
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	cutoff := s.now().Add(-s.grace)
	stale, err := s.repo.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		s.log.Errorf("expiry sweep query failed: %v", err)
		return 0
	}

	expired := 0
	for i := range stale {
		rsv := &stale[i]
		ok, err := s.repo.MarkExpired(ctx, rsv.ID)
		if err != nil {
			s.log.Errorf("expire reservation failed: id=%s err=%v", rsv.ID, err)
			continue
		}
		if !ok {
			// 支付确认抢先落库，这条已不是 PENDING
			continue
		}
		expired++
		metrics.ExpiredReservations.Inc()
		metrics.ReservationTransitions.WithLabelValues(string(EventExpired)).Inc()

		rsv.Status = StatusExpired
		evt := Event{Type: EventExpired, OccurredAt: s.now(), Reservation: *rsv}
		if err := s.events.Publish(ctx, evt); err != nil {
			metrics.EventPublishFailures.Inc()
			s.log.Warnf("publish expired event failed: id=%s err=%v", rsv.ID, err)
		}
	}

	if expired > 0 {
		s.log.Infof("expiry sweep: expired=%d cutoff=%s", expired, cutoff.Format(time.RFC3339))
	}
	return expired
}
