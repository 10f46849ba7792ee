package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/catalog"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/common/metrics"
	"github.com/CarRentLink/CarRentLink/internal/fleet"
	"github.com/google/uuid"
)

// Store 预订持久化契约（由 Repo 实现，测试用内存假实现）。
type Store interface {
	Create(ctx context.Context, rsv *Reservation) error
	FindByID(ctx context.Context, id string) (*Reservation, error)
	FindByPaymentToken(ctx context.Context, token string) (*Reservation, error)
	UpdateWhereStatus(ctx context.Context, rsv *Reservation, from Status) (bool, error)
	MarkExpired(ctx context.Context, id string) (bool, error)
	ListBlocking(ctx context.Context, vehicleID string) ([]Reservation, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error)
	HasPending(ctx context.Context, customerID string) (bool, error)
	LatestDeliveredBuffer(ctx context.Context, vehicleID string) (*time.Time, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]Reservation, int64, error)
}

// VehicleStore 车辆持久化契约。
type VehicleStore interface {
	FindByID(ctx context.Context, id string) (*fleet.Vehicle, error)
	ListByModel(ctx context.Context, modelID string) ([]fleet.Vehicle, error)
	UpdateStatusIf(ctx context.Context, id string, from, to fleet.Status, pendingCleaning *bool) (bool, error)
	ListRentedPendingCleaning(ctx context.Context) ([]fleet.Vehicle, error)
}

// ReleaseArmer 延迟释放定时器入口（见 release.go）。
type ReleaseArmer interface {
	Arm(vehicleID string, at time.Time)
}

// Deps Service 的依赖集合。
type Deps struct {
	Repo     Store
	Vehicles VehicleStore
	Models   modelSource
	Matcher  *Matcher
	Checker  *Checker
	Locks    *KeyedLocks
	Score    ScoreRule
	Payment  PaymentClient
	Tracking TrackingClient
	Identity IdentityClient
	Events   Publisher
	Releases ReleaseArmer
	Log      logger.Logger
	Now      func() time.Time
}

// Service 封装预订生命周期的核心用例（不依赖 HTTP），便于复用和测试。
// 所有“检查-后-写入”的组合都在对应车辆的互斥锁内完成。
type Service struct {
	repo      Store
	vehicles  VehicleStore
	models    modelSource
	matcher   *Matcher
	checker   *Checker
	locks     *KeyedLocks
	customers *KeyedLocks
	scoreRule ScoreRule
	payment   PaymentClient
	tracking  TrackingClient
	identity  IdentityClient
	events    Publisher
	releases  ReleaseArmer
	log       logger.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = NopPublisher{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	return &Service{
		repo:      d.Repo,
		vehicles:  d.Vehicles,
		models:    d.Models,
		matcher:   d.Matcher,
		checker:   d.Checker,
		locks:     d.Locks,
		customers: NewKeyedLocks(),
		scoreRule: d.Score,
		payment:   d.Payment,
		tracking:  d.Tracking,
		identity:  d.Identity,
		events:    d.Events,
		releases:  d.Releases,
		log:       d.Log,
		now:       d.Now,
	}
}

// CreateInput 创建预订的入参。
type CreateInput struct {
	CustomerID         string
	ModelID            string
	PlannedPickUpDate  time.Time
	PlannedDropOffDate time.Time
	ByStaff            bool // 员工代客下单，跳过资格门
}

// CreateResult 创建结果：预订快照 + 支付跳转地址。
type CreateResult struct {
	Reservation *Reservation
	ApprovalURL string
}

// Create 预订创建：匹配车辆 -> 计算金额 -> 创建支付请求 -> 落库 PENDING。
// 匹配发生在锁外，因此拿到候选车后要在锁内复核一次空闲，
// 复核失败则换一辆重试（有限次）。
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.ModelID = strings.TrimSpace(in.ModelID)
	if in.CustomerID == "" {
		return nil, invalidf("customer_id required")
	}
	if in.ModelID == "" {
		return nil, invalidf("model_id required")
	}
	w := Window{Start: in.PlannedPickUpDate, End: in.PlannedDropOffDate}
	if !w.Valid() {
		return nil, invalidf("planned drop-off must be after planned pick-up")
	}

	// 每客户最多一个未支付预订：检查与落库之间按客户串行化，
	// 否则两个并发下单会双双通过检查。锁序固定为 客户 -> 车辆。
	s.customers.Lock(in.CustomerID)
	defer s.customers.Unlock(in.CustomerID)

	pending, err := s.repo.HasPending(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, NewConflict(ConflictPendingExists, "customer already has a pending reservation")
	}

	var score *int
	if !in.ByStaff {
		got, err := s.identity.GetScore(ctx, in.CustomerID)
		if err != nil {
			return nil, upstreamf("get score: %v", err)
		}
		score = &got
	}

	model, err := s.models.FindByID(ctx, in.ModelID)
	if err != nil {
		return nil, notFound(err, "model", in.ModelID)
	}

	now := s.now()
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		v, err := s.matcher.FindVehicle(ctx, in.ModelID, w, score, "")
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, NewConflict(ConflictVehicleUnavailable, "no vehicle of this model is free for the requested window")
		}

		s.locks.Lock(v.ID)
		query := Window{Start: w.Start, End: s.checker.Buffered(w.End)}
		free, err := s.checker.IsVehicleFree(ctx, v.ID, query, "")
		if err != nil {
			s.locks.Unlock(v.ID)
			return nil, err
		}
		if !free {
			// 锁外匹配到的车被并发预订抢走，换一辆
			s.locks.Unlock(v.ID)
			continue
		}

		rsv := &Reservation{
			ID:                 uuid.NewString(),
			VehicleID:          &v.ID,
			CustomerID:         in.CustomerID,
			Status:             StatusPending,
			CreationDate:       now,
			PlannedPickUpDate:  in.PlannedPickUpDate,
			PlannedDropOffDate: in.PlannedDropOffDate,
			TotalAmountCents:   model.DailyRateCents * rentalDays(in.PlannedPickUpDate, in.PlannedDropOffDate),
		}

		pay, err := s.payment.CreatePaymentRequest(ctx, rsv.ID, rsv.TotalAmountCents,
			fmt.Sprintf("rental %s %s", model.Brand, model.Name))
		if err != nil {
			s.locks.Unlock(v.ID)
			return nil, upstreamf("create payment request: %v", err)
		}
		rsv.PaymentToken = pay.Token

		if err := s.repo.Create(ctx, rsv); err != nil {
			s.locks.Unlock(v.ID)
			return nil, err
		}
		s.locks.Unlock(v.ID)

		s.publish(ctx, EventCreated, rsv)
		return &CreateResult{Reservation: rsv, ApprovalURL: pay.ApprovalURL}, nil
	}

	return nil, NewConflict(ConflictVehicleUnavailable, "vehicle allocation kept losing races, try again")
}

// Confirm 支付确认：PENDING -> CONFIRMED。
// 与过期扫描的竞争由条件更新裁决：谁先写库谁赢；
// 这里发现已 EXPIRED 时直接报错，绝不把预订从过期态捞回来。
func (s *Service) Confirm(ctx context.Context, paymentToken string) (*Reservation, error) {
	paymentToken = strings.TrimSpace(paymentToken)
	if paymentToken == "" {
		return nil, invalidf("payment token required")
	}

	rsv, err := s.repo.FindByPaymentToken(ctx, paymentToken)
	if err != nil {
		return nil, err
	}
	if rsv.Status != StatusPending {
		return nil, &WrongStateError{ID: rsv.ID, From: rsv.Status, To: StatusConfirmed}
	}

	record, err := s.payment.GetRecordByToken(ctx, paymentToken)
	if err != nil {
		return nil, upstreamf("get payment record: %v", err)
	}
	if record.Status != PaymentStatusApproved {
		return nil, invalidf("payment not approved: %s", record.Status)
	}
	if record.AmountCents != rsv.TotalAmountCents {
		return nil, invalidf("payment amount mismatch")
	}

	if err := ApplyTransition(rsv, StatusConfirmed, s.now()); err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateWhereStatus(ctx, rsv, StatusPending)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 被扫描任务抢先置为 EXPIRED（或被取消）
		latest, ferr := s.repo.FindByID(ctx, rsv.ID)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &WrongStateError{ID: rsv.ID, From: latest.Status, To: StatusConfirmed}
	}

	s.publish(ctx, EventConfirmed, rsv)
	return rsv, nil
}

// PickUpInput 取车入参。
type PickUpInput struct {
	ReservationID    string
	ActualPickUpDate time.Time
	StaffID          string
}

// PickUp 取车：CONFIRMED -> PICKED_UP。
// 遥测会话是必需副作用：开不起来，流转就失败。
func (s *Service) PickUp(ctx context.Context, in PickUpInput) (*Reservation, error) {
	rsv, err := s.repo.FindByID(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if rsv.Status != StatusConfirmed {
		return nil, &WrongStateError{ID: rsv.ID, From: rsv.Status, To: StatusPickedUp}
	}
	if rsv.VehicleID == nil {
		return nil, invalidf("reservation has no vehicle")
	}
	if in.ActualPickUpDate.Before(rsv.PlannedPickUpDate) || in.ActualPickUpDate.After(rsv.PlannedDropOffDate) {
		return nil, invalidf("actual pick-up must fall within the planned window")
	}

	vehicleID := *rsv.VehicleID
	s.locks.Lock(vehicleID)
	defer s.locks.Unlock(vehicleID)

	if err := s.tracking.StartSession(ctx, vehicleID, rsv.ID, rsv.CustomerID); err != nil {
		return nil, upstreamf("start tracking session: %v", err)
	}

	t := in.ActualPickUpDate
	rsv.ActualPickUpDate = &t
	rsv.PickUpStaffID = strings.TrimSpace(in.StaffID)
	if err := ApplyTransition(rsv, StatusPickedUp, s.now()); err != nil {
		s.endSessionQuietly(ctx, vehicleID, rsv.ID, rsv.CustomerID)
		return nil, err
	}
	ok, err := s.repo.UpdateWhereStatus(ctx, rsv, StatusConfirmed)
	if err != nil || !ok {
		s.endSessionQuietly(ctx, vehicleID, rsv.ID, rsv.CustomerID)
		if err != nil {
			return nil, err
		}
		return nil, &WrongStateError{ID: rsv.ID, From: StatusConfirmed, To: StatusPickedUp}
	}

	if _, err := s.vehicles.UpdateStatusIf(ctx, vehicleID, fleet.StatusAvailable, fleet.StatusRented, nil); err != nil {
		s.log.Warnf("mark vehicle rented failed: vehicle=%s err=%v", vehicleID, err)
	}

	s.publish(ctx, EventPickedUp, rsv)
	return rsv, nil
}

// FinalizeInput 还车结算入参。
type FinalizeInput struct {
	ReservationID     string
	ActualDropOffDate time.Time
	Evaluation        Evaluation
	StaffID           string
}

// Finalize 还车结算：PICKED_UP -> DELIVERED。
// 晚还可能与后续预订新产生冲突，所以结算时要用实际窗口复核一次重叠；
// 缓冲还车时间落在未来时，车辆保持 RENTED 并挂待整备标记，由延迟释放定时器收尾。
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (*Reservation, error) {
	rsv, err := s.repo.FindByID(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if rsv.Status != StatusPickedUp {
		return nil, &WrongStateError{ID: rsv.ID, From: rsv.Status, To: StatusDelivered}
	}
	if rsv.ActualPickUpDate == nil || rsv.VehicleID == nil {
		return nil, invalidf("reservation was never picked up properly")
	}
	if in.ActualDropOffDate.Before(*rsv.ActualPickUpDate) {
		return nil, invalidf("actual drop-off must not precede actual pick-up")
	}

	vehicleID := *rsv.VehicleID
	buffered := s.checker.Buffered(in.ActualDropOffDate)

	s.locks.Lock(vehicleID)
	defer s.locks.Unlock(vehicleID)

	free, err := s.checker.IsVehicleFreeActual(ctx, vehicleID,
		Window{Start: *rsv.ActualPickUpDate, End: buffered}, rsv.ID)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, NewConflict(ConflictOverlapOnFinalize,
			"buffered drop-off collides with a subsequent booking on this vehicle")
	}

	if err := s.tracking.EndSession(ctx, vehicleID, rsv.ID, rsv.CustomerID); err != nil {
		return nil, upstreamf("end tracking session: %v", err)
	}

	t := in.ActualDropOffDate
	e := in.Evaluation
	rsv.ActualDropOffDate = &t
	rsv.BufferedDropOffDate = &buffered
	rsv.WasDeliveryLate = &e.WasDeliveryLate
	rsv.WasChargedFee = &e.WasChargedFee
	rsv.WasInvolvedInAccident = &e.WasInvolvedInAccident
	rsv.DamageLevel = &e.DamageLevel
	rsv.DirtinessLevel = &e.DirtinessLevel
	rsv.DropOffStaffID = strings.TrimSpace(in.StaffID)
	if err := ApplyTransition(rsv, StatusDelivered, s.now()); err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateWhereStatus(ctx, rsv, StatusPickedUp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &WrongStateError{ID: rsv.ID, From: StatusPickedUp, To: StatusDelivered}
	}

	// 信誉分重算放在流转落库之后：还车一旦提交就不能因为身份服务
	// 不可用而停在半途，失败只记日志（与事件发布同一策略）
	s.recomputeScore(ctx, rsv.CustomerID, in.Evaluation)

	if buffered.After(s.now()) {
		cleaning := true
		if _, err := s.vehicles.UpdateStatusIf(ctx, vehicleID, fleet.StatusRented, fleet.StatusRented, &cleaning); err != nil {
			s.log.Warnf("mark vehicle pending cleaning failed: vehicle=%s err=%v", vehicleID, err)
		}
		s.releases.Arm(vehicleID, buffered)
	} else {
		cleaning := false
		if _, err := s.vehicles.UpdateStatusIf(ctx, vehicleID, fleet.StatusRented, fleet.StatusAvailable, &cleaning); err != nil {
			s.log.Warnf("release vehicle failed: vehicle=%s err=%v", vehicleID, err)
		}
	}

	s.publish(ctx, EventFinalized, rsv)
	return rsv, nil
}

// CancelInput 取消入参。
type CancelInput struct {
	ReservationID string
	HardDelete    bool // 取车前允许物理删除
}

// Cancel 取消：{PENDING, CONFIRMED} -> CANCELLED，计划取车时间过后不可取消。
func (s *Service) Cancel(ctx context.Context, in CancelInput) (*Reservation, error) {
	rsv, err := s.repo.FindByID(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	from := rsv.Status
	if from != StatusPending && from != StatusConfirmed {
		return nil, &WrongStateError{ID: rsv.ID, From: from, To: StatusCancelled}
	}
	if !s.now().Before(rsv.PlannedPickUpDate) {
		return nil, invalidf("planned pick-up already passed, cancellation closed")
	}

	rsv.VehicleID = nil // 解除车辆占用
	if err := ApplyTransition(rsv, StatusCancelled, s.now()); err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateWhereStatus(ctx, rsv, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &WrongStateError{ID: rsv.ID, From: from, To: StatusCancelled}
	}

	if in.HardDelete {
		if err := s.repo.Delete(ctx, rsv.ID); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, EventDeleted, rsv)
	return rsv, nil
}

// ReassignInput 换车入参。
type ReassignInput struct {
	ReservationID string
	StaffID       string
}

// Reassign 换车：取车前允许把预订换到同车型的另一辆车上。
// 新候选用与下单时完全相同的重叠检查（计划窗口 + 缓冲、排除自身），
// 绝不因为是后续操作就放宽不可重复预订的约束。
func (s *Service) Reassign(ctx context.Context, in ReassignInput) (*Reservation, error) {
	rsv, err := s.repo.FindByID(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if rsv.Status != StatusPending && rsv.Status != StatusConfirmed {
		return nil, &WrongStateError{ID: rsv.ID, From: rsv.Status, To: rsv.Status}
	}
	if rsv.VehicleID == nil {
		return nil, invalidf("reservation has no vehicle to replace")
	}
	currentID := *rsv.VehicleID

	current, err := s.vehicles.FindByID(ctx, currentID)
	if err != nil {
		return nil, notFound(err, "vehicle", currentID)
	}

	next, err := s.matcher.FindReplacement(ctx, current.ModelID, rsv.PlannedWindow(), rsv.ID, currentID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, NewConflict(ConflictVehicleUnavailable, "no alternative vehicle is free for this window")
	}

	s.locks.Lock(next.ID)
	defer s.locks.Unlock(next.ID)

	query := Window{Start: rsv.PlannedPickUpDate, End: s.checker.Buffered(rsv.PlannedDropOffDate)}
	free, err := s.checker.IsVehicleFree(ctx, next.ID, query, rsv.ID)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, NewConflict(ConflictVehicleUnavailable, "candidate vehicle was taken concurrently")
	}

	from := rsv.Status
	rsv.VehicleID = &next.ID
	rsv.VehicleChangeStaffID = strings.TrimSpace(in.StaffID)
	ok, err := s.repo.UpdateWhereStatus(ctx, rsv, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &WrongStateError{ID: rsv.ID, From: from, To: from}
	}

	s.publish(ctx, EventUpdated, rsv)
	return rsv, nil
}

// SearchModels 搜索给定租期内至少有一辆空闲车的车型。
// customerID 非空表示客户视角：先取其信誉分，按资格门过滤类别。
func (s *Service) SearchModels(ctx context.Context, w Window, customerID string, offset, limit int) ([]catalog.CarModel, error) {
	var score *int
	if customerID != "" {
		got, err := s.identity.GetScore(ctx, customerID)
		if err != nil {
			return nil, upstreamf("get score: %v", err)
		}
		score = &got
	}
	return s.matcher.ListAvailableModels(ctx, w, score, offset, limit)
}

func (s *Service) Get(ctx context.Context, id string) (*Reservation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalidf("id required")
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Reservation, int64, error) {
	return s.repo.List(ctx, f)
}

// publish 发布失败只记日志，不回滚已完成的状态变更。
func (s *Service) publish(ctx context.Context, t EventType, rsv *Reservation) {
	metrics.ReservationTransitions.WithLabelValues(string(t)).Inc()
	evt := Event{Type: t, OccurredAt: s.now(), Reservation: *rsv}
	if err := s.events.Publish(ctx, evt); err != nil {
		metrics.EventPublishFailures.Inc()
		s.log.Warnf("publish event failed: type=%s reservation=%s err=%v", t, rsv.ID, err)
	}
}

func (s *Service) recomputeScore(ctx context.Context, customerID string, e Evaluation) {
	current, err := s.identity.GetScore(ctx, customerID)
	if err != nil {
		s.log.Warnf("get score for recompute failed: customer=%s err=%v", customerID, err)
		return
	}
	if err := s.identity.UpdateScore(ctx, customerID, s.scoreRule.Recompute(current, e)); err != nil {
		s.log.Warnf("update score failed: customer=%s err=%v", customerID, err)
	}
}

func (s *Service) endSessionQuietly(ctx context.Context, vehicleID, reservationID, customerID string) {
	if err := s.tracking.EndSession(ctx, vehicleID, reservationID, customerID); err != nil {
		s.log.Warnf("compensating end session failed: vehicle=%s err=%v", vehicleID, err)
	}
}

// rentalDays 计费天数：取车与还车所在日历日都计入（首尾含）。
func rentalDays(pickUp, dropOff time.Time) int64 {
	a := time.Date(pickUp.Year(), pickUp.Month(), pickUp.Day(), 0, 0, 0, 0, pickUp.Location())
	b := time.Date(dropOff.Year(), dropOff.Month(), dropOff.Day(), 0, 0, 0, 0, dropOff.Location())
	return int64(b.Sub(a).Hours()/24) + 1
}
