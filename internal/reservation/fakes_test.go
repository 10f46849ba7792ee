package reservation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/catalog"
	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/fleet"
	"gorm.io/gorm"
)

// 包内共享的内存假实现：仓储与下游客户端都走接口，
// 测试不碰真实 MySQL/Redis/HTTP。

type fakeStore struct {
	mu   sync.Mutex
	byID map[string]*Reservation
}

func newFakeStore(seed ...*Reservation) *fakeStore {
	s := &fakeStore{byID: make(map[string]*Reservation)}
	for _, r := range seed {
		cp := *r
		s.byID[r.ID] = &cp
	}
	return s
}

func (s *fakeStore) get(id string) (*Reservation, bool) {
	r, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

func (s *fakeStore) Create(ctx context.Context, rsv *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rsv.ID]; ok {
		return fmt.Errorf("duplicate id %s", rsv.ID)
	}
	cp := *rsv
	s.byID[rsv.ID] = &cp
	return nil
}

func (s *fakeStore) FindByID(ctx context.Context, id string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, id)
	}
	return r, nil
}

func (s *fakeStore) FindByPaymentToken(ctx context.Context, token string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byID {
		if r.PaymentToken == token {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: reservation for payment token", ErrNotFound)
}

func (s *fakeStore) UpdateWhereStatus(ctx context.Context, rsv *Reservation, from Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[rsv.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	cp := *rsv
	s.byID[rsv.ID] = &cp
	return true, nil
}

func (s *fakeStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[id]
	if !ok || cur.Status != StatusPending {
		return false, nil
	}
	cur.Status = StatusExpired
	return true, nil
}

func (s *fakeStore) ListBlocking(ctx context.Context, vehicleID string) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for _, r := range s.byID {
		if r.VehicleID != nil && *r.VehicleID == vehicleID && r.Blocks() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for _, r := range s.byID {
		if r.Status == StatusPending && r.CreationDate.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) HasPending(ctx context.Context, customerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byID {
		if r.CustomerID == customerID && r.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) LatestDeliveredBuffer(ctx context.Context, vehicleID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *time.Time
	for _, r := range s.byID {
		if r.VehicleID == nil || *r.VehicleID != vehicleID ||
			r.Status != StatusDelivered || r.BufferedDropOffDate == nil {
			continue
		}
		if latest == nil || r.BufferedDropOffDate.After(*latest) {
			t := *r.BufferedDropOffDate
			latest = &t
		}
	}
	return latest, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *fakeStore) List(ctx context.Context, f ListFilter) ([]Reservation, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for _, r := range s.byID {
		if f.CustomerID != "" && r.CustomerID != f.CustomerID {
			continue
		}
		if f.VehicleID != "" && (r.VehicleID == nil || *r.VehicleID != f.VehicleID) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

type fakeFleet struct {
	mu          sync.Mutex
	vehicles    map[string]*fleet.Vehicle
	maintenance []fleet.MaintenanceRecord
}

func newFakeFleet(vehicles ...*fleet.Vehicle) *fakeFleet {
	f := &fakeFleet{vehicles: make(map[string]*fleet.Vehicle)}
	for _, v := range vehicles {
		cp := *v
		f.vehicles[v.ID] = &cp
	}
	return f
}

func (f *fakeFleet) FindByID(ctx context.Context, id string) (*fleet.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeFleet) ListByModel(ctx context.Context, modelID string) ([]fleet.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fleet.Vehicle
	for _, v := range f.vehicles {
		if v.ModelID == modelID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OdometerKM != out[j].OdometerKM {
			return out[i].OdometerKM < out[j].OdometerKM
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeFleet) UpdateStatusIf(ctx context.Context, id string, from, to fleet.Status, pendingCleaning *bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok || v.Status != from {
		return false, nil
	}
	v.Status = to
	if pendingCleaning != nil {
		v.PendingCleaning = *pendingCleaning
	}
	return true, nil
}

func (f *fakeFleet) ListRentedPendingCleaning(ctx context.Context) ([]fleet.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fleet.Vehicle
	for _, v := range f.vehicles {
		if v.Status == fleet.StatusRented && v.PendingCleaning {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeFleet) ListOpenMaintenance(ctx context.Context, vehicleID string) ([]fleet.MaintenanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fleet.MaintenanceRecord
	for _, m := range f.maintenance {
		if m.VehicleID == vehicleID && !m.Completed {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeModels struct {
	models map[string]*catalog.CarModel
}

func newFakeModels(models ...*catalog.CarModel) *fakeModels {
	f := &fakeModels{models: make(map[string]*catalog.CarModel)}
	for _, m := range models {
		cp := *m
		f.models[m.ID] = &cp
	}
	return f
}

func (f *fakeModels) FindByID(ctx context.Context, id string) (*catalog.CarModel, error) {
	m, ok := f.models[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeModels) List(ctx context.Context, category catalog.Category, offset, limit int) ([]catalog.CarModel, int64, error) {
	var out []catalog.CarModel
	for _, m := range f.models {
		if category != "" && m.Category != category {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

type fakePayment struct {
	mu        sync.Mutex
	createErr error
	getErr    error
	seq       int
	records   map[string]*PaymentRecord
}

func newFakePayment() *fakePayment {
	return &fakePayment{records: make(map[string]*PaymentRecord)}
}

func (f *fakePayment) CreatePaymentRequest(ctx context.Context, reservationID string, amountCents int64, description string) (*PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	token := fmt.Sprintf("tok-%d", f.seq)
	f.records[token] = &PaymentRecord{Token: token, Status: "created", AmountCents: amountCents}
	return &PaymentRequest{Token: token, ApprovalURL: "https://pay.example/" + token}, nil
}

func (f *fakePayment) GetRecordByToken(ctx context.Context, token string) (*PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[token]
	if !ok {
		return nil, fmt.Errorf("no record for token %s", token)
	}
	cp := *rec
	return &cp, nil
}

func (f *fakePayment) approve(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[token]; ok {
		rec.Status = PaymentStatusApproved
	}
}

type fakeTracking struct {
	mu       sync.Mutex
	startErr error
	endErr   error
	started  []string
	ended    []string
}

func (f *fakeTracking) StartSession(ctx context.Context, vehicleID, reservationID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, reservationID)
	return nil
}

func (f *fakeTracking) EndSession(ctx context.Context, vehicleID, reservationID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return f.endErr
	}
	f.ended = append(f.ended, reservationID)
	return nil
}

type fakeIdentity struct {
	mu        sync.Mutex
	scores    map[string]int
	getErr    error
	updateErr error
}

func newFakeIdentity(scores map[string]int) *fakeIdentity {
	if scores == nil {
		scores = make(map[string]int)
	}
	return &fakeIdentity{scores: scores}
}

func (f *fakeIdentity) GetScore(ctx context.Context, customerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.scores[customerID], nil
}

func (f *fakeIdentity) UpdateScore(ctx context.Context, customerID string, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.scores[customerID] = score
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, evt Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func (f *fakePublisher) types() []EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeReleases struct {
	mu    sync.Mutex
	armed map[string]time.Time
}

func newFakeReleases() *fakeReleases {
	return &fakeReleases{armed: make(map[string]time.Time)}
}

func (f *fakeReleases) Arm(vehicleID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[vehicleID] = at
}

// testEnv 打包一套假依赖与固定时钟，service_test 共用。
type testEnv struct {
	store    *fakeStore
	vehicles *fakeFleet
	models   *fakeModels
	payment  *fakePayment
	tracking *fakeTracking
	identity *fakeIdentity
	events   *fakePublisher
	releases *fakeReleases
	checker  *Checker
	now      time.Time
	svc      *Service
}

func newTestEnv(bufferDays int, now time.Time) *testEnv {
	env := &testEnv{
		store:    newFakeStore(),
		vehicles: newFakeFleet(),
		models:   newFakeModels(),
		payment:  newFakePayment(),
		tracking: &fakeTracking{},
		identity: newFakeIdentity(nil),
		events:   &fakePublisher{},
		releases: newFakeReleases(),
		now:      now,
	}
	env.checker = NewChecker(env.store, env.vehicles, bufferDays)
	gate := NewGate(map[string]int{
		"ECONOMY":  50,
		"STANDARD": 60,
		"PREMIUM":  75,
		"LUXURY":   90,
	})
	matcher := NewMatcher(env.vehicles, env.models, env.checker, gate)
	env.svc = NewService(Deps{
		Repo:     env.store,
		Vehicles: env.vehicles,
		Models:   env.models,
		Matcher:  matcher,
		Checker:  env.checker,
		Locks:    NewKeyedLocks(),
		Score: NewScoreRule(config.ScoreConfig{
			LateDeliveryPenalty:  8,
			ChargedFeePenalty:    5,
			AccidentPenalty:      15,
			DamageUnitPenalty:    3,
			DirtinessUnitPenalty: 2,
			CleanReturnBonus:     3,
		}),
		Payment:  env.payment,
		Tracking: env.tracking,
		Identity: env.identity,
		Events:   env.events,
		Releases: env.releases,
		Now:      func() time.Time { return env.now },
	})
	return env
}
