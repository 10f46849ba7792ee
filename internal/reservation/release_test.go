package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/fleet"
)

func pendingCleaningVehicle(id string) *fleet.Vehicle {
	return &fleet.Vehicle{ID: id, ModelID: "m-eco", Status: fleet.StatusRented, PendingCleaning: true}
}

func TestArmInPastReleasesImmediately(t *testing.T) {
	vehicles := newFakeFleet(pendingCleaningVehicle("v1"))
	s := NewReleaseScheduler(vehicles, newFakeStore(), nil)
	s.now = func() time.Time { return date(2026, 7, 14, 0) }

	s.Arm("v1", date(2026, 7, 13, 10))

	v, err := vehicles.FindByID(context.Background(), "v1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if v.Status != fleet.StatusAvailable || v.PendingCleaning {
		t.Errorf("vehicle = %s/cleaning=%v, want AVAILABLE/cleaning=false", v.Status, v.PendingCleaning)
	}
}

func TestFireIsIdempotent(t *testing.T) {
	vehicles := newFakeFleet(pendingCleaningVehicle("v1"))
	s := NewReleaseScheduler(vehicles, newFakeStore(), nil)
	s.now = func() time.Time { return date(2026, 7, 14, 0) }

	s.Arm("v1", date(2026, 7, 13, 10))
	// 车辆已被移走（例如进维修），再触发必须是 no-op
	if _, err := vehicles.UpdateStatusIf(context.Background(), "v1", fleet.StatusAvailable, fleet.StatusInMaintenance, nil); err != nil {
		t.Fatalf("UpdateStatusIf: %v", err)
	}
	s.Arm("v1", date(2026, 7, 13, 10))

	v, _ := vehicles.FindByID(context.Background(), "v1")
	if v.Status != fleet.StatusInMaintenance {
		t.Errorf("second fire must not touch a vehicle that moved on, got %s", v.Status)
	}
}

func TestArmReplacesExistingTimer(t *testing.T) {
	vehicles := newFakeFleet(pendingCleaningVehicle("v1"))
	s := NewReleaseScheduler(vehicles, newFakeStore(), nil)
	defer s.Stop()

	s.Arm("v1", time.Now().Add(time.Hour))
	s.Arm("v1", time.Now().Add(2*time.Hour))

	s.mu.Lock()
	n := len(s.timers)
	s.mu.Unlock()
	if n != 1 {
		t.Errorf("expected a single timer per vehicle, got %d", n)
	}
}

func TestRearmFromPersistedBuffer(t *testing.T) {
	pastBuffer := date(2026, 7, 13, 10)
	futureBuffer := date(2026, 7, 16, 10)
	vehicles := newFakeFleet(pendingCleaningVehicle("v-past"), pendingCleaningVehicle("v-future"))
	store := newFakeStore(
		&Reservation{
			ID: "r-past", VehicleID: strPtr("v-past"), CustomerID: "c1",
			Status: StatusDelivered, BufferedDropOffDate: &pastBuffer,
		},
		&Reservation{
			ID: "r-future", VehicleID: strPtr("v-future"), CustomerID: "c2",
			Status: StatusDelivered, BufferedDropOffDate: &futureBuffer,
		},
	)
	s := NewReleaseScheduler(vehicles, store, nil)
	s.now = func() time.Time { return date(2026, 7, 14, 0) }
	defer s.Stop()

	if err := s.Rearm(context.Background()); err != nil {
		t.Fatalf("Rearm: %v", err)
	}

	// 缓冲已过：立即释放
	v, _ := vehicles.FindByID(context.Background(), "v-past")
	if v.Status != fleet.StatusAvailable {
		t.Errorf("v-past = %s, want AVAILABLE", v.Status)
	}

	// 缓冲未到：保持 RENTED，定时器重建
	v, _ = vehicles.FindByID(context.Background(), "v-future")
	if v.Status != fleet.StatusRented {
		t.Errorf("v-future = %s, want RENTED", v.Status)
	}
	s.mu.Lock()
	_, armed := s.timers["v-future"]
	s.mu.Unlock()
	if !armed {
		t.Error("timer for v-future not rebuilt")
	}
}

func TestRearmReleasesWhenNoBufferRecorded(t *testing.T) {
	vehicles := newFakeFleet(pendingCleaningVehicle("v1"))
	s := NewReleaseScheduler(vehicles, newFakeStore(), nil)
	s.now = func() time.Time { return date(2026, 7, 14, 0) }

	if err := s.Rearm(context.Background()); err != nil {
		t.Fatalf("Rearm: %v", err)
	}
	v, _ := vehicles.FindByID(context.Background(), "v1")
	if v.Status != fleet.StatusAvailable {
		t.Errorf("vehicle without persisted buffer must be released, got %s", v.Status)
	}
}
