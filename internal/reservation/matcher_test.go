package reservation

import (
	"context"
	"errors"
	"testing"

	"github.com/CarRentLink/CarRentLink/internal/catalog"
	"github.com/CarRentLink/CarRentLink/internal/fleet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher(store *fakeStore, vehicles *fakeFleet, models *fakeModels, bufferDays int) *Matcher {
	checker := NewChecker(store, vehicles, bufferDays)
	return NewMatcher(vehicles, models, checker, testGate())
}

func economyModel() *catalog.CarModel {
	return &catalog.CarModel{ID: "m-eco", Name: "Corolla", Brand: "Toyota",
		Category: catalog.CategoryEconomy, DailyRateCents: 4500, Seats: 5}
}

func TestFindVehiclePicksLowestOdometer(t *testing.T) {
	vehicles := newFakeFleet(
		&fleet.Vehicle{ID: "v-b", ModelID: "m-eco", Status: fleet.StatusAvailable, OdometerKM: 20000},
		&fleet.Vehicle{ID: "v-a", ModelID: "m-eco", Status: fleet.StatusAvailable, OdometerKM: 5000},
		&fleet.Vehicle{ID: "v-c", ModelID: "m-eco", Status: fleet.StatusAvailable, OdometerKM: 5000},
	)
	m := newTestMatcher(newFakeStore(), vehicles, newFakeModels(economyModel()), 1)

	w := Window{date(2026, 6, 1, 10), date(2026, 6, 3, 10)}
	score := 80
	got, err := m.FindVehicle(context.Background(), "m-eco", w, &score, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	// 同里程取 ID 较小者
	assert.Equal(t, "v-a", got.ID)
}

func TestFindVehicleSkipsBusyVehicles(t *testing.T) {
	store := newFakeStore(&Reservation{
		ID:                 "r1",
		VehicleID:          strPtr("v-a"),
		CustomerID:         "c1",
		Status:             StatusConfirmed,
		PlannedPickUpDate:  date(2026, 6, 1, 0),
		PlannedDropOffDate: date(2026, 6, 5, 0),
	})
	vehicles := newFakeFleet(
		&fleet.Vehicle{ID: "v-a", ModelID: "m-eco", Status: fleet.StatusAvailable, OdometerKM: 1000},
		&fleet.Vehicle{ID: "v-b", ModelID: "m-eco", Status: fleet.StatusAvailable, OdometerKM: 9000},
	)
	m := newTestMatcher(store, vehicles, newFakeModels(economyModel()), 1)

	w := Window{date(2026, 6, 2, 10), date(2026, 6, 4, 10)}
	score := 80
	got, err := m.FindVehicle(context.Background(), "m-eco", w, &score, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v-b", got.ID)
}

func TestFindVehicleNoneFree(t *testing.T) {
	store := newFakeStore(&Reservation{
		ID:                 "r1",
		VehicleID:          strPtr("v-a"),
		CustomerID:         "c1",
		Status:             StatusPickedUp,
		PlannedPickUpDate:  date(2026, 6, 1, 0),
		PlannedDropOffDate: date(2026, 6, 5, 0),
	})
	vehicles := newFakeFleet(
		&fleet.Vehicle{ID: "v-a", ModelID: "m-eco", Status: fleet.StatusRented, OdometerKM: 1000},
	)
	m := newTestMatcher(store, vehicles, newFakeModels(economyModel()), 1)

	w := Window{date(2026, 6, 2, 10), date(2026, 6, 4, 10)}
	got, err := m.FindVehicle(context.Background(), "m-eco", w, nil, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindVehicleGate(t *testing.T) {
	vehicles := newFakeFleet(
		&fleet.Vehicle{ID: "v-a", ModelID: "m-lux", Status: fleet.StatusAvailable, OdometerKM: 100},
	)
	lux := &catalog.CarModel{ID: "m-lux", Name: "S-Class", Brand: "Mercedes",
		Category: catalog.CategoryLuxury, DailyRateCents: 30000, Seats: 5}
	m := newTestMatcher(newFakeStore(), vehicles, newFakeModels(lux), 1)

	w := Window{date(2026, 6, 1, 10), date(2026, 6, 3, 10)}

	low := 60
	_, err := m.FindVehicle(context.Background(), "m-lux", w, &low, "")
	require.Error(t, err)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ConflictScoreTooLow, ce.Code)

	// 员工发起（score=nil）跳过资格门
	got, err := m.FindVehicle(context.Background(), "m-lux", w, nil, "")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestFindVehicleUnknownModel(t *testing.T) {
	m := newTestMatcher(newFakeStore(), newFakeFleet(), newFakeModels(), 1)
	_, err := m.FindVehicle(context.Background(), "missing",
		Window{date(2026, 6, 1, 0), date(2026, 6, 2, 0)}, nil, "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindReplacementExcludesCurrentVehicle(t *testing.T) {
	vehicles := newFakeFleet(
		&fleet.Vehicle{ID: "v-cur", ModelID: "m-eco", Status: fleet.StatusAvailable, OdometerKM: 100},
		&fleet.Vehicle{ID: "v-alt", ModelID: "m-eco", Status: fleet.StatusAvailable, OdometerKM: 50000},
	)
	m := newTestMatcher(newFakeStore(), vehicles, newFakeModels(economyModel()), 1)

	w := Window{date(2026, 6, 1, 10), date(2026, 6, 3, 10)}
	got, err := m.FindReplacement(context.Background(), "m-eco", w, "r1", "v-cur")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v-alt", got.ID)
}

func TestListAvailableModelsFiltersByGateAndAvailability(t *testing.T) {
	eco := economyModel()
	lux := &catalog.CarModel{ID: "m-lux", Name: "S-Class", Brand: "Mercedes",
		Category: catalog.CategoryLuxury, DailyRateCents: 30000, Seats: 5}
	vehicles := newFakeFleet(
		&fleet.Vehicle{ID: "v-eco", ModelID: "m-eco", Status: fleet.StatusAvailable, OdometerKM: 100},
		&fleet.Vehicle{ID: "v-lux", ModelID: "m-lux", Status: fleet.StatusAvailable, OdometerKM: 100},
	)
	m := newTestMatcher(newFakeStore(), vehicles, newFakeModels(eco, lux), 1)

	w := Window{date(2026, 6, 1, 10), date(2026, 6, 3, 10)}

	// 信誉分 60：只有经济型可租
	score := 60
	models, err := m.ListAvailableModels(context.Background(), w, &score, 0, 20)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "m-eco", models[0].ID)

	// 员工视角看到全部有空闲车的车型
	models, err = m.ListAvailableModels(context.Background(), w, nil, 0, 20)
	require.NoError(t, err)
	assert.Len(t, models, 2)
}
