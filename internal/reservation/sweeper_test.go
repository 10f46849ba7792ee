package reservation

import (
	"context"
	"testing"
	"time"
)

func TestSweepOnceExpiresOnlyStalePending(t *testing.T) {
	now := date(2026, 7, 1, 12)
	store := newFakeStore(
		&Reservation{ID: "r-stale", CustomerID: "c1", Status: StatusPending,
			CreationDate: now.Add(-2 * time.Hour)},
		&Reservation{ID: "r-fresh", CustomerID: "c2", Status: StatusPending,
			CreationDate: now.Add(-10 * time.Minute)},
		&Reservation{ID: "r-paid", CustomerID: "c3", Status: StatusConfirmed,
			CreationDate: now.Add(-3 * time.Hour)},
	)
	events := &fakePublisher{}
	s := NewSweeper(store, events, nil, 30*time.Minute, time.Minute)
	s.now = func() time.Time { return now }

	expired := s.SweepOnce(context.Background())
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	check := func(id string, want Status) {
		r, err := store.FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("FindByID(%s): %v", id, err)
		}
		if r.Status != want {
			t.Errorf("%s = %s, want %s", id, r.Status, want)
		}
	}
	check("r-stale", StatusExpired)
	check("r-fresh", StatusPending)
	check("r-paid", StatusConfirmed)

	types := events.types()
	if len(types) != 1 || types[0] != EventExpired {
		t.Errorf("events = %v, want one EXPIRED", types)
	}
}

func TestSweepSkipsWhenConfirmWinsRace(t *testing.T) {
	now := date(2026, 7, 1, 12)
	store := newFakeStore(&Reservation{
		ID: "r1", CustomerID: "c1", Status: StatusPending,
		CreationDate: now.Add(-2 * time.Hour),
	})
	events := &fakePublisher{}
	s := NewSweeper(store, events, nil, 30*time.Minute, time.Minute)
	s.now = func() time.Time { return now }

	// 支付确认抢先落库
	r, _ := store.FindByID(context.Background(), "r1")
	r.Status = StatusConfirmed
	if ok, _ := store.UpdateWhereStatus(context.Background(), r, StatusPending); !ok {
		t.Fatal("seed confirm failed")
	}

	// 即使该预订已被选入本轮扫描，条件流转也必须落空
	if ok, _ := store.MarkExpired(context.Background(), "r1"); ok {
		t.Fatal("MarkExpired must lose to a committed confirm")
	}
	if expired := s.SweepOnce(context.Background()); expired != 0 {
		t.Fatalf("expired = %d, want 0", expired)
	}
	if len(events.types()) != 0 {
		t.Error("no event may be published for a reservation that confirmed first")
	}
}

func TestSweeperStartStop(t *testing.T) {
	store := newFakeStore()
	s := NewSweeper(store, nil, nil, 30*time.Minute, 50*time.Millisecond)
	s.Start()
	time.Sleep(10 * time.Millisecond)
	s.Stop()
}
