package dedup

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/pkg/types"
)

type memStore struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemStore() *memStore {
	return &memStore{keys: map[string]bool{}}
}

func (s *memStore) InsertIfAbsent(key, orgID string, deleteAfter *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func subscriptionsEvent(orgID, productID string, ts time.Time) *types.Event {
	return &types.Event{
		ID:          uuid.New(),
		OrgID:       orgID,
		Bundle:      "subscription-services",
		Application: "subscriptions",
		EventType:   "threshold-exceeded",
		Timestamp:   ts,
		Context: map[string]any{
			"product_id":         productID,
			"metric_id":          "metric789",
			"billing_account_id": "billing001",
		},
	}
}

func TestIsNewDefaultStrategy(t *testing.T) {
	gate := NewGate(newMemStore(), zap.NewNop())

	id := uuid.New()
	first := &types.Event{ID: id, OrgID: "org1"}
	if fresh, err := gate.IsNew(first); err != nil || !fresh {
		t.Fatalf("first sighting: got (%v, %v), want (true, nil)", fresh, err)
	}

	other := &types.Event{ID: uuid.New(), OrgID: "org1"}
	if fresh, _ := gate.IsNew(other); !fresh {
		t.Fatal("different event id should be new")
	}

	dup := &types.Event{ID: id, OrgID: "org1"}
	if fresh, err := gate.IsNew(dup); err != nil || fresh {
		t.Fatalf("duplicate: got (%v, %v), want (false, nil)", fresh, err)
	}
}

func TestIsNewMissingIDPassesThrough(t *testing.T) {
	gate := NewGate(newMemStore(), zap.NewNop())
	event := &types.Event{OrgID: "org1"}
	for i := 0; i < 3; i++ {
		if fresh, err := gate.IsNew(event); err != nil || !fresh {
			t.Fatalf("pass %d: got (%v, %v), want (true, nil)", i, fresh, err)
		}
	}
}

func TestIsNewSubscriptionsStrategy(t *testing.T) {
	gate := NewGate(newMemStore(), zap.NewNop(), SubscriptionsStrategy{})

	nov14 := time.Date(2025, 11, 14, 10, 52, 0, 0, time.UTC)
	if fresh, _ := gate.IsNew(subscriptionsEvent("org123", "prod456", nov14)); !fresh {
		t.Fatal("first subscriptions event should be new")
	}

	// Same month and business key, different day and event id: duplicate.
	nov15 := time.Date(2025, 11, 15, 14, 30, 0, 0, time.UTC)
	if fresh, _ := gate.IsNew(subscriptionsEvent("org123", "prod456", nov15)); fresh {
		t.Fatal("same-month subscriptions event should be a duplicate")
	}

	if fresh, _ := gate.IsNew(subscriptionsEvent("org999", "prod456", nov15)); !fresh {
		t.Fatal("different org should be new")
	}

	dec1 := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	if fresh, _ := gate.IsNew(subscriptionsEvent("org123", "prod456", dec1)); !fresh {
		t.Fatal("different month should be new")
	}

	if fresh, _ := gate.IsNew(subscriptionsEvent("org123", "prod999", nov15)); !fresh {
		t.Fatal("different product should be new")
	}
}

func TestSubscriptionsDeleteAfter(t *testing.T) {
	key := SubscriptionsStrategy{}.Key(subscriptionsEvent("org123", "prod456",
		time.Date(2025, 11, 14, 10, 52, 0, 0, time.UTC)))
	want := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if key.DeleteAfter == nil || !key.DeleteAfter.Equal(want) {
		t.Fatalf("deleteAfter = %v, want %v", key.DeleteAfter, want)
	}
}

func TestIsNewStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	gate := NewGate(store, zap.NewNop())

	fresh, err := gate.IsNew(&types.Event{ID: uuid.New(), OrgID: "org1"})
	if fresh {
		t.Fatal("store failure must not be treated as a new event")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestIsNewConcurrent(t *testing.T) {
	gate := NewGate(newMemStore(), zap.NewNop())
	id := uuid.New()

	const trials = 1000
	results := make(chan bool, trials)
	var wg sync.WaitGroup
	for i := 0; i < trials; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := gate.IsNew(&types.Event{ID: id, OrgID: "org1"})
			if err != nil {
				t.Errorf("IsNew: %v", err)
			}
			results <- fresh
		}()
	}
	wg.Wait()
	close(results)

	var trues int
	for fresh := range results {
		if fresh {
			trues++
		}
	}
	if trues != 1 {
		t.Fatalf("%d concurrent callers observed true, want exactly 1", trues)
	}
}
