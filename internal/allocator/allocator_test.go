package allocator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gateleaf/ticket-engine/internal/clock"
	"github.com/gateleaf/ticket-engine/internal/model"
	"github.com/gateleaf/ticket-engine/internal/repository"
)

// fakeStore is an in-memory Store. WithTx serializes callbacks with a
// mutex, standing in for the row locks of the real database, and
// restores a snapshot when the callback fails so rollbacks behave like
// the real thing.
type fakeStore struct {
	mu          sync.Mutex
	events      map[uint64]*model.Event
	types       map[uint64]model.TicketType
	users       map[uint64]model.User
	tickets     map[uint64]*model.TicketArtifact
	claims      map[uint64]*model.TicketClaim
	nextClaimID uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:  map[uint64]*model.Event{},
		types:   map[uint64]model.TicketType{},
		users:   map[uint64]model.User{},
		tickets: map[uint64]*model.TicketArtifact{},
		claims:  map[uint64]*model.TicketClaim{},
	}
}

func (f *fakeStore) snapshot() (map[uint64]*model.Event, map[uint64]*model.TicketArtifact, map[uint64]*model.TicketClaim, uint64) {
	ev := make(map[uint64]*model.Event, len(f.events))
	for id, e := range f.events {
		cp := *e
		ev[id] = &cp
	}
	tk := make(map[uint64]*model.TicketArtifact, len(f.tickets))
	for id, t := range f.tickets {
		cp := *t
		tk[id] = &cp
	}
	cl := make(map[uint64]*model.TicketClaim, len(f.claims))
	for id, c := range f.claims {
		cp := *c
		cl[id] = &cp
	}
	return ev, tk, cl, f.nextClaimID
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, tk, cl, next := f.snapshot()
	if err := fn(ctx); err != nil {
		f.events, f.tickets, f.claims, f.nextClaimID = ev, tk, cl, next
		return err
	}
	return nil
}

func (f *fakeStore) EventByID(ctx context.Context, id uint64) (model.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return model.Event{}, sql.ErrNoRows
	}
	return *e, nil
}

func (f *fakeStore) TicketTypeByID(ctx context.Context, id uint64) (model.TicketType, error) {
	tt, ok := f.types[id]
	if !ok {
		return model.TicketType{}, sql.ErrNoRows
	}
	return tt, nil
}

func (f *fakeStore) UserByID(ctx context.Context, id uint64) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) UserByEmail(ctx context.Context, email string) (model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeStore) HasClaim(ctx context.Context, userID, eventID uint64) (bool, error) {
	for _, c := range f.claims {
		if c.UserID == userID && c.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) OldestAvailableTicket(ctx context.Context, ticketTypeID uint64) (model.TicketArtifact, error) {
	var best *model.TicketArtifact
	for _, t := range f.tickets {
		if t.TicketTypeID == nil || *t.TicketTypeID != ticketTypeID || t.IsClaimed {
			continue
		}
		if best == nil || t.CreatedAt.Before(best.CreatedAt) ||
			(t.CreatedAt.Equal(best.CreatedAt) && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return model.TicketArtifact{}, sql.ErrNoRows
	}
	return *best, nil
}

func (f *fakeStore) TicketForUpdate(ctx context.Context, ticketID uint64) (model.TicketArtifact, error) {
	t, ok := f.tickets[ticketID]
	if !ok {
		return model.TicketArtifact{}, sql.ErrNoRows
	}
	return *t, nil
}

func (f *fakeStore) MarkTicketClaimed(ctx context.Context, ticketID, userID uint64, at time.Time) (bool, error) {
	t, ok := f.tickets[ticketID]
	if !ok || t.IsClaimed {
		return false, nil
	}
	t.IsClaimed = true
	t.ClaimedBy = &userID
	claimedAt := at
	t.ClaimedAt = &claimedAt
	return true, nil
}

func (f *fakeStore) ResetTicket(ctx context.Context, ticketID uint64) error {
	t, ok := f.tickets[ticketID]
	if !ok {
		return sql.ErrNoRows
	}
	t.IsClaimed = false
	t.ClaimedBy = nil
	t.ClaimedAt = nil
	return nil
}

func (f *fakeStore) DeleteTicket(ctx context.Context, ticketID uint64) error {
	delete(f.tickets, ticketID)
	return nil
}

func (f *fakeStore) InsertClaim(ctx context.Context, claim *model.TicketClaim) error {
	for _, c := range f.claims {
		if c.UserID == claim.UserID && c.EventID == claim.EventID {
			return repository.ErrDuplicateClaim
		}
		if c.TicketID == claim.TicketID {
			return repository.ErrTicketReferenced
		}
	}
	f.nextClaimID++
	claim.ID = f.nextClaimID
	cp := *claim
	f.claims[claim.ID] = &cp
	return nil
}

func (f *fakeStore) ClaimByID(ctx context.Context, id uint64) (model.TicketClaim, error) {
	c, ok := f.claims[id]
	if !ok {
		return model.TicketClaim{}, sql.ErrNoRows
	}
	return *c, nil
}

func (f *fakeStore) ClaimByTicket(ctx context.Context, ticketID uint64) (model.TicketClaim, error) {
	for _, c := range f.claims {
		if c.TicketID == ticketID {
			return *c, nil
		}
	}
	return model.TicketClaim{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteClaim(ctx context.Context, id uint64) (bool, error) {
	if _, ok := f.claims[id]; !ok {
		return false, nil
	}
	delete(f.claims, id)
	return true, nil
}

func (f *fakeStore) IncrementClaimedCount(ctx context.Context, eventID uint64) (bool, error) {
	e, ok := f.events[eventID]
	if !ok || e.ClaimedCount >= e.Capacity {
		return false, nil
	}
	e.ClaimedCount++
	return true, nil
}

func (f *fakeStore) DecrementClaimedCount(ctx context.Context, eventID uint64) (bool, error) {
	e, ok := f.events[eventID]
	if !ok || e.ClaimedCount == 0 {
		return false, nil
	}
	e.ClaimedCount--
	return true, nil
}

func (f *fakeStore) RecountClaims(ctx context.Context, eventID uint64) (int, error) {
	n := 0
	for _, c := range f.claims {
		if c.EventID == eventID {
			n++
		}
	}
	if e, ok := f.events[eventID]; ok {
		e.ClaimedCount = uint32(n)
	}
	return n, nil
}

// seed builds a store with one event, one ticket type and nArtifacts
// available artifacts, plus one subscriber per entry in tiers.
func seed(capacity uint32, criteria model.TierCriteria, nArtifacts int, tiers []model.Tier) *fakeStore {
	f := newFakeStore()
	f.events[1] = &model.Event{ID: 1, Name: "launch night", Capacity: capacity}
	typeID := uint64(10)
	f.types[typeID] = model.TicketType{ID: typeID, EventID: 1, Name: "general", Criteria: criteria}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < nArtifacts; i++ {
		id := uint64(100 + i)
		tid := typeID
		f.tickets[id] = &model.TicketArtifact{
			ID:           id,
			EventID:      1,
			TicketTypeID: &tid,
			ObjectKey:    fmt.Sprintf("tickets/1/10/page-%d.pdf", i+1),
			PageNumber:   uint32(i + 1),
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}
	}
	for i, tier := range tiers {
		id := uint64(i + 1)
		f.users[id] = model.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id), Role: model.RoleSubscriber, Tier: tier}
	}
	return f
}

func fixedClock() clock.Clock {
	return clock.NewFixed(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	all := model.TierCriteria{model.TierBasic, model.TierPlus, model.TierVIP}

	t.Run("allocates oldest artifact and increments counter", func(t *testing.T) {
		store := seed(5, all, 3, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		claim, err := alloc.Claim(ctx, 1, 10, 1)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if claim.TicketID != 100 {
			t.Fatalf("expected oldest artifact 100, got %d", claim.TicketID)
		}
		if !store.tickets[100].IsClaimed {
			t.Fatal("artifact not marked claimed")
		}
		if got := store.events[1].ClaimedCount; got != 1 {
			t.Fatalf("claimed_count = %d, want 1", got)
		}
	})

	t.Run("second claim by same user is rejected", func(t *testing.T) {
		store := seed(5, all, 3, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		if _, err := alloc.Claim(ctx, 1, 10, 1); err != nil {
			t.Fatalf("first claim: %v", err)
		}
		if _, err := alloc.Claim(ctx, 1, 10, 1); !errors.Is(err, ErrAlreadyClaimed) {
			t.Fatalf("err = %v, want ErrAlreadyClaimed", err)
		}
		if got := store.events[1].ClaimedCount; got != 1 {
			t.Fatalf("claimed_count = %d, want 1", got)
		}
	})

	t.Run("ineligible tier is rejected before allocation", func(t *testing.T) {
		store := seed(5, model.TierCriteria{model.TierVIP}, 3, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		if _, err := alloc.Claim(ctx, 1, 10, 1); !errors.Is(err, ErrIneligibleTier) {
			t.Fatalf("err = %v, want ErrIneligibleTier", err)
		}
		if got := store.events[1].ClaimedCount; got != 0 {
			t.Fatalf("claimed_count = %d, want 0", got)
		}
	})

	t.Run("empty pool yields no ticket available", func(t *testing.T) {
		store := seed(5, all, 0, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		if _, err := alloc.Claim(ctx, 1, 10, 1); !errors.Is(err, ErrNoTicketAvailable) {
			t.Fatalf("err = %v, want ErrNoTicketAvailable", err)
		}
	})

	t.Run("capacity exceeded rolls back artifact and claim", func(t *testing.T) {
		// More artifacts than capacity: the third claim finds a free
		// artifact but the counter refuses, and nothing sticks.
		store := seed(2, all, 3, []model.Tier{model.TierBasic, model.TierBasic, model.TierBasic})
		alloc := New(store, fixedClock())

		for userID := uint64(1); userID <= 2; userID++ {
			if _, err := alloc.Claim(ctx, 1, 10, userID); err != nil {
				t.Fatalf("claim user %d: %v", userID, err)
			}
		}
		if _, err := alloc.Claim(ctx, 1, 10, 3); !errors.Is(err, ErrCapacityExceeded) {
			t.Fatalf("err = %v, want ErrCapacityExceeded", err)
		}
		if store.tickets[102].IsClaimed {
			t.Fatal("rolled-back claim left artifact marked")
		}
		if len(store.claims) != 2 {
			t.Fatalf("claims = %d, want 2", len(store.claims))
		}
	})

	t.Run("ticket type must belong to the event", func(t *testing.T) {
		store := seed(5, all, 3, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		if _, err := alloc.Claim(ctx, 2, 10, 1); !errors.Is(err, ErrTicketNotFound) {
			t.Fatalf("err = %v, want ErrTicketNotFound", err)
		}
	})
}

func TestClaimConcurrent(t *testing.T) {
	// N competing users against K artifacts: exactly K succeed, each
	// winner gets a distinct artifact, and the counter equals K.
	ctx := context.Background()
	all := model.TierCriteria{model.TierBasic, model.TierPlus, model.TierVIP}
	const artifacts = 2
	const contenders = 6

	tiers := make([]model.Tier, contenders)
	for i := range tiers {
		tiers[i] = model.TierBasic
	}
	store := seed(10, all, artifacts, tiers)
	alloc := New(store, fixedClock())

	var wg sync.WaitGroup
	results := make([]error, contenders)
	tickets := make([]uint64, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claim, err := alloc.Claim(ctx, 1, 10, uint64(i+1))
			results[i] = err
			tickets[i] = claim.TicketID
		}(i)
	}
	wg.Wait()

	won := map[uint64]bool{}
	wins := 0
	for i, err := range results {
		switch {
		case err == nil:
			wins++
			if won[tickets[i]] {
				t.Fatalf("artifact %d claimed twice", tickets[i])
			}
			won[tickets[i]] = true
		case errors.Is(err, ErrNoTicketAvailable):
		default:
			t.Fatalf("unexpected error for user %d: %v", i+1, err)
		}
	}
	if wins != artifacts {
		t.Fatalf("winners = %d, want %d", wins, artifacts)
	}
	if got := store.events[1].ClaimedCount; got != artifacts {
		t.Fatalf("claimed_count = %d, want %d", got, artifacts)
	}
}

func TestUnclaim(t *testing.T) {
	ctx := context.Background()
	all := model.TierCriteria{model.TierBasic, model.TierPlus, model.TierVIP}

	t.Run("releases the artifact for another user", func(t *testing.T) {
		store := seed(5, all, 1, []model.Tier{model.TierBasic, model.TierPlus})
		alloc := New(store, fixedClock())

		claim, err := alloc.Claim(ctx, 1, 10, 1)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if _, err := alloc.Unclaim(ctx, claim.ID, 1); err != nil {
			t.Fatalf("unclaim: %v", err)
		}
		if store.tickets[claim.TicketID].IsClaimed {
			t.Fatal("artifact still marked claimed after release")
		}
		if got := store.events[1].ClaimedCount; got != 0 {
			t.Fatalf("claimed_count = %d, want 0", got)
		}

		second, err := alloc.Claim(ctx, 1, 10, 2)
		if err != nil {
			t.Fatalf("reclaim by second user: %v", err)
		}
		if second.TicketID != claim.TicketID {
			t.Fatalf("reclaim got artifact %d, want %d", second.TicketID, claim.TicketID)
		}
	})

	t.Run("double unclaim decrements once", func(t *testing.T) {
		store := seed(5, all, 1, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		claim, err := alloc.Claim(ctx, 1, 10, 1)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if _, err := alloc.Unclaim(ctx, claim.ID, 1); err != nil {
			t.Fatalf("first unclaim: %v", err)
		}
		if _, err := alloc.Unclaim(ctx, claim.ID, 1); !errors.Is(err, ErrClaimNotFound) {
			t.Fatalf("second unclaim err = %v, want ErrClaimNotFound", err)
		}
		if got := store.events[1].ClaimedCount; got != 0 {
			t.Fatalf("claimed_count = %d, want 0", got)
		}
	})

	t.Run("rejects callers that do not own the claim", func(t *testing.T) {
		store := seed(5, all, 1, []model.Tier{model.TierBasic, model.TierBasic})
		alloc := New(store, fixedClock())

		claim, err := alloc.Claim(ctx, 1, 10, 1)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if _, err := alloc.Unclaim(ctx, claim.ID, 2); !errors.Is(err, ErrNotOwner) {
			t.Fatalf("err = %v, want ErrNotOwner", err)
		}
		if !store.tickets[claim.TicketID].IsClaimed {
			t.Fatal("foreign unclaim released the artifact")
		}
	})

	t.Run("admin unclaim resolves the claim by artifact", func(t *testing.T) {
		store := seed(5, all, 1, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		claim, err := alloc.Claim(ctx, 1, 10, 1)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		released, err := alloc.AdminUnclaim(ctx, claim.TicketID)
		if err != nil {
			t.Fatalf("admin unclaim: %v", err)
		}
		if released.ID != claim.ID {
			t.Fatalf("released claim %d, want %d", released.ID, claim.ID)
		}
		if _, err := alloc.AdminUnclaim(ctx, claim.TicketID); !errors.Is(err, ErrClaimNotFound) {
			t.Fatalf("err = %v, want ErrClaimNotFound", err)
		}
	})
}

func TestAdminAssign(t *testing.T) {
	ctx := context.Background()

	t.Run("bypasses the tier criteria", func(t *testing.T) {
		store := seed(5, model.TierCriteria{model.TierVIP}, 1, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		claim, err := alloc.AdminAssign(ctx, 100, "user1@example.com")
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		if claim.UserID != 1 || claim.TicketID != 100 {
			t.Fatalf("claim = %+v", claim)
		}
		if got := store.events[1].ClaimedCount; got != 1 {
			t.Fatalf("claimed_count = %d, want 1", got)
		}
	})

	t.Run("refuses a claimed artifact", func(t *testing.T) {
		store := seed(5, model.TierCriteria{model.TierBasic}, 1, []model.Tier{model.TierBasic, model.TierBasic})
		alloc := New(store, fixedClock())

		if _, err := alloc.Claim(ctx, 1, 10, 1); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if _, err := alloc.AdminAssign(ctx, 100, "user2@example.com"); !errors.Is(err, ErrTicketClaimed) {
			t.Fatalf("err = %v, want ErrTicketClaimed", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		store := seed(5, model.TierCriteria{model.TierBasic}, 1, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		if _, err := alloc.AdminAssign(ctx, 100, "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("err = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("one claim per user still holds", func(t *testing.T) {
		store := seed(5, model.TierCriteria{model.TierBasic}, 2, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		if _, err := alloc.AdminAssign(ctx, 100, "user1@example.com"); err != nil {
			t.Fatalf("first assign: %v", err)
		}
		if _, err := alloc.AdminAssign(ctx, 101, "user1@example.com"); !errors.Is(err, ErrAlreadyClaimed) {
			t.Fatalf("err = %v, want ErrAlreadyClaimed", err)
		}
	})
}

func TestDeleteTicket(t *testing.T) {
	ctx := context.Background()
	all := model.TierCriteria{model.TierBasic, model.TierPlus, model.TierVIP}

	t.Run("claimed artifact cascades", func(t *testing.T) {
		store := seed(5, all, 1, []model.Tier{model.TierBasic})
		alloc := New(store, fixedClock())

		claim, err := alloc.Claim(ctx, 1, 10, 1)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		key, hadClaim, err := alloc.DeleteTicket(ctx, claim.TicketID)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if !hadClaim {
			t.Fatal("hadClaim = false, want true")
		}
		if key != "tickets/1/10/page-1.pdf" {
			t.Fatalf("object key = %q", key)
		}
		if len(store.claims) != 0 {
			t.Fatalf("claims = %d, want 0", len(store.claims))
		}
		if got := store.events[1].ClaimedCount; got != 0 {
			t.Fatalf("claimed_count = %d, want 0", got)
		}
	})

	t.Run("unclaimed artifact deletes without counter change", func(t *testing.T) {
		store := seed(5, all, 1, nil)
		alloc := New(store, fixedClock())

		_, hadClaim, err := alloc.DeleteTicket(ctx, 100)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if hadClaim {
			t.Fatal("hadClaim = true, want false")
		}
		if _, ok := store.tickets[100]; ok {
			t.Fatal("artifact still present")
		}
	})

	t.Run("missing artifact", func(t *testing.T) {
		store := seed(5, all, 0, nil)
		alloc := New(store, fixedClock())

		if _, _, err := alloc.DeleteTicket(ctx, 999); !errors.Is(err, ErrTicketNotFound) {
			t.Fatalf("err = %v, want ErrTicketNotFound", err)
		}
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	all := model.TierCriteria{model.TierBasic, model.TierPlus, model.TierVIP}

	t.Run("heals counter drift", func(t *testing.T) {
		store := seed(5, all, 2, []model.Tier{model.TierBasic, model.TierBasic})
		alloc := New(store, fixedClock())

		for userID := uint64(1); userID <= 2; userID++ {
			if _, err := alloc.Claim(ctx, 1, 10, userID); err != nil {
				t.Fatalf("claim user %d: %v", userID, err)
			}
		}
		store.events[1].ClaimedCount = 5 // simulated drift

		n, err := alloc.Reconcile(ctx, 1)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if n != 2 {
			t.Fatalf("recount = %d, want 2", n)
		}
		if got := store.events[1].ClaimedCount; got != 2 {
			t.Fatalf("claimed_count = %d, want 2", got)
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		store := seed(5, all, 0, nil)
		alloc := New(store, fixedClock())

		if _, err := alloc.Reconcile(ctx, 42); !errors.Is(err, ErrEventNotFound) {
			t.Fatalf("err = %v, want ErrEventNotFound", err)
		}
	})
}
