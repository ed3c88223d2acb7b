package counter

import (
	"context"
	"errors"
	"testing"

	"github.com/gateleaf/ticket-engine/internal/model"
)

func TestAvailabilityWithoutRedis(t *testing.T) {
	ctx := context.Background()
	calls := 0
	load := func(ctx context.Context, eventID uint64) (model.Availability, error) {
		calls++
		return model.Availability{EventID: eventID, Capacity: 100, Claimed: 40, Remaining: 60}, nil
	}
	c := New(nil, load, 0)

	for i := 0; i < 3; i++ {
		av, err := c.Availability(ctx, 7)
		if err != nil {
			t.Fatalf("availability: %v", err)
		}
		if av.Remaining != 60 {
			t.Fatalf("remaining = %d, want 60", av.Remaining)
		}
	}
	// No client means no caching; every read consults the loader.
	if calls != 3 {
		t.Fatalf("loader calls = %d, want 3", calls)
	}

	// Invalidation without a client is a no-op, not a panic.
	c.Invalidate(ctx, 7)
}

func TestAvailabilityLoaderError(t *testing.T) {
	boom := errors.New("db down")
	load := func(ctx context.Context, eventID uint64) (model.Availability, error) {
		return model.Availability{}, boom
	}
	c := New(nil, load, 0)

	if _, err := c.Availability(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
