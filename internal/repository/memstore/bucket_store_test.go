package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
)

func TestBucketStore_CompareAndSwap(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()
	key := ratelimit.BucketKey{Subject: "user-1", Resource: "/api/feed"}
	now := time.Now()

	// Create-only save fails if the key already exists.
	first := ratelimit.State{Tokens: 5, LastRefill: now}
	if err := store.Save(ctx, key, nil, first); err != nil {
		t.Fatalf("initial save: %v", err)
	}
	if err := store.Save(ctx, key, nil, first); !errors.Is(err, ratelimit.ErrConflict) {
		t.Errorf("duplicate create err = %v, want ErrConflict", err)
	}

	// Conditional save fails when the expected previous state is stale.
	stale := ratelimit.State{Tokens: 3, LastRefill: now}
	if err := store.Save(ctx, key, &stale, first); !errors.Is(err, ratelimit.ErrConflict) {
		t.Errorf("stale save err = %v, want ErrConflict", err)
	}

	// And succeeds when it matches.
	next := ratelimit.State{Tokens: 4, LastRefill: now.Add(time.Second)}
	if err := store.Save(ctx, key, &first, next); err != nil {
		t.Fatalf("matching save: %v", err)
	}

	got, found, err := store.Load(ctx, key)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if got.Tokens != 4 || !got.LastRefill.Equal(next.LastRefill) {
		t.Errorf("loaded %+v, want %+v", got, next)
	}
}

func TestBucketStore_DeleteSubject(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()
	now := time.Now()
	state := ratelimit.State{Tokens: 1, LastRefill: now}

	store.Save(ctx, ratelimit.BucketKey{Subject: "user-1", Resource: "/a"}, nil, state)
	store.Save(ctx, ratelimit.BucketKey{Subject: "user-1", Resource: "/b"}, nil, state)
	store.Save(ctx, ratelimit.BucketKey{Subject: "user-2", Resource: "/a"}, nil, state)

	if err := store.DeleteSubject(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Load(ctx, ratelimit.BucketKey{Subject: "user-1", Resource: "/a"}); found {
		t.Error("user-1 /a should be gone")
	}
	if _, found, _ := store.Load(ctx, ratelimit.BucketKey{Subject: "user-2", Resource: "/a"}); !found {
		t.Error("user-2 must be untouched")
	}
}
