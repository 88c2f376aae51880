package singleflight

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// waitForWaiters polls until n callers are attached to key.
func waitForWaiters[K comparable, V any](t *testing.T, g *Group[K, V], key K, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for g.Waiters(key) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d waiters, have %d", n, g.Waiters(key))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDo_CoalescesConcurrentCallers(t *testing.T) {
	var g Group[string, string]
	var calls atomic.Int64
	release := make(chan struct{})

	const n = 32
	var eg errgroup.Group
	var sharedCount atomic.Int64
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			v, shared, err := g.Do(context.Background(), "k", func() (string, error) {
				calls.Add(1)
				<-release
				return "v", nil
			})
			if err != nil {
				return err
			}
			if v != "v" {
				return errors.New("unexpected value " + v)
			}
			if shared {
				sharedCount.Add(1)
			}
			return nil
		})
	}
	waitForWaiters(t, &g, "k", n)
	close(release)

	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("fn must run exactly once, got %d", got)
	}
	if got := sharedCount.Load(); got != n-1 {
		t.Fatalf("want %d shared results, got %d", n-1, got)
	}
	if g.InFlight() != 0 {
		t.Fatal("flight must be removed after resolution")
	}
}

// Errors are delivered to every waiter and are not remembered.
func TestDo_ErrorIsSharedThenForgotten(t *testing.T) {
	var g Group[string, int]
	boom := errors.New("boom")
	release := make(chan struct{})

	var eg errgroup.Group
	for i := 0; i < 4; i++ {
		eg.Go(func() error {
			_, _, err := g.Do(context.Background(), "k", func() (int, error) {
				<-release
				return 0, boom
			})
			if !errors.Is(err, boom) {
				return errors.New("waiter did not observe the shared error")
			}
			return nil
		})
	}
	waitForWaiters(t, &g, "k", 4)
	close(release)
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	v, shared, err := g.Do(context.Background(), "k", func() (int, error) { return 7, nil })
	if err != nil || v != 7 || shared {
		t.Fatalf("retry after failure: v=%d shared=%v err=%v", v, shared, err)
	}
}

// Different keys never wait on each other.
func TestDo_DifferentKeysRunInParallel(t *testing.T) {
	var g Group[string, string]
	blockA := make(chan struct{})
	defer close(blockA)

	go func() {
		_, _, _ = g.Do(context.Background(), "a", func() (string, error) {
			<-blockA
			return "a", nil
		})
	}()
	waitForWaiters(t, &g, "a", 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, _, err := g.Do(ctx, "b", func() (string, error) { return "b", nil })
	if err != nil || v != "b" {
		t.Fatalf("key b blocked behind key a: v=%q err=%v", v, err)
	}
}

// A cancelled caller returns early; the flight still completes for others.
func TestDo_CancellationIsPerCaller(t *testing.T) {
	var g Group[string, string]
	release := make(chan struct{})
	var calls atomic.Int64
	fn := func() (string, error) {
		calls.Add(1)
		<-release
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := g.Do(ctx, "k", fn)
		leaderErr <- err
	}()
	waitForWaiters(t, &g, "k", 1)

	followerVal := make(chan string, 1)
	go func() {
		v, _, _ := g.Do(context.Background(), "k", fn)
		followerVal <- v
	}()
	waitForWaiters(t, &g, "k", 2)

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: want context.Canceled, got %v", err)
	}
	if n := g.Waiters("k"); n != 1 {
		t.Fatalf("cancelled caller must detach, Waiters = %d", n)
	}

	close(release)
	if v := <-followerVal; v != "done" {
		t.Fatalf("follower got %q", v)
	}
	if calls.Load() != 1 {
		t.Fatalf("fn must run once, got %d", calls.Load())
	}
}

func TestDo_PanicBecomesError(t *testing.T) {
	var g Group[string, int]

	_, _, err := g.Do(context.Background(), "k", func() (int, error) {
		panic("kaboom")
	})
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("want ErrPanic, got %v", err)
	}
	if g.InFlight() != 0 {
		t.Fatal("panicked flight must be removed")
	}
}

func TestForget_StartsNewFlight(t *testing.T) {
	var g Group[string, int]
	release := make(chan struct{})

	first := make(chan int, 1)
	go func() {
		v, _, _ := g.Do(context.Background(), "k", func() (int, error) {
			<-release
			return 1, nil
		})
		first <- v
	}()
	waitForWaiters(t, &g, "k", 1)

	g.Forget("k")
	v, shared, err := g.Do(context.Background(), "k", func() (int, error) { return 2, nil })
	if err != nil || v != 2 || shared {
		t.Fatalf("after Forget: v=%d shared=%v err=%v", v, shared, err)
	}

	close(release)
	if got := <-first; got != 1 {
		t.Fatalf("original waiter must keep its flight, got %d", got)
	}
}
