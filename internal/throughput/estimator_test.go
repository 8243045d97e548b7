package throughput_test

import (
	"sync"
	"testing"
	"time"

	"assetflow/internal/throughput"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newEstimator(t *testing.T) (*throughput.Estimator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return throughput.New(throughput.WithClock(clock.Now)), clock
}

func TestUpdateWithinWindowKeepsRate(t *testing.T) {
	est, clock := newEstimator(t)
	est.Start()

	clock.Advance(2 * time.Second)
	first := est.Update(2000)
	if first != 1000 {
		t.Fatalf("expected 1000 B/s, got %v", first)
	}

	clock.Advance(500 * time.Millisecond)
	if got := est.Update(900000); got != first {
		t.Fatalf("expected unchanged rate within window, got %v", got)
	}
}

func TestUpdateRequiresByteIncrease(t *testing.T) {
	est, clock := newEstimator(t)
	est.Start()
	clock.Advance(2 * time.Second)
	est.Update(4000)

	clock.Advance(5 * time.Second)
	if got := est.Update(4000); got != 2000 {
		t.Fatalf("expected previous rate when bytes unchanged, got %v", got)
	}
}

func TestExactWindowDoesNotRecompute(t *testing.T) {
	est, clock := newEstimator(t)
	est.Start()
	clock.Advance(time.Second)
	if got := est.Update(1 << 20); got != 0 {
		t.Fatalf("expected no rate at exactly one second, got %v", got)
	}
}

func TestStartResetsBaseline(t *testing.T) {
	est, clock := newEstimator(t)
	est.Start()
	clock.Advance(2 * time.Second)
	est.Update(10000)

	est.Start()
	if est.Rate() != 5000 {
		t.Fatalf("expected Start to keep the last rate, got %v", est.Rate())
	}
	clock.Advance(500 * time.Millisecond)
	if got := est.Update(300); got != 5000 {
		t.Fatalf("expected last rate inside the new window, got %v", got)
	}
	clock.Advance(3500 * time.Millisecond)
	if got := est.Update(400); got != 100 {
		t.Fatalf("expected 100 B/s from fresh baseline, got %v", got)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	est := throughput.New()
	est.Start()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 100 {
				est.Update(uint64(n*100 + j))
				_ = est.Rate()
			}
		}(i)
	}
	wg.Wait()
}
