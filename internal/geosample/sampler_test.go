package geosample

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedProvider returns canned fixes or errors in order, then repeats the
// last entry.
type scriptedProvider struct {
	mu      sync.Mutex
	fixes   []Fix
	errs    []error
	calls   int
	configs []Config
}

func (p *scriptedProvider) Acquire(_ context.Context, cfg Config) (Fix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.fixes) {
		i = len(p.fixes) - 1
	}
	p.calls++
	p.configs = append(p.configs, cfg)
	if p.errs[i] != nil {
		return Fix{}, p.errs[i]
	}
	return p.fixes[i], nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func fixWithAccuracy(acc float64) Fix {
	return Fix{Latitude: 25.0173, Longitude: 121.5397, Accuracy: acc, CapturedAt: time.Now()}
}

func TestRefineAcceptsGoodFirstFix(t *testing.T) {
	p := &scriptedProvider{
		fixes: []Fix{fixWithAccuracy(8)},
		errs:  []error{nil},
	}
	got, err := New(p).Refine(context.Background())
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if got.Accuracy != 8 {
		t.Errorf("accuracy = %v, want 8", got.Accuracy)
	}
	if p.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", p.callCount())
	}
}

func TestRefineThresholdBoundary(t *testing.T) {
	// Exactly at the threshold is good enough; no retry.
	p := &scriptedProvider{
		fixes: []Fix{fixWithAccuracy(20)},
		errs:  []error{nil},
	}
	got, err := New(p).Refine(context.Background())
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if got.Accuracy != 20 || p.callCount() != 1 {
		t.Errorf("accuracy = %v calls = %d, want 20 and 1", got.Accuracy, p.callCount())
	}
}

func TestRefineKeepsBetterSecondFix(t *testing.T) {
	p := &scriptedProvider{
		fixes: []Fix{fixWithAccuracy(30), fixWithAccuracy(12)},
		errs:  []error{nil, nil},
	}
	got, err := New(p).Refine(context.Background())
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if got.Accuracy != 12 {
		t.Errorf("accuracy = %v, want 12", got.Accuracy)
	}
	if p.callCount() != 2 {
		t.Errorf("provider calls = %d, want 2", p.callCount())
	}
	// The retry must forbid cached fixes and allow the longer budget.
	retry := p.configs[1]
	if retry.MaxCacheAge != 0 {
		t.Errorf("retry MaxCacheAge = %v, want 0", retry.MaxCacheAge)
	}
	if retry.Timeout != RetryTimeout {
		t.Errorf("retry Timeout = %v, want %v", retry.Timeout, RetryTimeout)
	}
}

func TestRefineKeepsFirstWhenSecondIsWorse(t *testing.T) {
	p := &scriptedProvider{
		fixes: []Fix{fixWithAccuracy(25), fixWithAccuracy(40)},
		errs:  []error{nil, nil},
	}
	got, err := New(p).Refine(context.Background())
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if got.Accuracy != 25 {
		t.Errorf("accuracy = %v, want the first fix's 25", got.Accuracy)
	}
}

func TestRefineFallsBackWhenRetryFails(t *testing.T) {
	p := &scriptedProvider{
		fixes: []Fix{fixWithAccuracy(35), {}},
		errs:  []error{nil, context.DeadlineExceeded},
	}
	got, err := New(p).Refine(context.Background())
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if got.Accuracy != 35 {
		t.Errorf("accuracy = %v, want the first fix's 35", got.Accuracy)
	}
}

func TestRefinePropagatesFirstFailure(t *testing.T) {
	p := &scriptedProvider{
		fixes: []Fix{{}},
		errs:  []error{ErrPermissionDenied},
	}
	if _, err := New(p).Refine(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Refine() error = %v, want ErrPermissionDenied", err)
	}
}

func TestAcquireMapsDeadlineToTimeout(t *testing.T) {
	p := &scriptedProvider{
		fixes: []Fix{{}},
		errs:  []error{context.DeadlineExceeded},
	}
	_, err := New(p).Acquire(context.Background(), Config{Timeout: time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire() error = %v, want ErrTimeout", err)
	}
}

func TestWatchRetainsBestFixAndAutoStops(t *testing.T) {
	p := &scriptedProvider{
		fixes: []Fix{fixWithAccuracy(18), fixWithAccuracy(30), fixWithAccuracy(4)},
		errs:  []error{nil, nil, nil},
	}
	var updates []Fix
	w := New(p).Watch(context.Background(), func(f Fix) {
		updates = append(updates, f)
	})

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after reaching the target accuracy")
	}

	best, ok := w.Best()
	if !ok || best.Accuracy != 4 {
		t.Fatalf("Best() = %v, %v; want accuracy 4", best, ok)
	}
	// The worse 30m fix must not have replaced the 18m one.
	if len(updates) != 2 || updates[0].Accuracy != 18 || updates[1].Accuracy != 4 {
		t.Errorf("updates = %v, want improvements 18 then 4", updates)
	}
}

func TestWatchStopReleasesSubscription(t *testing.T) {
	block := make(chan struct{})
	p := ProviderFunc(func(ctx context.Context, _ Config) (Fix, error) {
		select {
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		case <-block:
			return fixWithAccuracy(50), nil
		}
	})
	w := New(p).Watch(context.Background(), nil)
	w.Stop()

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not release after Stop()")
	}
	close(block)

	if _, ok := w.Best(); ok {
		t.Error("Best() reported a fix after a stopped empty watch")
	}
}

func TestWatchStopsOnPermissionDenied(t *testing.T) {
	p := &scriptedProvider{
		fixes: []Fix{{}},
		errs:  []error{ErrPermissionDenied},
	}
	w := New(p).Watch(context.Background(), nil)

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on permission denial")
	}
	if !errors.Is(w.Err(), ErrPermissionDenied) {
		t.Errorf("Err() = %v, want ErrPermissionDenied", w.Err())
	}
}

func TestWatchContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := ProviderFunc(func(ctx context.Context, _ Config) (Fix, error) {
		<-ctx.Done()
		return Fix{}, ctx.Err()
	})
	w := New(p).Watch(ctx, nil)
	cancel()

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on context cancellation")
	}
}
