// Package geosample obtains the most reliable available position fix from a
// device location provider within a responsiveness budget. It is advisory
// only: the server accepts any fix, however inaccurate.
package geosample

import (
	"context"
	"errors"
	"time"
)

// Device sensor failures. They surface to the caller with actionable
// guidance; the sampler never hangs past its timeout budget.
var (
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrTimeout             = errors.New("location request timed out")
)

// Accuracy and timeout budgets for the refinement and watch policies.
const (
	RefineThreshold    = 20.0 // meters; a worse first fix triggers a retry
	WatchTarget        = 5.0  // meters; the watch auto-stops at this accuracy
	DefaultTimeout     = 10 * time.Second
	RetryTimeout       = 45 * time.Second
	WatchUpdateTimeout = 15 * time.Second
)

// Config controls a single position request.
type Config struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxCacheAge  time.Duration
}

// Fix is one position sample. Accuracy is the radius of uncertainty in
// meters; smaller is better.
type Fix struct {
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	CapturedAt time.Time
}

// Provider is the underlying device sensor. Implementations must honor the
// context deadline.
type Provider interface {
	Acquire(ctx context.Context, cfg Config) (Fix, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, cfg Config) (Fix, error)

// Acquire calls f.
func (f ProviderFunc) Acquire(ctx context.Context, cfg Config) (Fix, error) {
	return f(ctx, cfg)
}

// Sampler wraps a provider with the refinement and watch policies.
type Sampler struct {
	provider Provider
}

// New creates a sampler over a device provider.
func New(provider Provider) *Sampler {
	return &Sampler{provider: provider}
}

// Acquire requests a single fix, enforcing the timeout budget. Expiry
// surfaces as ErrTimeout, never a hang.
func (s *Sampler) Acquire(ctx context.Context, cfg Config) (Fix, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	fix, err := s.provider.Acquire(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Fix{}, ErrTimeout
		}
		return Fix{}, err
	}
	return fix, nil
}

// Refine takes a first fix and, when its accuracy exceeds the 20-meter
// threshold, retries once with a longer timeout and no cache, keeping
// whichever fix has the smaller uncertainty radius. A failed second attempt
// falls back to the first fix.
func (s *Sampler) Refine(ctx context.Context) (Fix, error) {
	first, err := s.Acquire(ctx, Config{HighAccuracy: true, Timeout: DefaultTimeout})
	if err != nil {
		return Fix{}, err
	}
	if first.Accuracy <= RefineThreshold {
		return first, nil
	}

	second, err := s.Acquire(ctx, Config{HighAccuracy: true, Timeout: RetryTimeout, MaxCacheAge: 0})
	if err != nil {
		return first, nil
	}
	if second.Accuracy < first.Accuracy {
		return second, nil
	}
	return first, nil
}
