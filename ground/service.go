// Package ground answers approximate ground height queries.
//
// A Service reads heights from a heightcache.Cache and feeds it by queuing
// queried points to a raycast.Scheduler. Queries never wait for a raycast: a
// point that is not resolved yet is reported as such and is expected to be
// queried again later.
//
// Maintenance runs on ticks. Each pass evicts the cache entries farthest from
// the anchor and updates the gate that lets queries queue new points. The gate
// is open when the scheduler queue was empty at the last pass.
package ground

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/dagaz/featureflag"
	"github.com/aukilabs/dagaz/heightcache"
	"github.com/aukilabs/dagaz/raycast"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

// Option configures a service.
type Option func(*Service)

// WithPrefetch makes maintenance passes queue a square lattice of points
// around the anchor, spaced by step and reaching radius on both horizontal
// axes, after two consecutive passes found the scheduler idle. A radius or
// step lower or equal to zero disables the prefetch.
func WithPrefetch(radius, step float64) Option {
	return func(s *Service) {
		s.prefetchRadius = radius
		s.prefetchStep = step
	}
}

// WithFeatureFlags sets the feature flags that toggle optional behaviors.
func WithFeatureFlags(f featureflag.FeatureFlag) Option {
	return func(s *Service) {
		s.featureFlags = f
	}
}

// Stats describes the state of a service.
type Stats struct {
	Entries  int         `json:"entries"`
	Capacity int         `json:"capacity"`
	Pending  int         `json:"pending"`
	Running  bool        `json:"running"`
	CanAdd   bool        `json:"can_add"`
	Anchor   *mgl64.Vec3 `json:"anchor,omitempty"`
}

// Service answers ground height queries from a cache fed in the background
// by a raycast scheduler.
type Service struct {
	cache          *heightcache.Cache
	scheduler      *raycast.Scheduler
	anchor         AnchorProvider
	featureFlags   featureflag.FeatureFlag
	prefetchRadius float64
	prefetchStep   float64

	canAdd      atomic.Bool
	lastCanAdd  atomic.Bool
	maintaining atomic.Bool
	passes      sync.WaitGroup

	mutex      sync.Mutex
	stopTicker func()
	tickerDone chan struct{}
}

// New creates a service. A nil anchor provider disables eviction.
func New(cache *heightcache.Cache, scheduler *raycast.Scheduler, anchor AnchorProvider, options ...Option) *Service {
	s := &Service{
		cache:     cache,
		scheduler: scheduler,
		anchor:    anchor,
	}

	for _, o := range options {
		o(s)
	}
	return s
}

// Query returns point with its vertical component replaced by the cached
// ground height, clamped to maxVerticalDelta around the point height. It
// reports false when no height is known yet for the point, in which case the
// returned point must not be used.
//
// When the gate is open, the point is queued for a raycast whether it was
// found or not, so that the cache follows the points being queried.
func (s *Service) Query(point mgl64.Vec3, maxVerticalDelta float64) (mgl64.Vec3, bool) {
	height, found := s.cache.Get(heightcache.KeyOf(point))

	if s.canAdd.Load() && !s.featureFlags.IsSet(featureflag.FlagDisableQueryEnqueue) {
		s.scheduler.Enqueue(point)
	}

	if !found || math.IsNaN(height) {
		instrumentQuery(resultUnresolved)
		return point, false
	}

	clamped := math.Max(height, point.Y()-maxVerticalDelta)
	clamped = math.Min(clamped, point.Y()+maxVerticalDelta)
	if clamped != height {
		instrumentQuery(resultClamped)
	} else {
		instrumentQuery(resultResolved)
	}

	point[1] = clamped
	return point, true
}

// Tick launches a maintenance pass in the background. It does nothing when a
// pass is already running.
func (s *Service) Tick() {
	if !s.maintaining.CompareAndSwap(false, true) {
		instrumentSkippedTick()
		return
	}

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer s.maintaining.Store(false)

		s.maintain()
	}()
}

func (s *Service) maintain() {
	if s.anchor != nil && !s.featureFlags.IsSet(featureflag.FlagDisableEviction) {
		if anchor, ok := s.anchor.Anchor(); ok {
			if n := s.cache.EvictToCapacity(heightcache.KeyOf(anchor)); n > 0 {
				logs.WithTag("evicted", n).
					WithTag("anchor", anchor).
					Debug("height cache entries evicted")
			}
		}
	}

	canAdd := s.scheduler.Pending() == 0
	addPoints := canAdd && s.lastCanAdd.Load()
	s.lastCanAdd.Store(canAdd)
	s.canAdd.Store(canAdd)

	prefetched := 0
	if addPoints && !s.featureFlags.IsSet(featureflag.FlagDisablePrefetch) {
		prefetched = s.prefetch()
	}

	instrumentMaintenance(canAdd, prefetched)
}

// prefetch queues the lattice points around the anchor which are not cached
// yet and returns their count.
func (s *Service) prefetch() int {
	if s.anchor == nil || s.prefetchRadius <= 0 || s.prefetchStep <= 0 {
		return 0
	}

	anchor, ok := s.anchor.Anchor()
	if !ok {
		return 0
	}

	n := int(s.prefetchRadius / s.prefetchStep)
	count := 0
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			p := mgl64.Vec3{
				anchor.X() + float64(i)*s.prefetchStep,
				anchor.Y(),
				anchor.Z() + float64(j)*s.prefetchStep,
			}

			if _, cached := s.cache.Search(heightcache.KeyOf(p)); cached {
				continue
			}

			s.scheduler.Enqueue(p)
			count++
		}
	}
	return count
}

// CanAdd reports whether queries currently queue points for a raycast.
func (s *Service) CanAdd() bool {
	return s.canAdd.Load()
}

// Start calls Tick at the given interval until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopTicker != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.stopTicker = cancel
	s.tickerDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop stops the ticker, waits for the running maintenance pass and closes
// the scheduler. It returns an error when ctx is done before.
func (s *Service) Stop(ctx context.Context) error {
	s.mutex.Lock()
	stopTicker, tickerDone := s.stopTicker, s.tickerDone
	s.stopTicker, s.tickerDone = nil, nil
	s.mutex.Unlock()

	if stopTicker != nil {
		stopTicker()
		select {
		case <-tickerDone:
		case <-ctx.Done():
			return errors.New("stopping ground ticker failed").Wrap(ctx.Err())
		}
	}

	if err := s.waitMaintenance(ctx); err != nil {
		return err
	}

	if err := s.scheduler.Close(ctx); err != nil {
		return errors.New("closing raycast scheduler failed").Wrap(err)
	}
	return nil
}

func (s *Service) waitMaintenance(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.passes.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return errors.New("waiting for maintenance pass failed").Wrap(ctx.Err())
	case <-done:
		return nil
	}
}

func (s *Service) Stats() Stats {
	stats := Stats{
		Entries:  s.cache.Len(),
		Capacity: s.cache.Capacity(),
		Pending:  s.scheduler.Pending(),
		Running:  s.scheduler.Running(),
		CanAdd:   s.canAdd.Load(),
	}

	if s.anchor != nil {
		if anchor, ok := s.anchor.Anchor(); ok {
			stats.Anchor = &anchor
		}
	}
	return stats
}
