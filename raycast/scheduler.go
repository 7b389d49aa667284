// Package raycast resolves ground heights in the background.
//
// Points are queued by Enqueue and resolved one at a time by a single drain
// worker which casts a ray straight down from above each point and stores the
// hit height, or heightcache.Unknown when nothing was hit. A worker is started
// on demand and exits once the queue is empty.
package raycast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/dagaz/heightcache"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	ErrTypeCastPanic = "raycast_panic"

	// DefaultCastHeight is how far above a point rays start.
	DefaultCastHeight = 8

	// DefaultMaxDistance is the length of cast rays.
	DefaultMaxDistance = 100
)

// Down is the direction rays are cast to.
var Down = mgl64.Vec3{0, -1, 0}

// Caster finds the first solid surface along a ray.
type Caster interface {
	// Cast returns the first intersection from origin along direction within
	// maxDistance, and false when there is none.
	Cast(origin, direction mgl64.Vec3, maxDistance float64) (mgl64.Vec3, bool)
}

// CasterFunc adapts a function to the Caster interface.
type CasterFunc func(origin, direction mgl64.Vec3, maxDistance float64) (mgl64.Vec3, bool)

func (f CasterFunc) Cast(origin, direction mgl64.Vec3, maxDistance float64) (mgl64.Vec3, bool) {
	return f(origin, direction, maxDistance)
}

// Store receives resolved heights.
type Store interface {
	Put(key heightcache.Key, height float64)
}

// Option configures a scheduler.
type Option func(*Scheduler)

// WithCastHeight sets how far above a point rays start.
func WithCastHeight(h float64) Option {
	return func(s *Scheduler) {
		s.castHeight = h
	}
}

// WithMaxDistance sets the length of cast rays.
func WithMaxDistance(d float64) Option {
	return func(s *Scheduler) {
		s.maxDistance = d
	}
}

// Scheduler queues points and resolves them with at most one worker running
// at a time.
type Scheduler struct {
	caster      Caster
	store       Store
	castHeight  float64
	maxDistance float64

	running atomic.Bool

	mutex   sync.Mutex
	pending []mgl64.Vec3
	idle    chan struct{}
	closed  bool
	workers sync.WaitGroup
}

func NewScheduler(caster Caster, store Store, options ...Option) *Scheduler {
	s := &Scheduler{
		caster:      caster,
		store:       store,
		castHeight:  DefaultCastHeight,
		maxDistance: DefaultMaxDistance,
	}

	for _, o := range options {
		o(s)
	}
	return s
}

// Enqueue queues a point for resolution and starts a worker when none is
// running. It never blocks on resolution. Points enqueued after Close are
// dropped.
func (s *Scheduler) Enqueue(point mgl64.Vec3) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}

	s.pending = append(s.pending, point)
	instrumentPending(len(s.pending))

	start := s.running.CompareAndSwap(false, true)
	if start {
		s.idle = make(chan struct{})
		s.workers.Add(1)
	}
	s.mutex.Unlock()

	instrumentEnqueue()
	if start {
		go s.drain()
	}
}

// Pending returns the number of queued points.
func (s *Scheduler) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.pending)
}

// Running reports whether a worker is draining the queue.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Wait blocks until the queue is drained and no worker is running, or until
// ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mutex.Lock()
		if !s.running.Load() {
			s.mutex.Unlock()
			return nil
		}
		idle := s.idle
		s.mutex.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

// Close stops accepting points and waits for the running worker to drain the
// queue, or until ctx is done.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return errors.New("waiting for raycast worker failed").
			WithTag("pending", s.Pending()).
			Wrap(ctx.Err())
	case <-done:
		return nil
	}
}

func (s *Scheduler) drain() {
	defer s.workers.Done()

	for {
		point, ok := s.dequeue()
		if !ok {
			return
		}
		s.resolve(point)
	}
}

// dequeue pops the oldest point. When the queue is empty, the worker is marked
// as stopped under the same lock Enqueue uses to start one, so no point is
// left behind.
func (s *Scheduler) dequeue() (mgl64.Vec3, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.pending) == 0 {
		s.pending = nil
		s.running.Store(false)
		close(s.idle)
		return mgl64.Vec3{}, false
	}

	point := s.pending[0]
	s.pending = s.pending[1:]
	instrumentPending(len(s.pending))
	return point, true
}

func (s *Scheduler) resolve(point mgl64.Vec3) {
	start := time.Now()
	origin := point.Add(mgl64.Vec3{0, s.castHeight, 0})

	height := heightcache.Unknown
	hit, ok, err := s.cast(origin)
	switch {
	case err != nil:
		logs.WithTag("origin", origin).
			WithTag("max_distance", s.maxDistance).
			Warn(err)
		instrumentCast(resultPanic, start)

	case ok:
		height = hit.Y()
		instrumentCast(resultHit, start)

	default:
		instrumentCast(resultMiss, start)
	}

	s.store.Put(heightcache.KeyOf(point), height)
}

func (s *Scheduler) cast(origin mgl64.Vec3) (hit mgl64.Vec3, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("raycast panicked: %v", r).WithType(ErrTypeCastPanic)
		}
	}()

	hit, ok = s.caster.Cast(origin, Down, s.maxDistance)
	return hit, ok, nil
}
