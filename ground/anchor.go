package ground

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// AnchorProvider supplies the reference position entries are evicted
// relative to.
type AnchorProvider interface {
	// Anchor returns the current anchor, and false when none is known.
	Anchor() (mgl64.Vec3, bool)
}

// AtomicAnchor is an AnchorProvider that can be updated concurrently.
type AtomicAnchor struct {
	position atomic.Pointer[mgl64.Vec3]
}

func (a *AtomicAnchor) Set(p mgl64.Vec3) {
	a.position.Store(&p)
}

func (a *AtomicAnchor) Clear() {
	a.position.Store(nil)
}

func (a *AtomicAnchor) Anchor() (mgl64.Vec3, bool) {
	p := a.position.Load()
	if p == nil {
		return mgl64.Vec3{}, false
	}
	return *p, true
}
