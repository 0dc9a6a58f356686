package kernel

import "sync/atomic"

// object is the common kernel object core: identity plus a
// reference-counted lifetime with a single-shot destroy hook.
type object struct {
	id   uint32
	name string

	refs      atomic.Int32
	destroyed atomic.Bool
}

// ObjectID returns the kernel-wide object id.
func (o *object) ObjectID() uint32 { return o.id }

// Name returns the diagnostic name given at creation.
func (o *object) Name() string { return o.name }

func (o *object) retain() { o.refs.Add(1) }

// release drops one reference and reports whether the caller must run
// the destroy hook. The CAS keeps a buggy extra release from running
// the hook twice.
func (o *object) release() bool {
	if o.refs.Add(-1) > 0 {
		return false
	}
	return o.destroyed.CompareAndSwap(false, true)
}
