// Package ports allocates host ports for newly registered applications.
package ports

import "sync/atomic"

// Allocator hands out strictly increasing host ports starting at a
// configured base. callers invoke Next only from the registration path,
// which the gateway façade rate-limits but does not serialize, so the
// counter is atomic: concurrent callers never receive a duplicate port.
//
// there is no recycling on failed registration: ports leak when a build
// fails after a port was already allocated. this is acceptable because
// registrations are rare and bounded, matching the distilled spec's
// accepted tradeoff.
type Allocator struct {
	next atomic.Int64
}

// New constructs an Allocator that begins handing out ports at base.
func New(base int) *Allocator {
	allocator := &Allocator{}
	allocator.next.Store(int64(base))
	return allocator
}

// Next returns the next available port and advances the counter.
func (allocator *Allocator) Next() int {
	return int(allocator.next.Add(1) - 1)
}
