package scheduler

import "sync/atomic"

// RuntimeCapabilities holds what the host currently allows. Either flag can
// be flipped at runtime, e.g. when the user revokes exact-alarm access.
type RuntimeCapabilities struct {
	exact          atomic.Bool
	allowWhileIdle atomic.Bool
}

func NewRuntimeCapabilities(exactGranted, allowWhileIdle bool) *RuntimeCapabilities {
	c := &RuntimeCapabilities{}
	c.exact.Store(exactGranted)
	c.allowWhileIdle.Store(allowWhileIdle)
	return c
}

func (c *RuntimeCapabilities) CanScheduleExactAlarms() bool { return c.exact.Load() }
func (c *RuntimeCapabilities) SupportsAllowWhileIdle() bool { return c.allowWhileIdle.Load() }

func (c *RuntimeCapabilities) SetExactAlarms(granted bool)     { c.exact.Store(granted) }
func (c *RuntimeCapabilities) SetAllowWhileIdle(supported bool) { c.allowWhileIdle.Store(supported) }
