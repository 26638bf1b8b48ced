package scheduler

import (
	"container/heap"

	"peakflow_reminder/internal/domain/wakeup"
)

// registrationHeap implements container/heap.Interface for wake-up
// registrations, sorted by At (earliest first).
type registrationHeap []wakeup.Registration

func (h registrationHeap) Len() int           { return len(h) }
func (h registrationHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h registrationHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *registrationHeap) Push(x any) {
	*h = append(*h, x.(wakeup.Registration))
}

func (h *registrationHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *registrationHeap, r wakeup.Registration) {
	heap.Push(h, r)
}

// heapPop panics on an empty heap.
func heapPop(h *registrationHeap) wakeup.Registration {
	return heap.Pop(h).(wakeup.Registration)
}

// heapRemoveBySlot removes every registration of slot and reports whether
// anything was removed.
func heapRemoveBySlot(h *registrationHeap, slot string) bool {
	removed := false
	for {
		i := heapIndexOf(*h, slot)
		if i < 0 {
			return removed
		}
		heap.Remove(h, i)
		removed = true
	}
}

func heapIndexOf(h registrationHeap, slot string) int {
	for i, r := range h {
		if r.Slot == slot {
			return i
		}
	}
	return -1
}
