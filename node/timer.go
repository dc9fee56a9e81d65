package node

import (
	"container/heap"
	"time"

	"github.com/amikopay/amiko/lnwire"
)

// timerEntry is one pending entry in a Node's timer min-heap: an
// absolute fire time and the Timeout message to deliver once it
// passes.
type timerEntry struct {
	at  time.Time
	msg lnwire.Timeout
}

// timerHeap is a container/heap min-heap ordered by fire time, used by
// the event loop to find and fire only the timers that are due
// without scanning the whole pending set every iteration.
type timerHeap []timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// schedule adds a new pending timer.
func (n *Node) schedule(at time.Time, msg lnwire.Timeout) {
	heap.Push(&n.timers, timerEntry{at: at, msg: msg})
}

// nextFireDelay returns the duration until the earliest pending timer
// fires, and whether any timer is pending at all. The event loop uses
// this to size the timer case of its select statement each iteration.
func (n *Node) nextFireDelay() (time.Duration, bool) {
	if n.timers.Len() == 0 {
		return 0, false
	}
	delay := n.timers[0].at.Sub(n.clock.Now())
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// popDue removes and returns every timer whose fire time has passed,
// oldest first.
func (n *Node) popDue() []timerEntry {
	var due []timerEntry
	now := n.clock.Now()
	for n.timers.Len() > 0 && !n.timers[0].at.After(now) {
		due = append(due, heap.Pop(&n.timers).(timerEntry))
	}
	return due
}

// cancelTimers removes every pending timer addressed to target,
// called once a PayerLink or MeetingPoint it was guarding reaches a
// terminal state and no longer needs its grace-period watchdog.
func (n *Node) cancelTimers(target string) {
	var kept timerHeap
	for _, e := range n.timers {
		if e.msg.Target != target {
			kept = append(kept, e)
		}
	}
	heap.Init(&kept)
	n.timers = kept
}
