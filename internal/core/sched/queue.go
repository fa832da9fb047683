// Package sched carries work onto the tick-loop goroutine.
//
// Worker goroutines hand results back with Post; the tick loop drains them
// once per tick via Tick. After schedules a callback a number of ticks in the
// future and returns a handle that can cancel it before it fires.
package sched

import (
	"container/heap"
	"sync"

	"go.uber.org/zap"
)

// TaskID identifies a delayed callback. The zero value is never issued.
type TaskID uint64

type delayed struct {
	id    TaskID
	due   uint64
	fn    func()
	index int
}

type delayHeap []*delayed

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].id < h[j].id
}
func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *delayHeap) Push(x any) {
	d := x.(*delayed)
	d.index = len(*h)
	*h = append(*h, d)
}
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	d.index = -1
	*h = old[:n-1]
	return d
}

// Queue is safe for Post from any goroutine. Tick, After, Cancel and Pending
// belong to the tick loop.
type Queue struct {
	log *zap.Logger

	mu    sync.Mutex
	inbox []func()

	now    uint64
	nextID TaskID
	timers delayHeap
	byID   map[TaskID]*delayed
}

func NewQueue(log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		log:  log,
		byID: make(map[TaskID]*delayed),
	}
}

// Post enqueues fn to run on the next Tick.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.inbox = append(q.inbox, fn)
	q.mu.Unlock()
}

// After schedules fn to run once `ticks` ticks have elapsed. ticks < 1 runs
// it on the next Tick.
func (q *Queue) After(ticks int, fn func()) TaskID {
	if ticks < 1 {
		ticks = 1
	}
	q.nextID++
	d := &delayed{id: q.nextID, due: q.now + uint64(ticks), fn: fn}
	heap.Push(&q.timers, d)
	q.byID[d.id] = d
	return d.id
}

// Cancel removes a delayed callback. Returns false when it already ran or
// was cancelled.
func (q *Queue) Cancel(id TaskID) bool {
	d, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.timers, d.index)
	delete(q.byID, id)
	return true
}

// Pending reports whether a delayed callback is still waiting to fire.
func (q *Queue) Pending(id TaskID) bool {
	_, ok := q.byID[id]
	return ok
}

// Delayed returns the number of scheduled callbacks.
func (q *Queue) Delayed() int { return len(q.byID) }

// Now returns the number of ticks processed.
func (q *Queue) Now() uint64 { return q.now }

// Tick advances the clock by one tick, runs every posted callback in post
// order, then every delayed callback that became due. Work posted while
// draining waits for the next Tick. A panicking callback is logged and does
// not stop the others.
func (q *Queue) Tick() int {
	q.now++

	q.mu.Lock()
	batch := q.inbox
	q.inbox = nil
	q.mu.Unlock()

	ran := 0
	for _, fn := range batch {
		q.run(fn)
		ran++
	}
	for q.timers.Len() > 0 && q.timers[0].due <= q.now {
		d := heap.Pop(&q.timers).(*delayed)
		delete(q.byID, d.id)
		q.run(d.fn)
		ran++
	}
	return ran
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("排程任務 panic", zap.Any("panic", r))
		}
	}()
	fn()
}
