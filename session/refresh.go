package session

import (
	"container/heap"
	"math/rand"
	"time"
)

// refreshItem is one port's periodic refresh schedule entry.
type refreshItem struct {
	id     string
	due    int64 // UnixNano
	every  time.Duration
	jitter time.Duration
	index  int
}

type refreshHeap []*refreshItem

func (h refreshHeap) Len() int            { return len(h) }
func (h refreshHeap) Less(i, j int) bool  { return h[i].due < h[j].due }
func (h refreshHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *refreshHeap) Push(x any)         { it := x.(*refreshItem); it.index = len(*h); *h = append(*h, it) }
func (h *refreshHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	it.index = -1
	*h = old[:n-1]
	return it
}
func (h refreshHeap) Top() *refreshItem {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// scheduler drives RefreshPeriodic ports (spec.md §4.5, §4.9). Grounded on
// the teacher's core/poller.go Poller, with its own goroutine, wake channel
// and mutex dropped: the session loop is already single-threaded, so upsert/
// remove/nextWait/popDue are all called from that one goroutine directly.
type scheduler struct {
	items map[string]*refreshItem
	h     refreshHeap
	rnd   *rand.Rand
}

func newScheduler() *scheduler {
	return &scheduler{
		items: make(map[string]*refreshItem),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// upsert schedules id to come due every `every`, with up to `jitter` of
// randomness added on each arming (same "first fire after interval+jitter"
// rule as the teacher's Poller.Upsert). every<=0 removes the schedule.
func (s *scheduler) upsert(id string, every, jitter time.Duration) {
	if every <= 0 {
		s.remove(id)
		return
	}
	if jitter < 0 {
		jitter = 0
	}
	due := time.Now().Add(s.jittered(every, jitter)).UnixNano()
	if it := s.items[id]; it == nil {
		it2 := &refreshItem{id: id, due: due, every: every, jitter: jitter, index: -1}
		s.items[id] = it2
		heap.Push(&s.h, it2)
	} else {
		it.every = every
		it.jitter = jitter
		it.due = due
		heap.Fix(&s.h, it.index)
	}
}

func (s *scheduler) remove(id string) {
	if it, ok := s.items[id]; ok {
		heap.Remove(&s.h, it.index)
		delete(s.items, id)
	}
}

// nextWait returns the duration until the next due item, or -1 if the
// schedule is empty.
func (s *scheduler) nextWait() time.Duration {
	top := s.h.Top()
	if top == nil {
		return -1
	}
	now := time.Now().UnixNano()
	if top.due <= now {
		return 0
	}
	return time.Duration(top.due - now)
}

// popDue pops and re-arms every item currently due, returning their ids.
func (s *scheduler) popDue() []string {
	var due []string
	now := time.Now().UnixNano()
	for {
		top := s.h.Top()
		if top == nil || top.due > now {
			break
		}
		it := heap.Pop(&s.h).(*refreshItem)
		due = append(due, it.id)
		it.due = time.Now().Add(s.jittered(it.every, it.jitter)).UnixNano()
		heap.Push(&s.h, it)
	}
	return due
}

func (s *scheduler) jittered(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	extra := time.Duration(s.rnd.Int63n(int64(jitter) + 1)) // [0..jitter]
	return interval + extra
}
