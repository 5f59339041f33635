package batch

import (
	"container/heap"
	"sync"
	"time"
)

// queue is the pending-request priority queue: priority descending, then
// submission time, then arrival sequence so equal submissions stay FIFO.
type queue struct {
	mu    sync.Mutex
	items pqueue
	seq   uint64
}

type item struct {
	id       string
	priority int
	at       time.Time
	seq      uint64
}

// push enqueues under the cap; false means the queue is full.
func (q *queue) push(id string, priority int, at time.Time, limit int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit > 0 && q.items.Len() >= limit {
		return false
	}
	q.seq++
	heap.Push(&q.items, &item{id: id, priority: priority, at: at, seq: q.seq})
	return true
}

// popN removes up to n entries in dispatch order, dropping any the skip
// predicate rejects. Skipped entries are discarded, not returned.
func (q *queue) popN(n int, skip func(id string) bool) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for len(ids) < n && q.items.Len() > 0 {
		it := heap.Pop(&q.items).(*item)
		if skip != nil && skip(it.id) {
			continue
		}
		ids = append(ids, it.id)
	}
	return ids
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// snapshot returns the depth and the age of the oldest pending entry.
func (q *queue) snapshot(now time.Time) (depth int, oldest time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	depth = q.items.Len()
	for _, it := range q.items {
		if age := now.Sub(it.at); age > oldest {
			oldest = age
		}
	}
	return depth, oldest
}

type pqueue []*item

func (p pqueue) Len() int { return len(p) }

func (p pqueue) Less(i, j int) bool {
	if p[i].priority != p[j].priority {
		return p[i].priority > p[j].priority
	}
	if !p[i].at.Equal(p[j].at) {
		return p[i].at.Before(p[j].at)
	}
	return p[i].seq < p[j].seq
}

func (p pqueue) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

func (p *pqueue) Push(x any) { *p = append(*p, x.(*item)) }

func (p *pqueue) Pop() any {
	old := *p
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*p = old[:n-1]
	return it
}
