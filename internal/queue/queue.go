// Package queue provides a value-based priority queue for scored node ids.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents an item in the priority queue.
type PriorityQueueItem struct {
	Node     uint32  // Node id.
	Distance float32 // Distance is the priority of the item in the queue.
}

// PriorityQueue implements heap.Interface and holds PriorityQueueItems.
// Value-based storage keeps scans allocation-free.
type PriorityQueue struct {
	isMaxHeap bool
	items     []PriorityQueueItem
}

// NewMin initializes a new priority queue with minimum priority on top.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: false,
		items:     make([]PriorityQueueItem, 0, capacity),
	}
}

// NewMax initializes a new priority queue with maximum priority on top.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: true,
		items:     make([]PriorityQueueItem, 0, capacity),
	}
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item PriorityQueueItem) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PopItem removes and returns the top element while maintaining the heap
// invariant.
func (pq *PriorityQueue) PopItem() (PriorityQueueItem, bool) {
	n := len(pq.items)
	if n == 0 {
		return PriorityQueueItem{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items[n-1] = PriorityQueueItem{}
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// TopItem returns the top element of the heap without removing it.
func (pq *PriorityQueue) TopItem() (PriorityQueueItem, bool) {
	if len(pq.items) == 0 {
		return PriorityQueueItem{}, false
	}
	return pq.items[0], true
}

// PushBounded inserts item into a max-heap used as a bounded best-k
// collector: once the heap holds bound items, the new item replaces the
// current worst only when it scores better.
func (pq *PriorityQueue) PushBounded(item PriorityQueueItem, bound int) {
	if len(pq.items) < bound {
		pq.PushItem(item)
		return
	}
	if item.Distance < pq.items[0].Distance {
		pq.items[0] = item
		pq.siftDown(0)
	}
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.items[i].Distance > pq.items[j].Distance
	}
	return pq.items[i].Distance < pq.items[j].Distance
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Less reports whether element i should sort before element j.
func (pq *PriorityQueue) Less(i, j int) bool { return pq.less(i, j) }

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

// Push adds x to the priority queue (heap.Interface).
func (pq *PriorityQueue) Push(x any) {
	pq.items = append(pq.items, x.(PriorityQueueItem))
}

// Pop removes and returns the last element (heap.Interface).
func (pq *PriorityQueue) Pop() any {
	n := len(pq.items)
	if n == 0 {
		return PriorityQueueItem{}
	}
	item := pq.items[n-1]
	pq.items[n-1] = PriorityQueueItem{}
	pq.items = pq.items[:n-1]
	return item
}

// Reset clears the priority queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}
