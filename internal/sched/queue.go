package sched

import "math/bits"

// priorityQueue is the PriorityTaskQueue entity of spec.md §3 and §4.4: 31
// intrusive doubly-linked lists indexed by priority, with a bitmap whose bit
// i is set iff list i is non-empty. Pop is O(1) via bit_scan_reverse.
type priorityQueue struct {
	heads, tails [MaxPriority + 1]*Task
	bitmap       uint32
}

// push appends task to the tail of its priority's list.
func (q *priorityQueue) push(t *Task) {
	t.prev, t.next = nil, nil
	p := t.Priority
	if q.tails[p] == nil {
		q.heads[p] = t
		q.tails[p] = t
	} else {
		t.prev = q.tails[p]
		q.tails[p].next = t
		q.tails[p] = t
	}
	q.bitmap |= 1 << p
}

// highestNonEmpty returns the highest priority with a non-empty list, or -1.
func (q *priorityQueue) highestNonEmpty() int {
	if q.bitmap == 0 {
		return -1
	}
	return bits.Len32(q.bitmap) - 1 // bit_scan_reverse
}

// pop removes and returns the head of the highest non-empty priority list,
// or nil if every list is empty.
func (q *priorityQueue) pop() *Task {
	p := q.highestNonEmpty()
	if p < 0 {
		return nil
	}
	return q.popPriority(Priority(p))
}

// popWithPrio pops from the highest non-empty list only if that priority is
// >= minPrio, per spec.md §4.4.
func (q *priorityQueue) popWithPrio(minPrio Priority) *Task {
	p := q.highestNonEmpty()
	if p < 0 || Priority(p) < minPrio {
		return nil
	}
	return q.popPriority(Priority(p))
}

func (q *priorityQueue) popPriority(p Priority) *Task {
	t := q.heads[p]
	if t == nil {
		return nil
	}
	q.heads[p] = t.next
	if q.heads[p] != nil {
		q.heads[p].prev = nil
	} else {
		q.tails[p] = nil
		q.bitmap &^= 1 << p
	}
	t.prev, t.next = nil, nil
	return t
}

// remove detaches t from whichever priority list it is in (used when a
// remote wake arrives for a task that is actually already ready, which
// should not happen under correct use but is defended against defensively
// to keep the bitmap invariant intact).
func (q *priorityQueue) remove(t *Task) bool {
	p := t.Priority
	cur := q.heads[p]
	for cur != nil {
		if cur == t {
			if cur.prev != nil {
				cur.prev.next = cur.next
			} else {
				q.heads[p] = cur.next
			}
			if cur.next != nil {
				cur.next.prev = cur.prev
			} else {
				q.tails[p] = cur.prev
			}
			if q.heads[p] == nil {
				q.bitmap &^= 1 << p
			}
			t.prev, t.next = nil, nil
			return true
		}
		cur = cur.next
	}
	return false
}
