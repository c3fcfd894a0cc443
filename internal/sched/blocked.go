package sched

// blockedQueue is the BlockedTaskQueue entity of spec.md §3: a doubly-linked
// list ordered ascending by absolute wakeup time, with indefinite (nil)
// wakeups sorted last.
type blockedQueue struct {
	head *Task
}

// wakeupLess reports whether a sorts before b; nil (indefinite) always sorts
// last.
func wakeupLess(a, b *int64) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a < *b
}

// add inserts t keyed by wakeup (nil means indefinite), keeping the list
// sorted, and reports whether t became the new head -- the caller must then
// reprogram the one-shot timer to the new head's wakeup, per spec.md §4.4.
func (q *blockedQueue) add(t *Task, wakeup *int64) bool {
	t.wakeupAt = wakeup
	t.prev, t.next = nil, nil

	if q.head == nil || wakeupLess(wakeup, q.head.wakeupAt) {
		t.next = q.head
		if q.head != nil {
			q.head.prev = t
		}
		q.head = t
		return true
	}
	cur := q.head
	for cur.next != nil && !wakeupLess(wakeup, cur.next.wakeupAt) {
		cur = cur.next
	}
	t.next = cur.next
	t.prev = cur
	if cur.next != nil {
		cur.next.prev = t
	}
	cur.next = t
	return false
}

// remove detaches t if present, reporting whether it was found.
func (q *blockedQueue) remove(t *Task) bool {
	cur := q.head
	for cur != nil {
		if cur == t {
			if cur.prev != nil {
				cur.prev.next = cur.next
			} else {
				q.head = cur.next
			}
			if cur.next != nil {
				cur.next.prev = cur.prev
			}
			t.prev, t.next = nil, nil
			t.wakeupAt = nil
			return true
		}
		cur = cur.next
	}
	return false
}

// drainElapsed removes and returns every entry whose wakeup is <= now
// (nanoseconds), walking from the head since the list is sorted ascending.
func (q *blockedQueue) drainElapsed(nowNanos int64) []*Task {
	var elapsed []*Task
	for q.head != nil && q.head.wakeupAt != nil && *q.head.wakeupAt <= nowNanos {
		t := q.head
		q.head = t.next
		if q.head != nil {
			q.head.prev = nil
		}
		t.prev, t.next = nil, nil
		t.wakeupAt = nil
		elapsed = append(elapsed, t)
	}
	return elapsed
}

// nextWakeup returns the head's wakeup deadline, or nil if the queue is
// empty or the head is indefinite.
func (q *blockedQueue) nextWakeup() *int64 {
	if q.head == nil {
		return nil
	}
	return q.head.wakeupAt
}
