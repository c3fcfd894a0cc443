package sched

import "testing"

func i64(n int64) *int64 { return &n }

// TestBlockedQueueAscendingWakeupOrder exercises spec.md §8 property 4: the
// blocked list is always ordered ascending by absolute wakeup time, with
// indefinite (nil) entries sorted last regardless of insertion order.
func TestBlockedQueueAscendingWakeupOrder(t *testing.T) {
	var q blockedQueue
	indefinite := &Task{ID: 1}
	late := &Task{ID: 2}
	early := &Task{ID: 3}
	mid := &Task{ID: 4}

	q.add(indefinite, nil)
	q.add(late, i64(300))
	q.add(early, i64(100))
	q.add(mid, i64(200))

	var order []TaskId
	for cur := q.head; cur != nil; cur = cur.next {
		order = append(order, cur.ID)
	}
	want := []TaskId{3, 4, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestBlockedQueueAddReportsNewHead(t *testing.T) {
	var q blockedQueue
	if becameHead := q.add(&Task{ID: 1}, i64(100)); !becameHead {
		t.Fatalf("first insertion should become head")
	}
	if becameHead := q.add(&Task{ID: 2}, i64(200)); becameHead {
		t.Fatalf("later wakeup should not displace the head")
	}
	if becameHead := q.add(&Task{ID: 3}, i64(50)); !becameHead {
		t.Fatalf("earlier wakeup should become the new head")
	}
}

func TestBlockedQueueRemove(t *testing.T) {
	var q blockedQueue
	a := &Task{ID: 1}
	b := &Task{ID: 2}
	c := &Task{ID: 3}
	q.add(a, i64(100))
	q.add(b, i64(200))
	q.add(c, i64(300))

	if !q.remove(b) {
		t.Fatalf("remove(b) = false")
	}
	if q.remove(b) {
		t.Fatalf("remove(b) twice should report false")
	}
	if b.wakeupAt != nil {
		t.Fatalf("remove should clear wakeupAt")
	}

	var order []TaskId
	for cur := q.head; cur != nil; cur = cur.next {
		order = append(order, cur.ID)
	}
	want := []TaskId{1, 3}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestBlockedQueueDrainElapsed(t *testing.T) {
	var q blockedQueue
	a := &Task{ID: 1}
	b := &Task{ID: 2}
	c := &Task{ID: 3}
	q.add(a, i64(100))
	q.add(b, i64(200))
	q.add(c, nil)

	elapsed := q.drainElapsed(150)
	if len(elapsed) != 1 || elapsed[0] != a {
		t.Fatalf("drainElapsed(150) = %v, want [a]", elapsed)
	}
	if got := q.nextWakeup(); got == nil || *got != 200 {
		t.Fatalf("nextWakeup = %v, want 200", got)
	}

	elapsed = q.drainElapsed(1000)
	if len(elapsed) != 1 || elapsed[0] != b {
		t.Fatalf("drainElapsed(1000) = %v, want [b] (indefinite c must not drain)", elapsed)
	}
	if got := q.nextWakeup(); got != nil {
		t.Fatalf("nextWakeup = %v, want nil once only the indefinite entry remains", got)
	}
}

func TestBlockedQueueNextWakeupEmpty(t *testing.T) {
	var q blockedQueue
	if got := q.nextWakeup(); got != nil {
		t.Fatalf("nextWakeup on empty queue = %v, want nil", got)
	}
}
