package sched

import "nucleus/defs"

// runQueue is the run queue: a FIFO of thread IDs eligible to run next,
// repopulated from the running list whenever it empties. Grounded on
// scheduler/queue.rs's SchedulerThreadQueue (a VecDeque<ThreadID>).
type runQueue struct {
	ids []defs.Tid_t
}

func (q *runQueue) empty() bool { return len(q.ids) == 0 }

func (q *runQueue) front() (defs.Tid_t, bool) {
	if q.empty() {
		return 0, false
	}
	return q.ids[0], true
}

func (q *runQueue) popFront() (defs.Tid_t, bool) {
	if q.empty() {
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

func (q *runQueue) pushBack(id defs.Tid_t) { q.ids = append(q.ids, id) }

// remove deletes id from the queue, panicking if it is not present.
func (q *runQueue) remove(id defs.Tid_t) {
	if !q.removeIfPresent(id) {
		panic("sched: remove of tid not in run queue")
	}
}

// removeIfPresent deletes id from the queue if present, reporting
// whether it was found. A Busy thread was never in the queue at all, so
// teardown uses this instead of remove to stay idempotent.
func (q *runQueue) removeIfPresent(id defs.Tid_t) bool {
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}
