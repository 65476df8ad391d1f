package sched

import "nucleus/defs"

// initialTableCapacity is the thread table's starting size, grown by
// doubling up to MaxThreads as more slots are needed — the Go shape of
// the teacher's `self.threads.resize(16, None)`.
const initialTableCapacity = 16

// threadTable is the slot-allocated table of every live thread, plus
// the running and busy membership lists the run queue is drawn from.
// Grounded on scheduler/thread.rs's SchedulerThreadData.
type threadTable struct {
	slots   []*Thread
	running []defs.Tid_t
	busy    []defs.Tid_t
	count   int
}

// allocID returns the lowest free slot index, growing the table (by
// doubling, capped at MaxThreads) if every existing slot is occupied.
func (t *threadTable) allocID() defs.Tid_t {
	if t.slots == nil {
		t.slots = make([]*Thread, initialTableCapacity)
	}
	for i, s := range t.slots {
		if s == nil {
			return defs.Tid_t(i)
		}
	}
	if len(t.slots) >= MaxThreads {
		panic("sched: thread table exhausted")
	}
	old := len(t.slots)
	newCap := old * 2
	if newCap > MaxThreads {
		newCap = MaxThreads
	}
	grown := make([]*Thread, newCap)
	copy(grown, t.slots)
	t.slots = grown
	return defs.Tid_t(old)
}

func (t *threadTable) get(id defs.Tid_t) (*Thread, bool) {
	if int(id) < 0 || int(id) >= len(t.slots) || t.slots[id] == nil {
		return nil, false
	}
	return t.slots[id], true
}

func (t *threadTable) insert(th *Thread) {
	t.slots[th.ID] = th
	t.count++
}

// remove deletes th's slot entirely. th must already have been taken
// out of whichever of running/busy it belonged to.
func (t *threadTable) remove(id defs.Tid_t) {
	th, ok := t.get(id)
	if !ok {
		panic("sched: remove of unknown thread")
	}
	switch th.State {
	case Busy:
		t.removeFromBusy(id)
	case Running:
		t.removeFromRunning(id)
	case None:
		// never entered either list
	}
	t.slots[id] = nil
	t.count--
}

func (t *threadTable) addRunning(id defs.Tid_t) { t.running = append(t.running, id) }
func (t *threadTable) addBusy(id defs.Tid_t)    { t.busy = append(t.busy, id) }

func (t *threadTable) removeFromRunning(id defs.Tid_t) { t.running = removeID(t.running, id) }
func (t *threadTable) removeFromBusy(id defs.Tid_t)    { t.busy = removeID(t.busy, id) }

func removeID(s []defs.Tid_t, id defs.Tid_t) []defs.Tid_t {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	panic("sched: tid not present in expected list")
}

// setState transitions id to newState, keeping the running/busy lists
// consistent — the Go shape of change_thread_state. Panics if id is
// already in newState, the same invariant the teacher asserts.
func (t *threadTable) setState(id defs.Tid_t, newState State) {
	th, ok := t.get(id)
	if !ok {
		panic("sched: setState of unknown thread")
	}
	if th.State == newState {
		panic("sched: setState to current state")
	}
	switch newState {
	case Busy:
		if th.State == Running {
			t.removeFromRunning(id)
		}
		t.addBusy(id)
	case Running:
		if th.State == Busy {
			t.removeFromBusy(id)
		}
		t.addRunning(id)
	case None:
		panic("sched: cannot transition a thread back to None")
	}
	th.State = newState
}
