package blockdev

import (
	"nucleus/irqlock"
)

// Queue_t is a FIFO of outstanding requests for one disk. Drivers whose
// hardware can only service one transfer at a time push requests here
// from Start and pop the next one from their completion interrupt; the
// sync hand-off to the issuer still happens through each request's own
// AckCh.
type Queue_t struct {
	lock irqlock.Mutex
	reqs []*Bdev_req_t
}

// Push appends req and reports whether it is the only request queued,
// i.e. whether the caller should kick the hardware itself.
func (q *Queue_t) Push(req *Bdev_req_t) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.reqs = append(q.reqs, req)
	return len(q.reqs) == 1
}

// Pop completes the head request (acking its issuer if synchronous) and
// returns the next one to service, if any.
func (q *Queue_t) Pop() (*Bdev_req_t, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.reqs) == 0 {
		return nil, false
	}
	done := q.reqs[0]
	q.reqs = q.reqs[1:]
	if done.Sync {
		done.AckCh <- true
	}
	if len(q.reqs) == 0 {
		return nil, false
	}
	return q.reqs[0], true
}

// Len returns the number of queued requests.
func (q *Queue_t) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.reqs)
}
