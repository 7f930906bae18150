package bufferpool

import (
	"sync"

	"github.com/djdv/go-bufferpool/internal/list"
)

type (
	// loadRequest is the rendezvous for every caller waiting on one page.
	// Fields other than done are guarded by class.mu;
	// page and err are immutable once done is closed.
	loadRequest struct {
		id       PageID
		class    *sizeClass
		resource Resource
		// pins is the number of waiters that
		// expect the page to be pinned for them.
		// Zero for a plain prefetch.
		pins int
		done chan struct{}
		page Page
		err  error
	}

	// writeRequest carries an evicted, modified page to the writer.
	// The request owns the page's buffer until the writer finishes,
	// unless the reader claims it back for a waiting load.
	writeRequest struct {
		id       PageID
		class    *sizeClass
		resource Resource
		page     Page
		// Guarded by writeQueue.mu.
		refetched, finished bool
	}

	// loadQueue is a FIFO of load requests with a single consumer.
	loadQueue struct {
		mu     sync.Mutex
		cond   sync.Cond
		items  list.List[*loadRequest]
		closed bool
	}

	// writeQueue is a FIFO of write requests with a single consumer.
	// Requests remain visible to [writeQueue.claim] until finished.
	writeQueue struct {
		mu     sync.Mutex
		cond   sync.Cond
		items  list.List[*writeRequest]
		index  map[PageID]*writeRequest // Queued or in flight.
		closed bool
	}
)

func newLoadRequest(id PageID, class *sizeClass, resource Resource) *loadRequest {
	return &loadRequest{
		id:       id,
		class:    class,
		resource: resource,
		done:     make(chan struct{}),
	}
}

// complete publishes the result and wakes every waiter.
// It must be called with class.mu held and
// returns false if the request was already completed.
func (r *loadRequest) complete(page Page, err error) bool {
	if r.completed() {
		return false
	}
	r.page, r.err = page, err
	delete(r.class.pending, r.id)
	close(r.done)
	return true
}

func (r *loadRequest) completed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func newLoadQueue() *loadQueue {
	q := new(loadQueue)
	q.cond.L = &q.mu
	return q
}

// push returns false if the queue was closed.
func (q *loadQueue) push(r *loadRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items.PushFront(r)
	q.cond.Signal()
	return true
}

// next blocks until a request is available.
// It returns false once the queue is closed.
func (q *loadQueue) next() (*loadRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	return q.items.Remove(q.items.Back()), true
}

// close abandons queued requests; their waiters are failed by the pool.
func (q *loadQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for e := range q.items.Backward() {
		q.items.Remove(e)
	}
	q.cond.Broadcast()
}

func (q *loadQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{index: make(map[PageID]*writeRequest)}
	q.cond.L = &q.mu
	return q
}

// push returns false if the queue was closed.
func (q *writeQueue) push(w *writeRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items.PushFront(w)
	q.index[w.id] = w
	q.cond.Broadcast()
	return true
}

// next blocks until a request is available.
// After close it keeps returning requests until the queue is empty.
func (q *writeQueue) next() (*writeRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return nil, false
	}
	return q.items.Remove(q.items.Back()), true
}

// finish retires w. If the result is false the caller
// owns w's buffer and must return it to the free set.
func (q *writeQueue) finish(w *writeRequest) (refetched bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w.finished = true
	if q.index[w.id] == w {
		delete(q.index, w.id)
	}
	q.cond.Broadcast()
	return w.refetched
}

// claim marks the newest unfinished write of id as refetched,
// so the writer will not recycle its buffer.
func (q *writeQueue) claim(id PageID) (*writeRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w, ok := q.index[id]
	if !ok || w.refetched {
		return nil, false
	}
	w.refetched = true
	return w, true
}

// unclaim reverses claim. If the result is true the writer has
// already finished and the caller owns w's buffer.
func (q *writeQueue) unclaim(w *writeRequest) (owned bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w.refetched = false
	return w.finished
}

// lookup reports whether a write of id is queued or in flight.
func (q *writeQueue) lookup(id PageID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[id]
	return ok
}

// waitFor blocks until no queued or in-flight write matches.
func (q *writeQueue) waitFor(match func(PageID) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending(match) {
		q.cond.Wait()
	}
}

func (q *writeQueue) pending(match func(PageID) bool) bool {
	for id := range q.index {
		if match(id) {
			return true
		}
	}
	return false
}

func (q *writeQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *writeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}
