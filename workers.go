package bufferpool

import (
	"context"
)

// readLoop is the single consumer of the load queue.
func (p *Pool) readLoop(ctx context.Context) error {
	log := p.logger.WithPrefix("reader: ")
	for {
		request, ok := p.loads.next()
		if !ok {
			return nil
		}
		if err := p.load(ctx, request); err != nil && !p.closed.Load() {
			log.Errorf("loading page %v: %v", request.id, err)
		}
	}
}

// load satisfies request from the cache, the write-back queue,
// or the resource, in that order.
func (p *Pool) load(ctx context.Context, request *loadRequest) error {
	var (
		class = request.class
		label = class.size.String()
	)
	if done, err := p.loadInMemory(request); done {
		return err
	}
	buffer, err := class.free.acquire(ctx, p.closing)
	if err != nil {
		p.fail(request, err)
		return err
	}
	page, err := request.resource.ReadPage(buffer, request.id.Page)
	if err != nil {
		class.free.release(buffer)
		p.metrics.ioFailures.WithLabelValues(label).Inc()
		err = wrapError(ErrIOFailure, err, "reading page %v", request.id)
		p.fail(request, err)
		return err
	}
	p.metrics.reads.WithLabelValues(label).Inc()

	class.mu.Lock()
	defer class.mu.Unlock()
	if request.completed() {
		class.free.recycle(page)
		return nil
	}
	if p.unregistered(request) {
		class.free.recycle(page)
		err := unknownResourceError(request.id.Resource)
		request.complete(nil, err)
		return err
	}
	if err := p.admit(class, request.id, page, request.pins); err != nil {
		class.free.recycle(page)
		request.complete(nil, err)
		return err
	}
	request.complete(page, nil)
	return nil
}

// loadInMemory completes request without a read when the page is
// resident, or when a write-back of the page is still pending.
// A pending write of a page nobody is waiting for satisfies the
// request without readmitting the page.
func (p *Pool) loadInMemory(request *loadRequest) (done bool, err error) {
	class := request.class
	class.mu.Lock()
	defer class.mu.Unlock()
	if request.completed() {
		return true, nil
	}
	if p.unregistered(request) {
		err := unknownResourceError(request.id.Resource)
		request.complete(nil, err)
		return true, err
	}
	if page, ok := class.cache.Lookup(request.id, false); ok {
		for range request.pins {
			class.cache.Pin(request.id)
		}
		request.complete(page, nil)
		return true, nil
	}
	if request.pins == 0 {
		if p.writes.lookup(request.id) {
			request.complete(nil, nil)
			return true, nil
		}
		return false, nil
	}
	write, ok := p.writes.claim(request.id)
	if !ok {
		return false, nil
	}
	if err := p.admit(class, request.id, write.page, request.pins); err != nil {
		if p.writes.unclaim(write) {
			class.free.recycle(write.page)
		}
		request.complete(nil, err)
		return true, err
	}
	p.metrics.refetches.WithLabelValues(class.size.String()).Inc()
	request.complete(write.page, nil)
	return true, nil
}

// unregistered reports whether the resource the request was issued
// against is no longer registered under its ID.
func (p *Pool) unregistered(request *loadRequest) bool {
	current, ok := p.resources.Load(request.id.Resource)
	return !ok || current != request.resource
}

func (p *Pool) fail(request *loadRequest, err error) {
	class := request.class
	class.mu.Lock()
	defer class.mu.Unlock()
	request.complete(nil, err)
}

// writeLoop is the single consumer of the write-back queue.
// It returns once the queue is closed and drained.
func (p *Pool) writeLoop() error {
	log := p.logger.WithPrefix("writer: ")
	for {
		write, ok := p.writes.next()
		if !ok {
			return nil
		}
		var (
			class = write.class
			label = class.size.String()
		)
		if err := write.resource.WritePage(write.page.Buffer(), write.page); err != nil {
			p.metrics.ioFailures.WithLabelValues(label).Inc()
			log.Errorf("writing page %v: %v", write.id, err)
		} else {
			p.metrics.writes.WithLabelValues(label).Inc()
		}
		if !p.writes.finish(write) {
			class.free.recycle(write.page)
		}
	}
}
